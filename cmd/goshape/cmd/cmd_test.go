package cmd

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sandrolain/goshape/pkg/config"
	"github.com/sandrolain/goshape/pkg/transform"
)

const customers = `[
  {"Id": 1, "Name": "Ann", "Age": 34, "Orders": [{"Status": "Done", "Total": 10.5}, {"Status": "Open", "Total": 4}]},
  {"Id": 2, "Name": "Bob", "Age": 27, "Orders": []}
]`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvVar, "")
	dataFile, sqliteFile, tableName = "", "", ""
	evalWhere, evalType, docMatch = false, false, false
	projectBackend = "native"
	cfgFile, logLevel, logFormat = "", "", ""

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func lines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

func TestEval(t *testing.T) {
	data := writeFile(t, "customers.json", customers)
	tests := []struct {
		args []string
		want []string
	}{
		{[]string{"eval", "-d", data, "Name:upper"}, []string{`"ANN"`, `"BOB"`}},
		{[]string{"eval", "-d", data, "Orders:sum(Total)"}, []string{"14.5", "0"}},
		{[]string{"eval", "-d", data, "--type", "Age > 30"}, []string{"# bool", "true", "false"}},
		{[]string{"eval", "-d", data, "--where", "Orders:any"}, nil},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args[3:], " "), func(t *testing.T) {
			out, err := execute(t, tt.args...)
			if err != nil {
				t.Fatal(err)
			}
			if tt.want == nil {
				var doc map[string]interface{}
				if err := json.Unmarshal([]byte(out), &doc); err != nil || doc["Name"] != "Ann" {
					t.Errorf("got %q", out)
				}
				return
			}
			if got := lines(out); strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEvalYAML(t *testing.T) {
	data := writeFile(t, "people.yaml", "- Name: Ann\n  Age: 34\n- Name: Bob\n")
	out, err := execute(t, "eval", "-d", data, "Age ?? 0")
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(lines(out), ","); got != "34,0" {
		t.Errorf("got %q", got)
	}
}

func TestEvalErrors(t *testing.T) {
	data := writeFile(t, "customers.json", customers)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no input", []string{"eval", "Name"}, "no input"},
		{"syntax", []string{"eval", "-d", data, "Name ="}, "S02"},
		{"unknown member", []string{"eval", "-d", data, "Missing"}, "B0301"},
		{"table without name", []string{"eval", "--sqlite", "x.db", "Name"}, "--table"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestEvalSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shop.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{
		`CREATE TABLE orders (id INTEGER NOT NULL, status TEXT NOT NULL, total REAL)`,
		`INSERT INTO orders VALUES (1, 'done', 10.5), (2, 'open', 99), (3, 'done', 120)`,
	} {
		if _, err := db.Exec(s); err != nil {
			t.Fatal(err)
		}
	}
	db.Close()

	out, err := execute(t, "eval", "--sqlite", path, "--table", "orders", "--where", "total > 50 and status = 'done'")
	if err != nil {
		t.Fatal(err)
	}
	var row map[string]interface{}
	if err := json.Unmarshal([]byte(out), &row); err != nil || row["id"] != float64(3) {
		t.Errorf("got %q", out)
	}
}

func TestDoc(t *testing.T) {
	data := writeFile(t, "customers.json", customers)
	out, err := execute(t, "doc", "-d", data, "--match", "Age > 30")
	if err != nil {
		t.Fatal(err)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(out)); err != nil {
		t.Fatal(err)
	}
	if want := `{"$match":{"$expr":{"$gt":["$Age",30]}}}`; compact.String() != want {
		t.Errorf("got %s, want %s", compact.String(), want)
	}
}

func TestProject(t *testing.T) {
	data := writeFile(t, "customers.json", customers)
	out, err := execute(t, "project", "-d", data, "Name", "Orders:count", "Nope")
	if err != nil {
		t.Fatal(err)
	}
	rows := lines(out)
	if len(rows) != 2 {
		t.Fatalf("got %q", out)
	}
	var r transform.Response
	if err := json.Unmarshal([]byte(rows[0]), &r); err != nil {
		t.Fatal(err)
	}
	if r.ID != "1" {
		t.Errorf("id = %q", r.ID)
	}
	for expr, want := range map[string]string{"Name": `"Ann"`, "Orders:count": "2", "Nope": "null"} {
		if got, _ := r.Get(expr); got != want {
			t.Errorf("%s = %s, want %s", expr, got, want)
		}
	}
}

func TestProjectDocumentBackend(t *testing.T) {
	data := writeFile(t, "customers.json", customers)
	out, err := execute(t, "project", "-d", data, "-b", "document", "Name")
	if err != nil {
		t.Fatal(err)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(out)); err != nil {
		t.Fatal(err)
	}
	if want := `{"$project":{"_id":0,"c0":"$Id","c1":"$Name"}}`; compact.String() != want {
		t.Errorf("got %s", compact.String())
	}

	if _, err := execute(t, "project", "-d", data, "-b", "sql", "Name"); err == nil {
		t.Error("expected an unknown backend error")
	}
}

func TestTokensAndParse(t *testing.T) {
	out, err := execute(t, "tokens", "Age > 30")
	if err != nil {
		t.Fatal(err)
	}
	if n := len(lines(out)); n < 3 {
		t.Errorf("got %d token lines: %q", n, out)
	}

	out, err = execute(t, "parse", "Age > 30")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "Comparison > @") {
		t.Errorf("got %q", out)
	}
}

func TestFunctions(t *testing.T) {
	out, err := execute(t, "functions")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "groupBy") || !strings.Contains(out, "1+") {
		t.Errorf("got %q", out)
	}
}

func TestConfigFlag(t *testing.T) {
	path := writeFile(t, "goshape.yaml", "parser:\n  max_depth: 2\n")
	if _, err := execute(t, "--config", path, "parse", "((((Age))))"); err == nil || !strings.Contains(err.Error(), "S0207") {
		t.Errorf("err = %v", err)
	}
	if _, err := execute(t, "--log-level", "loud", "functions"); err == nil {
		t.Error("expected an invalid log level error")
	}
}

func newShell(t *testing.T) (*shell, *bytes.Buffer) {
	t.Helper()
	cfg = config.Default()
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	b, err := nativeBuilder()
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	sh := &shell{out: &out, builder: b, data: &dataset{}}
	if err := sh.load(writeFile(t, "customers.json", customers)); err != nil {
		t.Fatal(err)
	}
	out.Reset()
	return sh, &out
}

func TestShell(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Name", "\"Ann\"\n\"Bob\"\n"},
		{":type Orders:count", "int\n"},
		{":where Age < 30", ""},
		{":doc Name:upper", "{\n  \"$toUpper\": \"$Name\"\n}\n"},
		{":parse Name", "Property Name @0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			sh, out := newShell(t)
			if err := sh.exec(context.Background(), tt.input); err != nil {
				t.Fatal(err)
			}
			if tt.want == "" {
				if !strings.Contains(out.String(), `"Bob"`) {
					t.Errorf("got %q", out.String())
				}
				return
			}
			if out.String() != tt.want {
				t.Errorf("got %q, want %q", out.String(), tt.want)
			}
		})
	}

	sh, _ := newShell(t)
	if err := sh.exec(context.Background(), ":frobnicate x"); err == nil {
		t.Error("expected an unknown command error")
	}
}

func TestShellComplete(t *testing.T) {
	sh, _ := newShell(t)
	tests := []struct {
		line string
		want string
	}{
		{":lo", ":load"},
		{"Orders:gro", "Orders:groupBy"},
		{"Age > 1 and Na", "Age > 1 and Name"},
	}
	for _, tt := range tests {
		got := sh.complete(tt.line)
		if len(got) != 1 || got[0] != tt.want {
			t.Errorf("complete(%q) = %q, want [%q]", tt.line, got, tt.want)
		}
	}
}

func TestRun(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		fails bool
	}{
		{"object", `{"query":"Name:upper","data":{"Name":"Ann"}}`, `{"result":"ANN"}`, false},
		{"array", `{"query":"Age > 30","data":[{"Age":34},{"Age":27}]}`, `{"result":[true,false]}`, false},
		{"decimal", `{"query":"Price:round(1)","data":{"Price":1.25}}`, `{"result":1.3}`, false},
		{"bad json", `{"query":`, `invalid request JSON`, true},
		{"syntax", `{"query":"Name =","data":{"Name":"Ann"}}`, `S02`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rootCmd.SetIn(strings.NewReader(tt.input))
			defer rootCmd.SetIn(nil)
			out, err := execute(t, "run")
			if (err != nil) != tt.fails {
				t.Fatalf("err = %v", err)
			}
			if tt.fails {
				var r runResponse
				if jerr := json.Unmarshal([]byte(out), &r); jerr != nil || !strings.Contains(r.Error, tt.want) {
					t.Errorf("got %q", out)
				}
				return
			}
			if got := strings.TrimSpace(out); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}
