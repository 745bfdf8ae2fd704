package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sandrolain/goshape/pkg/accessor"
	"github.com/sandrolain/goshape/pkg/native"
	"github.com/sandrolain/goshape/pkg/parser"
)

func write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	if c.Parser.MaxDepth != parser.DefaultMaxDepth {
		t.Errorf("max depth = %d", c.Parser.MaxDepth)
	}
	if c.Projection.IDProperty != "Id" || c.Projection.CacheSize != 256 {
		t.Errorf("projection = %+v", c.Projection)
	}
	if c.Source.Timeout.Duration != 30*time.Second {
		t.Errorf("timeout = %s", c.Source.Timeout)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("default config is invalid: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	path := write(t, "goshape.yaml", `
parser:
  max_depth: 12
eval:
  locale: it
  now: "2024-03-01T00:00:00Z"
projection:
  cache_size: 8
  id_property: Code
source:
  workers: 3
  timeout: 5s
log:
  level: debug
  format: json
`)
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Parser.MaxDepth != 12 || c.Eval.Locale != "it" || c.Projection.IDProperty != "Code" {
		t.Errorf("config = %+v", c)
	}
	if c.Source.Workers != 3 || c.Source.Timeout.Duration != 5*time.Second {
		t.Errorf("source = %+v", c.Source)
	}
	if c.REPL.Prompt != "goshape> " {
		t.Errorf("default prompt not applied: %q", c.REPL.Prompt)
	}
}

func TestLoadTOML(t *testing.T) {
	path := write(t, "goshape.toml", `
[projection]
cache_size = 32
default_property = "Name"

[log]
level = "warn"
`)
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Projection.CacheSize != 32 || c.Projection.DefaultProperty != "Name" || c.Log.Level != "warn" {
		t.Errorf("config = %+v", c)
	}
	if c.Log.Format != "text" {
		t.Errorf("default format not applied: %q", c.Log.Format)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    []string
	}{
		{"extension", "goshape.json", "{}", []string{"unsupported format"}},
		{"syntax", "goshape.yaml", "parser: [", []string{"failed to parse"}},
		{
			"invalid values",
			"goshape.yaml",
			"eval:\n  locale: \"not a locale!\"\nlog:\n  level: loud\n  format: xml\nsource:\n  workers: -1\n",
			[]string{"eval.locale", "log.level", "log.format", "source.workers"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(write(t, tt.file, tt.content))
			if err == nil {
				t.Fatal("expected an error")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error %q should mention %q", err, w)
				}
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	path := write(t, "custom.toml", "[parser]\nmax_depth = 7\n")
	t.Setenv(EnvVar, path)
	c, err := LoadFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if c.Parser.MaxDepth != 7 {
		t.Errorf("max depth = %d", c.Parser.MaxDepth)
	}
}

func TestNativeOptionsPinClock(t *testing.T) {
	type event struct {
		At time.Time
	}
	c := Default()
	c.Eval.Now = "2024-03-11T08:00:00Z"
	opts, err := c.NativeOptions(nil)
	if err != nil {
		t.Fatal(err)
	}
	expr, _ := parser.Parse("At:daysAgo", c.ParserOptions()...)
	e, err := native.New(opts...).Build(expr, accessor.TypeFor[event]())
	if err != nil {
		t.Fatal(err)
	}
	v, err := e.Eval(event{At: time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC)})
	if err != nil || v != 10 {
		t.Errorf("daysAgo = %#v, %v", v, err)
	}
}

func TestLogger(t *testing.T) {
	c := Default()
	c.Log.Format = "json"
	c.Log.Level = "debug"
	var buf bytes.Buffer
	logger, err := c.Logger(&buf)
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("hello", "n", 1)

	var rec map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("not JSON: %q", buf.String())
	}
	if rec["msg"] != "hello" || rec["level"] != "DEBUG" {
		t.Errorf("record = %v", rec)
	}
}
