package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/sandrolain/goshape/pkg/accessor"
	"github.com/sandrolain/goshape/pkg/functions"
	"github.com/sandrolain/goshape/pkg/native"
	"github.com/sandrolain/goshape/pkg/parser"
	"github.com/sandrolain/goshape/pkg/transform"
	"github.com/sandrolain/goshape/pkg/types"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive shell",
	Long: `Starts an interactive shell. Expressions typed at the prompt are
evaluated against the loaded documents; lines starting with ':' are shell
commands, see :help.`,
	Args: cobra.NoArgs,
	RunE: runREPL,
}

func init() {
	rootCmd.AddCommand(replCmd)
	addDataFlags(replCmd)
}

const replHelp = `Commands:
  :load <file>      load documents and infer their model
  :model            print the model of the loaded documents
  :where <expr>     print the documents matching a condition
  :type <expr>      print the static type of an expression
  :doc <expr>       print the aggregation document of an expression
  :match <expr>     print the $match stage of a condition
  :tokens <expr>    print the tokens of an expression
  :parse <expr>     print the syntax tree of an expression
  :help             show this help
  :quit             leave the shell
Any other line is evaluated against every loaded document.`

var replCommands = []string{":load", ":model", ":where", ":type", ":doc", ":match", ":tokens", ":parse", ":help", ":quit"}

type shell struct {
	out     io.Writer
	builder *native.Builder
	data    *dataset
}

func runREPL(cmd *cobra.Command, _ []string) error {
	b, err := nativeBuilder()
	if err != nil {
		return err
	}
	sh := &shell{out: cmd.OutOrStdout(), builder: b, data: &dataset{model: types.ObjectOf()}}
	if dataFile != "" || sqliteFile != "" {
		ctx, cancel := withTimeout(cmd)
		data, err := loadDataset(ctx)
		cancel()
		if err != nil {
			return err
		}
		defer data.Close()
		sh.data = data
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(sh.complete)

	history := historyPath()
	if history != "" {
		if f, err := os.Open(history); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
		defer func() {
			if f, err := os.Create(history); err == nil {
				line.WriteHistory(f)
				f.Close()
			}
		}()
	}

	fmt.Fprintf(sh.out, "goshape %s, %d documents loaded. Type :help for commands.\n", Version, len(sh.data.docs))
	for {
		input, err := line.Prompt(cfg.REPL.Prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				fmt.Fprintln(sh.out, "^C")
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(sh.out)
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)
		if input == ":quit" || input == ":q" {
			return nil
		}

		ctx, cancel := withTimeout(cmd)
		if err := sh.exec(ctx, input); err != nil {
			fmt.Fprintf(sh.out, "error: %v\n", err)
		}
		cancel()
	}
}

func historyPath() string {
	if cfg.REPL.HistoryFile != "" {
		return os.ExpandEnv(cfg.REPL.HistoryFile)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".goshape_history")
}

func (sh *shell) exec(ctx context.Context, input string) error {
	if !strings.HasPrefix(input, ":") {
		return sh.eval(ctx, input)
	}
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case ":help":
		fmt.Fprintln(sh.out, replHelp)
		return nil
	case ":model":
		sh.printModel()
		return nil
	case ":load":
		return sh.load(arg)
	case ":tokens":
		tokens, err := parser.Tokenize(arg)
		if err != nil {
			return err
		}
		for _, tok := range tokens {
			fmt.Fprintf(sh.out, "%d %s %q\n", tok.Position, tok.Type, tok.Value)
		}
		return nil
	}

	expr, err := parser.Parse(arg, cfg.ParserOptions()...)
	if err != nil {
		return err
	}
	switch name {
	case ":parse":
		return types.Dump(sh.out, expr.Root())
	case ":type":
		e, err := sh.builder.Build(expr, sh.data.model)
		if err != nil {
			return err
		}
		fmt.Fprintln(sh.out, e.Type())
		return nil
	case ":doc":
		d, err := documentBuilder().Build(expr, sh.data.model)
		if err != nil {
			return err
		}
		return printJSON(sh.out, d)
	case ":match":
		d, err := documentBuilder().Predicate(expr, sh.data.model)
		if err != nil {
			return err
		}
		return printJSON(sh.out, d.Match())
	case ":where":
		docs, err := sh.data.where(ctx, expr, sh.builder)
		if err != nil {
			return err
		}
		return sh.print(docs)
	default:
		return fmt.Errorf("unknown command %s, see :help", name)
	}
}

func (sh *shell) load(path string) error {
	if path == "" {
		return errors.New("usage: :load <file>")
	}
	docs, err := readDocuments(path)
	if err != nil {
		return err
	}
	sh.data.Close()
	sh.data = &dataset{model: accessor.Infer("doc", docs...).Type(), docs: docs}
	fmt.Fprintf(sh.out, "%d documents\n", len(docs))
	sh.printModel()
	return nil
}

func (sh *shell) eval(ctx context.Context, src string) error {
	expr, err := parser.Parse(src, cfg.ParserOptions()...)
	if err != nil {
		return err
	}
	e, err := sh.builder.Build(expr, sh.data.model)
	if err != nil {
		return err
	}
	results, err := sh.data.slice().Select(ctx, e)
	if err != nil {
		return err
	}
	return sh.print(results)
}

func (sh *shell) print(values []interface{}) error {
	for _, v := range values {
		text, err := transform.Text(v)
		if err != nil {
			return err
		}
		fmt.Fprintln(sh.out, text)
	}
	return nil
}

// complete offers shell commands at the start of the line, function names
// after ':' and member names of the loaded model elsewhere.
func (sh *shell) complete(line string) []string {
	if strings.HasPrefix(line, ":") && !strings.Contains(line, " ") {
		return withPrefix(replCommands, line, "")
	}
	cut := strings.LastIndexAny(line, " ([{,.:!=<>?") + 1
	head, word := line[:cut], line[cut:]
	if cut > 0 && line[cut-1] == ':' {
		return withPrefix(functions.Names(), word, head)
	}
	var names []string
	for _, f := range members(sh.data.model) {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return withPrefix(names, word, head)
}

// members returns the fields of an object type, reading them from the
// schema of inferred and described models.
func members(t *types.Type) []types.Field {
	if s, ok := t.Ref.(*accessor.Schema); ok {
		return s.Fields()
	}
	return t.Fields
}

func (sh *shell) printModel() {
	fmt.Fprintln(sh.out, sh.data.model)
	for _, f := range members(sh.data.model) {
		fmt.Fprintf(sh.out, "  %s %s\n", f.Name, f.Type)
	}
}

func withPrefix(candidates []string, prefix, head string) []string {
	var out []string
	lower := strings.ToLower(prefix)
	for _, c := range candidates {
		if strings.HasPrefix(strings.ToLower(c), lower) {
			out = append(out, head+c)
		}
	}
	return out
}
