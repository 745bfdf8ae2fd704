package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sandrolain/goshape/pkg/functions"
	"github.com/sandrolain/goshape/pkg/parser"
	"github.com/sandrolain/goshape/pkg/types"
)

var tokensCmd = &cobra.Command{
	Use:   "tokens <expression>",
	Short: "Print the tokens of an expression",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTokens,
}

var parseCmd = &cobra.Command{
	Use:   "parse <expression>",
	Short: "Print the syntax tree of an expression",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runParse,
}

var functionsCmd = &cobra.Command{
	Use:   "functions",
	Short: "List the built-in functions",
	Args:  cobra.NoArgs,
	RunE:  runFunctions,
}

func init() {
	rootCmd.AddCommand(tokensCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(functionsCmd)
}

func runTokens(cmd *cobra.Command, args []string) error {
	tokens, err := parser.Tokenize(strings.Join(args, " "))
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, tok := range tokens {
		fmt.Fprintf(w, "%d\t%s\t%q\n", tok.Position, tok.Type, tok.Value)
	}
	return w.Flush()
}

func runParse(cmd *cobra.Command, args []string) error {
	expr, err := parser.Parse(strings.Join(args, " "), cfg.ParserOptions()...)
	if err != nil {
		return err
	}
	return types.Dump(cmd.OutOrStdout(), expr.Root())
}

func runFunctions(cmd *cobra.Command, _ []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCATEGORY\tARGS\tDESCRIPTION")
	for _, name := range functions.Names() {
		spec, _ := functions.Lookup(name)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", spec.Name, spec.Category, arity(spec), spec.Doc)
	}
	return w.Flush()
}

func arity(s *functions.Spec) string {
	switch {
	case s.MaxArgs == functions.Unbounded:
		return fmt.Sprintf("%d+", s.MinArgs)
	case s.MinArgs == s.MaxArgs:
		return fmt.Sprint(s.MinArgs)
	default:
		return fmt.Sprintf("%d-%d", s.MinArgs, s.MaxArgs)
	}
}
