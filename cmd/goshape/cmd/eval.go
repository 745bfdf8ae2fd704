package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sandrolain/goshape/pkg/parser"
	"github.com/sandrolain/goshape/pkg/transform"
)

var (
	evalWhere bool
	evalType  bool
)

var evalCmd = &cobra.Command{
	Use:   "eval <expression>",
	Short: "Evaluate an expression against every document",
	Long: `Evaluates an expression against every input document and prints one
JSON value per line. With --where the expression must be boolean and the
matching documents are printed instead; against --sqlite the filter is
pushed down to the database where possible.

Examples:
  goshape eval -d people.json "Name:upper"
  goshape eval -d people.yaml --where "Age > 30"
  goshape eval --sqlite shop.db --table orders --where "total > 100"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEval,
}

func init() {
	rootCmd.AddCommand(evalCmd)
	addDataFlags(evalCmd)
	evalCmd.Flags().BoolVarP(&evalWhere, "where", "w", false, "filter the documents instead of mapping them")
	evalCmd.Flags().BoolVar(&evalType, "type", false, "print the static type before the results")
}

func runEval(cmd *cobra.Command, args []string) error {
	ctx, cancel := withTimeout(cmd)
	defer cancel()

	expr, err := parser.Parse(strings.Join(args, " "), cfg.ParserOptions()...)
	if err != nil {
		return err
	}
	data, err := loadDataset(ctx)
	if err != nil {
		return err
	}
	defer data.Close()

	b, err := nativeBuilder()
	if err != nil {
		return err
	}

	var results []interface{}
	if evalWhere {
		results, err = data.where(ctx, expr, b)
		if err != nil {
			return err
		}
		if evalType {
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", data.model)
		}
	} else {
		e, err := b.Build(expr, data.model)
		if err != nil {
			return err
		}
		if evalType {
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", e.Type())
		}
		results, err = data.slice().Select(ctx, e)
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	for _, v := range results {
		text, err := transform.Text(v)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, text)
	}
	logger.Debug("evaluated", "expression", expr.Source(), "documents", len(data.docs), "results", len(results))
	return nil
}
