package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/sandrolain/goshape/pkg/parser"
)

var docMatch bool

var docCmd = &cobra.Command{
	Use:   "doc <expression>",
	Short: "Translate an expression into an aggregation document",
	Long: `Translates an expression into an aggregation expression document. The
document model is taken from the input data.

Examples:
  goshape doc -d people.json "Orders(Status = 'Done'):sum(Total)"
  goshape doc -d people.json --match "Age > 30"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDoc,
}

func init() {
	rootCmd.AddCommand(docCmd)
	addDataFlags(docCmd)
	docCmd.Flags().BoolVarP(&docMatch, "match", "m", false, "wrap a boolean expression into a $match stage")
}

func runDoc(cmd *cobra.Command, args []string) error {
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

	b := documentBuilder()
	if docMatch {
		d, err := b.Predicate(expr, data.model)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), d.Match())
	}
	d, err := b.Build(expr, data.model)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), d)
}
