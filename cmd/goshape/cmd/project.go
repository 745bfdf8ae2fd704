package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sandrolain/goshape/pkg/document"
	"github.com/sandrolain/goshape/pkg/native"
	"github.com/sandrolain/goshape/pkg/projection"
	"github.com/sandrolain/goshape/pkg/transform"
)

var projectBackend string

var projectCmd = &cobra.Command{
	Use:   "project <expression>...",
	Short: "Project several expressions at once",
	Long: `Projects every input document through a list of expressions. Each output
line carries the document identifier and one JSON value per expression.
An expression that fails to compile yields null and a warning; the other
columns are unaffected.

With --backend document the projection is printed as a $project stage.

Examples:
  goshape project -d customers.json Name "Orders:count" "Orders:sum(Total)"
  goshape project -d customers.json --backend document Name "Age > 30"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProject,
}

func init() {
	rootCmd.AddCommand(projectCmd)
	addDataFlags(projectCmd)
	projectCmd.Flags().StringVarP(&projectBackend, "backend", "b", "native", "native or document")
}

func runProject(cmd *cobra.Command, args []string) error {
	ctx, cancel := withTimeout(cmd)
	defer cancel()

	data, err := loadDataset(ctx)
	if err != nil {
		return err
	}
	defer data.Close()

	switch projectBackend {
	case "document":
		o := projection.New[*document.Document](documentBuilder(), cfg.ProjectionOptions(logger)...)
		p := o.Compile(data.model, args)
		warnColumns(p.Columns)
		return printJSON(cmd.OutOrStdout(), projection.Stage(p))
	case "native":
	default:
		return fmt.Errorf("unknown backend %q", projectBackend)
	}

	b, err := nativeBuilder()
	if err != nil {
		return err
	}
	o := projection.New[*native.Expression](b, cfg.ProjectionOptions(logger)...)
	p := o.Compile(data.model, args)
	warnColumns(p.Columns)

	rows, err := data.slice().Project(ctx, p)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		logger.Warn("evaluation errors", "error", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, row := range rows {
		r, err := transform.Transform(row, args)
		if err != nil {
			return err
		}
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

func warnColumns[A any](cols []projection.Column[A]) {
	for i, c := range cols {
		if !c.OK() {
			logger.Warn("column not compiled", "column", i, "expression", c.Expression, "error", c.Err)
		}
	}
}
