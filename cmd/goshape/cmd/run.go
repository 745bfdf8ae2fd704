package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sandrolain/goshape/pkg/accessor"
	"github.com/sandrolain/goshape/pkg/parser"
	"github.com/sandrolain/goshape/pkg/transform"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Answer one JSON request read from standard input",
	Long: `Reads a single JSON request from standard input and writes a single JSON
response to standard output, for use from other languages.

  stdin:  {"query": "<expression>", "data": <object or array of objects>}
  stdout: {"result": <value>}    on success
          {"error": "<message>"} on failure (exit code 1)

An array of objects yields an array with one result per element.

Example:
  echo '{"query":"Name:upper","data":{"Name":"Ann"}}' | goshape run`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

type runRequest struct {
	Query string      `json:"query"`
	Data  interface{} `json:"data"`
}

type runResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func runRun(cmd *cobra.Command, _ []string) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	result, err := answer(cmd)
	if err != nil {
		if encErr := enc.Encode(runResponse{Error: err.Error()}); encErr != nil {
			return encErr
		}
		return err
	}
	return enc.Encode(runResponse{Result: json.RawMessage(result)})
}

func answer(cmd *cobra.Command) (string, error) {
	dec := json.NewDecoder(cmd.InOrStdin())
	dec.UseNumber()
	var req runRequest
	if err := dec.Decode(&req); err != nil {
		return "", fmt.Errorf("invalid request JSON: %w", err)
	}

	expr, err := parser.Parse(req.Query, cfg.ParserOptions()...)
	if err != nil {
		return "", err
	}
	items, many := req.Data.([]interface{})
	if !many {
		items = []interface{}{req.Data}
	}
	b, err := nativeBuilder()
	if err != nil {
		return "", err
	}
	e, err := b.Build(expr, accessor.Infer("data", items...).Type())
	if err != nil {
		return "", err
	}

	results := make([]interface{}, len(items))
	for i, item := range items {
		if results[i], err = e.Eval(item); err != nil {
			return "", err
		}
	}
	if many {
		return transform.Text(results)
	}
	return transform.Text(results[0])
}
