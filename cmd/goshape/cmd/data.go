package cmd

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/sandrolain/goshape/pkg/accessor"
	"github.com/sandrolain/goshape/pkg/native"
	"github.com/sandrolain/goshape/pkg/source"
	"github.com/sandrolain/goshape/pkg/source/sqlsource"
	"github.com/sandrolain/goshape/pkg/types"
)

var (
	dataFile   string
	sqliteFile string
	tableName  string
)

func addDataFlags(c *cobra.Command) {
	c.Flags().StringVarP(&dataFile, "data", "d", "", "JSON, JSON lines or YAML documents; - reads standard input")
	c.Flags().StringVar(&sqliteFile, "sqlite", "", "SQLite database file")
	c.Flags().StringVar(&tableName, "table", "", "table read from --sqlite")
}

// dataset is the input of a command: documents with an inferred or
// described model, and the table they came from, if any.
type dataset struct {
	model *types.Type
	docs  []interface{}
	table *sqlsource.Table
	db    *sql.DB
}

func (d *dataset) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

func loadDataset(ctx context.Context) (*dataset, error) {
	switch {
	case sqliteFile != "" && dataFile != "":
		return nil, errors.New("--data and --sqlite are mutually exclusive")
	case sqliteFile != "":
		return openTable(ctx)
	case dataFile != "":
		docs, err := readDocuments(dataFile)
		if err != nil {
			return nil, err
		}
		name := strings.TrimSuffix(filepath.Base(dataFile), filepath.Ext(dataFile))
		schema := accessor.Infer(name, docs...)
		logger.Debug("inferred model", "file", dataFile, "documents", len(docs), "model", schema.Type().String())
		return &dataset{model: schema.Type(), docs: docs}, nil
	default:
		return nil, errors.New("no input: use --data or --sqlite")
	}
}

func openTable(ctx context.Context) (*dataset, error) {
	if tableName == "" {
		return nil, errors.New("--sqlite needs --table")
	}
	db, err := sql.Open("sqlite", sqliteFile)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", sqliteFile, err)
	}
	schema, err := sqlsource.Describe(ctx, db, tableName)
	if err != nil {
		db.Close()
		return nil, err
	}
	b, err := nativeBuilder()
	if err != nil {
		db.Close()
		return nil, err
	}
	table := sqlsource.New(db, tableName, schema, sqlsource.WithBuilder(b), sqlsource.WithLogger(logger))
	docs, err := table.All(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &dataset{model: table.Model(), docs: docs, table: table, db: db}, nil
}

// where returns the documents matching expr, pushing the filter down when
// the data comes from a table.
func (d *dataset) where(ctx context.Context, expr *types.Expression, b *native.Builder) ([]interface{}, error) {
	if d.table != nil {
		return d.table.Where(ctx, expr)
	}
	pred, err := b.Predicate(expr, d.model)
	if err != nil {
		return nil, err
	}
	return d.slice().Where(ctx, pred)
}

func (d *dataset) slice() *source.Slice[interface{}] {
	opts := append(cfg.SourceOptions(logger), source.WithModel(d.model))
	return source.NewSlice(d.docs, opts...)
}

// readDocuments reads the documents of a file. Top-level arrays are
// flattened, so a file may hold one array, one object or a stream of them.
func readDocuments(path string) ([]interface{}, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var docs []interface{}
	add := func(v interface{}) {
		if items, ok := v.([]interface{}); ok {
			docs = append(docs, items...)
			return
		}
		docs = append(docs, v)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		for {
			var v interface{}
			if err := dec.Decode(&v); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
			add(v)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		for {
			var v interface{}
			if err := dec.Decode(&v); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
			add(v)
		}
	}
	return docs, nil
}
