// Package config loads the goshape command configuration and converts it
// into library options.
//
// Files are YAML (.yaml, .yml) or TOML (.toml). Missing values take the
// defaults of Default.
//
// # Example
//
//	# goshape.yaml
//	parser:
//	  max_depth: 64
//	eval:
//	  locale: it
//	projection:
//	  cache_size: 1024
//	  id_property: ID
//	log:
//	  level: debug
//	  format: json
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/sandrolain/goshape/pkg/cache"
	"github.com/sandrolain/goshape/pkg/native"
	"github.com/sandrolain/goshape/pkg/parser"
	"github.com/sandrolain/goshape/pkg/projection"
	"github.com/sandrolain/goshape/pkg/source"
)

// EnvVar names the variable LoadFromEnv reads the config path from.
const EnvVar = "GOSHAPE_CONFIG"

// Config holds the complete command configuration.
type Config struct {
	Parser     ParserConfig     `yaml:"parser" toml:"parser"`
	Eval       EvalConfig       `yaml:"eval" toml:"eval"`
	Projection ProjectionConfig `yaml:"projection" toml:"projection"`
	Source     SourceConfig     `yaml:"source" toml:"source"`
	Log        LogConfig        `yaml:"log" toml:"log"`
	REPL       REPLConfig       `yaml:"repl" toml:"repl"`
}

// ParserConfig holds parser settings.
type ParserConfig struct {
	MaxDepth int `yaml:"max_depth" toml:"max_depth"`
}

// EvalConfig holds native evaluation settings.
type EvalConfig struct {
	// Locale is a BCP 47 tag used by upper, lower and format.
	Locale string `yaml:"locale" toml:"locale"`
	// Now pins the clock used by daysAgo, as RFC 3339. Empty uses the
	// system clock.
	Now string `yaml:"now" toml:"now"`
}

// ProjectionConfig holds orchestrator settings.
type ProjectionConfig struct {
	CacheSize       int    `yaml:"cache_size" toml:"cache_size"`
	IDProperty      string `yaml:"id_property" toml:"id_property"`
	DefaultProperty string `yaml:"default_property" toml:"default_property"`
}

// SourceConfig holds query execution settings.
type SourceConfig struct {
	Workers int      `yaml:"workers" toml:"workers"`
	Timeout Duration `yaml:"timeout" toml:"timeout"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level     string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format    string `yaml:"format" toml:"format"` // text, json
	AddSource bool   `yaml:"add_source" toml:"add_source"`
}

// REPLConfig holds interactive shell settings.
type REPLConfig struct {
	HistoryFile string `yaml:"history_file" toml:"history_file"`
	Prompt      string `yaml:"prompt" toml:"prompt"`
}

// Duration wraps time.Duration for text decoding.
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration such as "30s".
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads a configuration file, choosing the format by extension.
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &c)
	case ".toml":
		_, err = toml.Decode(string(data), &c)
	default:
		return nil, fmt.Errorf("config %s: unsupported format %q", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &c, nil
}

// LoadFromEnv loads the file named by GOSHAPE_CONFIG, then ./goshape.yaml
// and ./goshape.toml. Without any of them it returns Default.
func LoadFromEnv() (*Config, error) {
	if path := os.Getenv(EnvVar); path != "" {
		return Load(path)
	}
	for _, p := range []string{"goshape.yaml", "goshape.yml", "goshape.toml"} {
		if _, err := os.Stat(p); err == nil {
			return Load(p)
		}
	}
	return Default(), nil
}

func (c *Config) applyDefaults() {
	if c.Parser.MaxDepth == 0 {
		c.Parser.MaxDepth = parser.DefaultMaxDepth
	}
	if c.Eval.Locale == "" {
		c.Eval.Locale = "en"
	}
	if c.Projection.CacheSize == 0 {
		c.Projection.CacheSize = cache.DefaultCapacity
	}
	if c.Projection.IDProperty == "" {
		c.Projection.IDProperty = projection.DefaultIDProperty
	}
	if c.Source.Timeout.Duration == 0 {
		c.Source.Timeout.Duration = 30 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.REPL.Prompt == "" {
		c.REPL.Prompt = "goshape> "
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Parser.MaxDepth < 0 {
		errs = append(errs, fmt.Errorf("parser.max_depth must not be negative, got %d", c.Parser.MaxDepth))
	}
	if _, err := language.Parse(c.Eval.Locale); err != nil {
		errs = append(errs, fmt.Errorf("eval.locale: %w", err))
	}
	if c.Eval.Now != "" {
		if _, err := time.Parse(time.RFC3339, c.Eval.Now); err != nil {
			errs = append(errs, fmt.Errorf("eval.now: %w", err))
		}
	}
	if c.Projection.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("projection.cache_size must not be negative, got %d", c.Projection.CacheSize))
	}
	if c.Source.Workers < 0 {
		errs = append(errs, fmt.Errorf("source.workers must not be negative, got %d", c.Source.Workers))
	}
	if c.Source.Timeout.Duration < 0 {
		errs = append(errs, fmt.Errorf("source.timeout must not be negative, got %s", c.Source.Timeout))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// ParserOptions converts the parser settings.
func (c *Config) ParserOptions() []parser.CompileOption {
	return []parser.CompileOption{parser.WithMaxDepth(c.Parser.MaxDepth)}
}

// NativeOptions converts the evaluation settings.
func (c *Config) NativeOptions(logger *slog.Logger) ([]native.Option, error) {
	logger = orDefault(logger)
	tag, err := language.Parse(c.Eval.Locale)
	if err != nil {
		return nil, fmt.Errorf("eval.locale: %w", err)
	}
	opts := []native.Option{native.WithLocale(tag), native.WithLogger(logger)}
	if c.Eval.Now != "" {
		now, err := time.Parse(time.RFC3339, c.Eval.Now)
		if err != nil {
			return nil, fmt.Errorf("eval.now: %w", err)
		}
		opts = append(opts, native.WithClock(func() time.Time { return now }))
	}
	return opts, nil
}

// ProjectionOptions converts the orchestrator settings.
func (c *Config) ProjectionOptions(logger *slog.Logger) []projection.Option {
	logger = orDefault(logger)
	opts := []projection.Option{
		projection.WithCacheSize(c.Projection.CacheSize),
		projection.WithIDProperty(c.Projection.IDProperty),
		projection.WithParserOptions(c.ParserOptions()...),
		projection.WithLogger(logger),
	}
	if c.Projection.DefaultProperty != "" {
		opts = append(opts, projection.WithDefaultProperty(c.Projection.DefaultProperty))
	}
	return opts
}

// SourceOptions converts the execution settings.
func (c *Config) SourceOptions(logger *slog.Logger) []source.Option {
	opts := []source.Option{source.WithLogger(orDefault(logger))}
	if c.Source.Workers > 0 {
		opts = append(opts, source.WithWorkers(c.Source.Workers))
	}
	return opts
}

// Logger builds the logger described by the log settings, writing to w.
func (c *Config) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: c.Log.AddSource,
	}
	var handler slog.Handler
	if strings.EqualFold(c.Log.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
