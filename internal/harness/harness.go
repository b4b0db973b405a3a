package harness

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/roach88/binderscan/internal/compiler"
	"github.com/roach88/binderscan/internal/engine"
	"github.com/roach88/binderscan/internal/gossa"
	"github.com/roach88/binderscan/internal/ir"
)

// Loader turns a program path into an ir.Program.
type Loader func(path string) (*ir.Program, error)

// Option configures Run.
type Option func(*runConfig)

type runConfig struct {
	loader   Loader
	resolver []engine.Option
	logger   *slog.Logger
}

// WithLoader replaces the program loader.
func WithLoader(l Loader) Option { return func(c *runConfig) { c.loader = l } }

// WithResolverOptions passes options to the dispatch resolver.
func WithResolverOptions(opts ...engine.Option) Option {
	return func(c *runConfig) { c.resolver = append(c.resolver, opts...) }
}

// WithLogger sets the logger for loading and resolution. Logs are
// discarded by default.
func WithLogger(l *slog.Logger) Option { return func(c *runConfig) { c.logger = l } }

// LoadProgram picks a front end by extension: .yaml and .yml files are
// compiled as program fixtures, anything else is loaded as Go source.
// cacheSize bounds the lifted-body cache; zero means the default.
func LoadProgram(path string, cacheSize int, logger *slog.Logger) (*ir.Program, error) {
	if cacheSize <= 0 {
		cacheSize = ir.DefaultBodyCacheSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return compiler.CompileFile(path, compiler.WithLogger(logger), compiler.WithBodyCache(cacheSize))
	default:
		return gossa.Load(path, gossa.WithLogger(logger), gossa.WithBodyCache(cacheSize))
	}
}

// Run executes a test scenario and returns the result.
//
// An error is returned when the scenario cannot be executed at all: the
// program does not load, the method does not exist or resolution fails.
// Failed assertions are reported in the result instead.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.loader == nil {
		logger := cfg.logger
		cfg.loader = func(path string) (*ir.Program, error) { return LoadProgram(path, 0, logger) }
	}

	p, err := cfg.loader(scenario.Program)
	if err != nil {
		return nil, fmt.Errorf("failed to load program: %w", err)
	}
	m := p.Method(scenario.Method)
	if m == nil {
		return nil, fmt.Errorf("method %s not found in %s", scenario.Method, scenario.Program)
	}

	resolverOpts := append([]engine.Option{engine.WithLogger(cfg.logger)}, cfg.resolver...)
	cm, err := engine.NewResolver(resolverOpts...).Resolve(m, scenario.Param)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", m.Key(), err)
	}

	prefix := scenario.SlicePrefix
	if prefix == "" {
		prefix = DefaultSlicePrefix
	}

	result := NewResult(m.Key())
	for _, e := range cm.Entries() {
		result.Entries = append(result.Entries, snapshotEntry(e, prefix))
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func snapshotEntry(e engine.Entry, prefix string) Entry {
	out := Entry{Code: e.Code, Kind: e.Transaction.Kind()}
	switch txn := e.Transaction.(type) {
	case engine.Standard:
		out.Target = txn.Target.Key()
	case engine.Custom:
		out.Block = txn.Entry.String()
		sliced, err := txn.Slice(prefix + strconv.FormatInt(e.Code, 10))
		if err != nil {
			out.SliceError = err.Error()
			break
		}
		body, err := sliced.Body()
		if err != nil {
			out.SliceError = err.Error()
			break
		}
		out.Slice = ir.Format(sliced, body)
	}
	return out
}
