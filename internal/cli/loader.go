package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/roach88/binderscan/internal/config"
	"github.com/roach88/binderscan/internal/engine"
	"github.com/roach88/binderscan/internal/harness"
	"github.com/roach88/binderscan/internal/ir"
	"github.com/roach88/binderscan/internal/summary"
)

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeNotFound     = "E005" // Path not found
	ErrCodeLoadFailed   = "E004" // Program failed to load
	ErrCodeNoClass      = "E008" // Class not declared
	ErrCodeNoMethod     = "E009" // Method not declared or ambiguous
	ErrCodeResolve      = "E010" // Resolution failed
	ErrCodeSlice        = "E011" // Slicing failed
	ErrCodeStore        = "E012" // Database error
	ErrCodeValidation   = "E100" // Program validation errors
	ErrCodeScanFailures = "E200" // Scan finished with failures
)

// loadProgram loads a program fixture or Go source through the front end
// matching its extension.
func loadProgram(path string, cfg *config.Config, logger *slog.Logger) (*ir.Program, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("program not found: %s", path))
		}
		return nil, WrapExitError(ExitCommandError, "error accessing program", err)
	}
	p, err := harness.LoadProgram(path, cfg.Cache.Bodies, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load program", err)
	}
	return p, nil
}

// errNoMethod distinguishes lookup failures from load failures.
var errNoMethod = errors.New("method not found")

// findMethod looks up a method of class by full signature or by bare name.
// A bare name must be unique within the class.
func findMethod(p *ir.Program, class, method string) (*ir.Method, error) {
	c := p.Class(class)
	if c == nil {
		return nil, fmt.Errorf("%w: class %s not declared", errNoMethod, class)
	}
	if strings.Contains(method, "(") {
		if m := c.Method(method); m != nil {
			return m, nil
		}
		return nil, fmt.Errorf("%w: %s#%s", errNoMethod, class, method)
	}

	candidates := c.MethodsNamed(method)
	switch len(candidates) {
	case 0:
		return nil, fmt.Errorf("%w: %s has no method %s", errNoMethod, class, method)
	case 1:
		return candidates[0], nil
	default:
		sigs := make([]string, len(candidates))
		for i, m := range candidates {
			sigs[i] = m.Signature()
		}
		return nil, fmt.Errorf("%w: %s#%s is ambiguous, use one of %s",
			errNoMethod, class, method, strings.Join(sigs, ", "))
	}
}

// parseBlockID accepts "3" and "b3".
func parseBlockID(s string) (ir.BlockID, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(s, "b"))
	if err != nil || n < 0 {
		return ir.NoBlock, fmt.Errorf("invalid block %q", s)
	}
	return ir.BlockID(n), nil
}

// resolverOptions maps the resolver configuration onto engine options.
func resolverOptions(cfg config.Resolver, logger *slog.Logger) []engine.Option {
	return []engine.Option{
		engine.WithMaxRounds(cfg.MaxRounds),
		engine.WithSentinel(cfg.SentinelCode),
		engine.WithDelegatePattern(cfg.DelegatePattern),
		engine.WithOpaqueClasses(cfg.OpaqueClasses...),
		engine.WithSplitHelper(cfg.SplitHelperPrefix, cfg.SplitHelperSuffix),
		engine.WithSplitHelperDepth(cfg.SplitHelperDepth),
		engine.WithLogger(logger),
	}
}

func newResolver(cfg *config.Config, logger *slog.Logger) *engine.Resolver {
	return engine.NewResolver(resolverOptions(cfg.Resolver, logger)...)
}

func newSummarizer(p *ir.Program, cfg *config.Config, logger *slog.Logger) *summary.Summarizer {
	return summary.New(p,
		summary.WithMaxChainDepth(cfg.Summary.MaxChainDepth),
		summary.WithIgnoredClasses(cfg.Summary.IgnoredClasses...),
		summary.WithIgnoredMethods(cfg.Summary.IgnoredMethods...),
		summary.WithLogger(logger),
	)
}
