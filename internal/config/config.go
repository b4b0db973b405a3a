// Package config loads binderscan settings from CUE.
//
// An embedded closed #Config schema carries every default; a user file is
// unified with it, so unknown fields and out-of-range values are rejected
// by CUE before anything is decoded.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaCUE string

// Resolver configures the dispatch resolver and classifier.
type Resolver struct {
	MaxRounds         int      `json:"maxRounds"`
	SentinelCode      int64    `json:"sentinelCode"`
	DelegatePattern   string   `json:"delegatePattern"`
	OpaqueClasses     []string `json:"opaqueClasses"`
	SplitHelperPrefix string   `json:"splitHelperPrefix"`
	SplitHelperSuffix string   `json:"splitHelperSuffix"`
	SplitHelperDepth  int      `json:"splitHelperDepth"`
}

// Scan configures the batch pipeline.
type Scan struct {
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queueSize"`
	Backoff         string `json:"backoff"`
	MaxBackoff      string `json:"maxBackoff"`
	DispatchClass   string `json:"dispatchClass"`
	DispatchMethod  string `json:"dispatchMethod"`
	SyntheticPrefix string `json:"syntheticPrefix"`
}

// Summary configures the call-chain summarizer.
type Summary struct {
	MaxChainDepth  int      `json:"maxChainDepth"`
	IgnoredClasses []string `json:"ignoredClasses"`
	IgnoredMethods []string `json:"ignoredMethods"`
}

// Cache configures in-memory caches.
type Cache struct {
	Bodies int `json:"bodies"`
}

// Config is the complete, defaulted configuration.
type Config struct {
	Resolver Resolver `json:"resolver"`
	Scan     Scan     `json:"scan"`
	Summary  Summary  `json:"summary"`
	Cache    Cache    `json:"cache"`
}

// BackoffDuration parses Scan.Backoff. Load has already validated it.
func (s Scan) BackoffDuration() time.Duration {
	d, _ := time.ParseDuration(s.Backoff)
	return d
}

// MaxBackoffDuration parses Scan.MaxBackoff. Load has already validated it.
func (s Scan) MaxBackoffDuration() time.Duration {
	d, _ := time.ParseDuration(s.MaxBackoff)
	return d
}

// Default returns the configuration with every default applied.
func Default() (*Config, error) {
	return Parse("default", nil)
}

// Load reads a CUE file and unifies it with the schema. An empty path
// yields the defaults; a path that does not exist is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default()
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, src)
}

// Parse unifies src, named filename in error messages, with the schema
// and decodes the result.
func Parse(filename string, src []byte) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	value := def
	if len(src) > 0 {
		user := ctx.CompileBytes(src, cue.Filename(filename))
		if err := user.Err(); err != nil {
			return nil, fmt.Errorf("%s: %s", filename, errors.Details(err, nil))
		}
		value = def.Unify(user)
	}

	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("%s: %s", filename, errors.Details(err, nil))
	}

	var cfg Config
	if err := value.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	for _, d := range []struct{ field, v string }{
		{"scan.backoff", cfg.Scan.Backoff},
		{"scan.maxBackoff", cfg.Scan.MaxBackoff},
	} {
		if _, err := time.ParseDuration(d.v); err != nil {
			return nil, fmt.Errorf("%s: %s: %w", filename, d.field, err)
		}
	}
	return &cfg, nil
}
