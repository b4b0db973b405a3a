package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines one dispatch-recovery check.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Program is the fixture to load: a .yaml program or Go source.
	// A relative path is resolved against the scenario file.
	Program string `yaml:"program"`

	// Method is the dispatch method key, "class#name(params)ret".
	Method string `yaml:"method"`

	// Param is the index of the request-code parameter.
	Param int `yaml:"param,omitempty"`

	// SlicePrefix names sliced handlers; the code is appended.
	// Defaults to DefaultSlicePrefix.
	SlicePrefix string `yaml:"slice_prefix,omitempty"`

	// Assertions validate the recovered code map.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion validates one property of a code map.
type Assertion struct {
	// Type is one of codes, standard, custom, absent or slice.
	Type string `yaml:"type"`

	// Code is the request code the assertion is about.
	Code *int64 `yaml:"code,omitempty"`

	// Codes is the exact recovered code list (codes).
	Codes []int64 `yaml:"codes,omitempty"`

	// Target is the expected callee key (standard).
	Target string `yaml:"target,omitempty"`

	// Entry is the expected entry block (custom).
	Entry *int `yaml:"entry,omitempty"`

	// Contains lists substrings of the sliced listing (slice).
	Contains []string `yaml:"contains,omitempty"`
}

// Assertion type constants.
const (
	AssertCodes    = "codes"
	AssertStandard = "standard"
	AssertCustom   = "custom"
	AssertAbsent   = "absent"
	AssertSlice    = "slice"
)

// DefaultSlicePrefix names sliced handlers when a scenario sets none.
const DefaultSlicePrefix = "do_txn_code_"

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Program != "" && !filepath.IsAbs(scenario.Program) {
		scenario.Program = filepath.Join(filepath.Dir(path), scenario.Program)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Program == "" {
		return fmt.Errorf("program is required")
	}
	if s.Method == "" {
		return fmt.Errorf("method is required")
	}
	if s.Param < 0 {
		return fmt.Errorf("param must be non-negative")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if _, err := os.Stat(s.Program); os.IsNotExist(err) {
		return fmt.Errorf("program file not found: %s", s.Program)
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertCodes:
		if a.Codes == nil {
			return fmt.Errorf("assertions[%d]: codes list is required for codes", index)
		}
		return nil
	case AssertStandard, AssertCustom, AssertAbsent, AssertSlice:
		if a.Code == nil {
			return fmt.Errorf("assertions[%d]: code is required for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	switch {
	case a.Type == AssertStandard && a.Target == "":
		return fmt.Errorf("assertions[%d]: target is required for standard", index)
	case a.Type == AssertCustom && a.Entry == nil:
		return fmt.Errorf("assertions[%d]: entry is required for custom", index)
	}
	return nil
}
