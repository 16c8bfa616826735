package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a data-driven rewrite conformance test.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Specs is the directory of CUE rule/query/strategy documents,
	// relative to the scenario file location.
	Specs string `yaml:"specs"`

	// Graph is the path to the YAML input graph fixture, relative to
	// the scenario file location.
	Graph string `yaml:"graph"`

	// Strategy names the strategy to run. May be empty when the specs
	// define exactly one.
	Strategy string `yaml:"strategy,omitempty"`

	// Token seeds the deterministic run token sequence. Defaults to the
	// scenario name.
	Token string `yaml:"token,omitempty"`

	// ExpectFailure inverts the strategy outcome check: the scenario
	// passes only when the strategy fails.
	ExpectFailure bool `yaml:"expect_failure,omitempty"`

	// MaxSteps bounds the run. Zero uses the engine default.
	MaxSteps int64 `yaml:"max_steps,omitempty"`

	// Assertions validate the run and the final graph.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion validates one property of a scenario run.
type Assertion struct {
	// Type selects the check:
	//   - "rule_applied": Rule committed exactly Count applications
	//   - "node_count": final graph has exactly Count nodes
	//   - "edge_count": final graph has exactly Count hyperedges
	//   - "label_count": exactly Count final nodes carry Label
	Type string `yaml:"type"`

	// Rule is the rule id (used by rule_applied).
	Rule string `yaml:"rule,omitempty"`

	// Label is the node label (used by label_count).
	Label string `yaml:"label,omitempty"`

	// Count is the expected exact count.
	Count int `yaml:"count"`
}

// Assertion type constants.
const (
	AssertRuleApplied = "rule_applied"
	AssertNodeCount   = "node_count"
	AssertEdgeCount   = "edge_count"
	AssertLabelCount  = "label_count"
)

// LoadScenario reads and parses a scenario YAML file. Relative specs and
// graph paths are resolved against the scenario file's directory.
// Returns an error if the file is malformed, contains unknown fields, or
// is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving relative paths against the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs
	// "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if basePath != "" {
		if scenario.Specs != "" && !filepath.IsAbs(scenario.Specs) {
			scenario.Specs = filepath.Join(basePath, scenario.Specs)
		}
		if scenario.Graph != "" && !filepath.IsAbs(scenario.Graph) {
			scenario.Graph = filepath.Join(basePath, scenario.Graph)
		}
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
	if s.Specs == "" {
		return fmt.Errorf("specs directory is required")
	}
	if s.Graph == "" {
		return fmt.Errorf("graph fixture is required")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.MaxSteps < 0 {
		return fmt.Errorf("max_steps must be non-negative")
	}

	if info, err := os.Stat(s.Specs); os.IsNotExist(err) || (err == nil && !info.IsDir()) {
		return fmt.Errorf("specs directory not found: %s", s.Specs)
	}
	if _, err := os.Stat(s.Graph); os.IsNotExist(err) {
		return fmt.Errorf("graph fixture not found: %s", s.Graph)
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}

	switch a.Type {
	case AssertRuleApplied:
		if a.Rule == "" {
			return fmt.Errorf("assertions[%d]: rule is required for rule_applied", index)
		}
	case AssertLabelCount:
		if a.Label == "" {
			return fmt.Errorf("assertions[%d]: label is required for label_count", index)
		}
	case AssertNodeCount, AssertEdgeCount:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
