package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sovereign/internal/batch"
	"github.com/roach88/sovereign/internal/ir"
	"github.com/roach88/sovereign/internal/store"
)

// DefaultStart is the scenario clock's start when none is given:
// 2024-01-01T00:00:00Z.
const DefaultStart int64 = 1704067200000

// Scenario is a scripted sequence of ledger operations plus the assertions
// checked once they have all run.
type Scenario struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Start       int64       `yaml:"start,omitempty"`
	Steps       []Step      `yaml:"steps"`
	Assertions  []Assertion `yaml:"assertions"`
}

// Step is one operation. Exactly one of the operation fields is set.
type Step struct {
	Seed    bool                  `yaml:"seed,omitempty"`
	Advance int64                 `yaml:"advance,omitempty"`
	Decide  []batch.DecisionInput `yaml:"decide,omitempty"`
	Log     []LogEntry            `yaml:"log,omitempty"`
	Status  *StatusChange         `yaml:"status,omitempty"`
	Logic   map[string]any        `yaml:"logic,omitempty"`

	// ExpectError makes the step pass only if it fails with an error
	// containing this text.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// LogEntry is an action log against a task referenced by title or id.
type LogEntry struct {
	Task    string          `yaml:"task"`
	Role    string          `yaml:"role"`
	Status  ir.ActionStatus `yaml:"status"`
	Minutes *int            `yaml:"minutes,omitempty"`
	Note    string          `yaml:"note,omitempty"`
}

// StatusChange moves a task referenced by title or id to a new status.
type StatusChange struct {
	Task string        `yaml:"task"`
	To   ir.TaskStatus `yaml:"to"`
}

// Assertion checks final ledger state.
type Assertion struct {
	// Type is one of AssertCount, AssertTaskStatus, AssertStats.
	Type string `yaml:"type"`

	// Table and Where select rows for count; Where keys must be indexed
	// columns.
	Table string         `yaml:"table,omitempty"`
	Where map[string]any `yaml:"where,omitempty"`
	Count *int           `yaml:"count,omitempty"`

	// Task and Status are used by task_status.
	Task   string        `yaml:"task,omitempty"`
	Status ir.TaskStatus `yaml:"status,omitempty"`

	// Expect is a subset of the metrics report's JSON fields (stats).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertCount      = "count"
	AssertTaskStatus = "task_status"
	AssertStats      = "stats"
)

// Step kind names, as they appear in traces.
const (
	StepSeed    = "seed"
	StepAdvance = "advance"
	StepDecide  = "decide"
	StepLog     = "log"
	StepStatus  = "status"
	StepLogic   = "logic"
)

// Kind names the operation a step performs, or "" if it sets none or
// more than one.
func (s Step) Kind() string {
	var kinds []string
	if s.Seed {
		kinds = append(kinds, StepSeed)
	}
	if s.Advance != 0 {
		kinds = append(kinds, StepAdvance)
	}
	if s.Decide != nil {
		kinds = append(kinds, StepDecide)
	}
	if s.Log != nil {
		kinds = append(kinds, StepLog)
	}
	if s.Status != nil {
		kinds = append(kinds, StepStatus)
	}
	if s.Logic != nil {
		kinds = append(kinds, StepLogic)
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict fields catch typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if scenario.Start == 0 {
		scenario.Start = DefaultStart
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
	if s.Start < 0 {
		return fmt.Errorf("start must be non-negative")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, s Step) error {
	switch s.Kind() {
	case "":
		return fmt.Errorf("steps[%d]: exactly one of seed, advance, decide, log, status, logic is required", index)
	case StepAdvance:
		if s.Advance < 0 {
			return fmt.Errorf("steps[%d]: advance must be positive", index)
		}
	case StepLog:
		for j, e := range s.Log {
			if e.Task == "" {
				return fmt.Errorf("steps[%d].log[%d]: task is required", index, j)
			}
		}
	case StepStatus:
		if s.Status.Task == "" {
			return fmt.Errorf("steps[%d].status: task is required", index)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertCount:
		if !store.Table(a.Table).Valid() {
			return fmt.Errorf("assertions[%d]: unknown table %q for count", index, a.Table)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required", index)
		}
	case AssertTaskStatus:
		if a.Task == "" {
			return fmt.Errorf("assertions[%d]: task is required for task_status", index)
		}
		if !a.Status.Valid() {
			return fmt.Errorf("assertions[%d]: unknown status %q for task_status", index, a.Status)
		}
	case AssertStats:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for stats", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
