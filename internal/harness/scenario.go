package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines one scripted conversation.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Chain seeds the simulated contract.
	Chain ChainSetup `yaml:"chain,omitempty"`

	// Setup steps run before the flow. They must succeed.
	Setup []FlowStep `yaml:"setup,omitempty"`

	// Flow contains the steps under test, each optionally checked against
	// an expected case and result.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and views.
	Assertions []Assertion `yaml:"assertions"`

	// SessionID is the fixed session id. If empty, defaults to
	// "test-session-default".
	SessionID string `yaml:"session_id,omitempty"`

	// ManualSync disables the implicit Session.Sync after every step.
	ManualSync bool `yaml:"manual_sync,omitempty"`
}

// ChainSetup describes the initial contract state.
type ChainSetup struct {
	// Async queues writes until a mine step.
	Async bool `yaml:"async,omitempty"`

	// Topics are created after topic 0 without emitting events.
	Topics []string `yaml:"topics,omitempty"`

	// Users are registered without emitting events.
	Users []UserSeed `yaml:"users,omitempty"`
}

// UserSeed is a pre-registered account.
type UserSeed struct {
	Identity string `yaml:"identity"`
	Name     string `yaml:"name"`
}

// FlowStep is one step of a scenario.
type FlowStep struct {
	// Invoke names the step (e.g. "register", "send").
	Invoke string `yaml:"invoke"`

	// Args contains the step arguments. May be omitted for steps without
	// arguments.
	Args map[string]interface{} `yaml:"args,omitempty"`

	// Expect specifies the expected completion. If nil, any case is
	// accepted.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies expected completion behavior.
type ExpectClause struct {
	// Case is the expected case: "final", "pending", "stale" or "ok" on
	// success, or an error case such as "validation" or "user_cancelled".
	Case string `yaml:"case"`

	// Result contains expected result field values (subset match).
	Result map[string]interface{} `yaml:"result,omitempty"`
}

// Assertion validates the trace or the final views.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": step appears in trace with args
	// - "trace_order": steps appear in order
	// - "trace_count": step appears exactly N times
	// - "final_state": exactly one view row matches where and expect
	// - "state_count": N view rows match where
	// - "transitions": registration transitions, exactly and in order
	Type string `yaml:"type"`

	// Action is the step name (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Args are the expected step arguments (trace_contains, subset match).
	Args map[string]interface{} `yaml:"args,omitempty"`

	// Table is the view name (final_state, state_count): messages, karma,
	// topics or session.
	Table string `yaml:"table,omitempty"`

	// Where filters view rows. All fields must match exactly.
	Where map[string]interface{} `yaml:"where,omitempty"`

	// Expect contains expected field values (final_state, subset match).
	Expect map[string]interface{} `yaml:"expect,omitempty"`

	// Count is the expected number of occurrences or rows.
	Count int `yaml:"count,omitempty"`

	// Actions is the expected step order (trace_order) or the expected
	// "From->To" transitions (transitions).
	Actions []string `yaml:"actions,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertStateCount    = "state_count"
	AssertTransitions   = "transitions"
)

// View table names.
const (
	TableMessages = "messages"
	TableKarma    = "karma"
	TableTopics   = "topics"
	TableSession  = "session"
)

var knownTables = map[string]bool{
	TableMessages: true,
	TableKarma:    true,
	TableTopics:   true,
	TableSession:  true,
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
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
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
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, u := range s.Chain.Users {
		if u.Identity == "" {
			return fmt.Errorf("chain.users[%d]: identity is required", i)
		}
		if u.Name == "" {
			return fmt.Errorf("chain.users[%d]: name is required", i)
		}
	}

	for i, step := range s.Setup {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step FlowStep) error {
	if step.Invoke == "" {
		return fmt.Errorf("invoke is required")
	}
	if _, ok := steps[step.Invoke]; !ok {
		return fmt.Errorf("unknown step %q", step.Invoke)
	}
	if step.Expect != nil && step.Expect.Case == "" {
		return fmt.Errorf("expect: case is required")
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if !knownTables[a.Table] {
			return fmt.Errorf("assertions[%d]: unknown table %q for final_state", index, a.Table)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertStateCount:
		if !knownTables[a.Table] {
			return fmt.Errorf("assertions[%d]: unknown table %q for state_count", index, a.Table)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for state_count", index)
		}
	case AssertTransitions:
		// An empty list asserts that no transition happened.
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
