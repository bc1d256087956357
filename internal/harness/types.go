package harness

// Trace event types.
const (
	TraceInvocation = "invocation"
	TraceCompletion = "completion"
)

// TraceEvent records one step invocation or its completion.
type TraceEvent struct {
	Type   string                 `json:"type"` // "invocation" or "completion"
	Action string                 `json:"action,omitempty"`
	Args   map[string]interface{} `json:"args,omitempty"`
	Case   string                 `json:"case,omitempty"`
	Result map[string]interface{} `json:"result,omitempty"`
	Seq    int64                  `json:"seq"`
}

// Row is one row of a view table.
type Row = map[string]interface{}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses and assertions match.
	Pass bool `json:"pass"`

	// Trace contains all invocations and completions in order.
	Trace []TraceEvent `json:"trace"`

	// Transitions lists every registration transition as "From->To".
	Transitions []string `json:"transitions"`

	// Views holds the final view tables keyed by table name.
	Views map[string][]Row `json:"views"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:        true,
		Trace:       []TraceEvent{},
		Transitions: []string{},
		Views:       make(map[string][]Row),
		Errors:      []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddInvocationTrace adds an invocation to the trace.
func (r *Result) AddInvocationTrace(action string, args map[string]interface{}, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:   TraceInvocation,
		Action: action,
		Args:   args,
		Seq:    seq,
	})
}

// AddCompletionTrace adds a completion to the trace.
func (r *Result) AddCompletionTrace(outputCase string, result map[string]interface{}, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:   TraceCompletion,
		Case:   outputCase,
		Result: result,
		Seq:    seq,
	})
}
