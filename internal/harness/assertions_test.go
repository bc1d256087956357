package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrace() []TraceEvent {
	r := NewResult()
	r.AddInvocationTrace("switch_identity", map[string]interface{}{"identity": "0xa"}, 1)
	r.AddCompletionTrace(CaseOK, nil, 2)
	r.AddInvocationTrace("send", map[string]interface{}{"text": "hi"}, 3)
	r.AddCompletionTrace("final", nil, 4)
	r.AddInvocationTrace("like", map[string]interface{}{"msg_id": "1"}, 5)
	r.AddCompletionTrace("final", nil, 6)
	return r.Trace
}

func sampleViews() map[string][]Row {
	return map[string][]Row{
		TableTopics: {
			{"id": 0, "name": "General"},
			{"id": 1, "name": "Go"},
		},
		TableKarma: {
			{"user": "0xb", "user_id": "b", "karma": "1"},
			{"user": "0xb", "user_id": "b", "karma": "2"},
		},
	}
}

// =============================================================================
// Trace assertions
// =============================================================================

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()
	assert.NoError(t, assertTraceContains(trace, Assertion{Action: "send"}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Action: "send", Args: map[string]interface{}{"text": "hi"}}))

	err := assertTraceContains(trace, Assertion{Action: "send", Args: map[string]interface{}{"text": "bye"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found in trace")
	assert.Contains(t, err.Error(), "[3] send")
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()
	assert.NoError(t, assertTraceOrder(trace, Assertion{Actions: []string{"switch_identity", "like"}}))

	err := assertTraceOrder(trace, Assertion{Actions: []string{"like", "send"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "should be before")

	err = assertTraceOrder(trace, Assertion{Actions: []string{"send", "dislike"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing step: dislike")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()
	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "like", Count: 1}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "dislike", Count: 0}))
	assert.Error(t, assertTraceCount(trace, Assertion{Action: "like", Count: 2}))
}

// =============================================================================
// View assertions
// =============================================================================

func TestAssertFinalState(t *testing.T) {
	views := sampleViews()

	assert.NoError(t, assertFinalState(views, Assertion{
		Table:  TableTopics,
		Where:  map[string]interface{}{"id": 1},
		Expect: map[string]interface{}{"name": "Go"},
	}))

	err := assertFinalState(views, Assertion{
		Table:  TableTopics,
		Where:  map[string]interface{}{"id": 9},
		Expect: map[string]interface{}{"name": "Go"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row not found")

	err = assertFinalState(views, Assertion{
		Table:  TableKarma,
		Where:  map[string]interface{}{"user_id": "b"},
		Expect: map[string]interface{}{"karma": "2"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")

	err = assertFinalState(views, Assertion{
		Table:  TableTopics,
		Where:  map[string]interface{}{"id": 1},
		Expect: map[string]interface{}{"title": "Go"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `field "title" to exist`)

	err = assertFinalState(views, Assertion{
		Table:  TableTopics,
		Where:  map[string]interface{}{"id": 1},
		Expect: map[string]interface{}{"name": "Rust"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `field "name" = Go`)
}

func TestAssertStateCount(t *testing.T) {
	views := sampleViews()
	assert.NoError(t, assertStateCount(views, Assertion{Table: TableKarma, Count: 2}))
	assert.NoError(t, assertStateCount(views, Assertion{Table: TableMessages, Count: 0}))
	assert.Error(t, assertStateCount(views, Assertion{Table: TableTopics, Count: 3}))
}

func TestAssertTransitions(t *testing.T) {
	got := []string{"Unknown->Checking", "Checking->Registered"}
	assert.NoError(t, assertTransitions(got, Assertion{Actions: got}))
	assert.Error(t, assertTransitions(got, Assertion{Actions: got[:1]}))
	assert.NoError(t, assertTransitions([]string{}, Assertion{}))
}

func TestEvaluateAssertions_CollectsFailures(t *testing.T) {
	r := NewResult()
	r.Trace = sampleTrace()
	r.Views = sampleViews()

	errs := EvaluateAssertions(r, []Assertion{
		{Type: AssertTraceCount, Action: "send", Count: 1},
		{Type: AssertTraceCount, Action: "send", Count: 5},
		{Type: "bogus"},
	})
	require.Len(t, errs, 2)
	assert.Contains(t, errs[1], `unknown assertion type "bogus"`)
}

// =============================================================================
// Value comparison
// =============================================================================

func TestValuesEqual(t *testing.T) {
	tests := []struct {
		name     string
		actual   interface{}
		expected interface{}
		want     bool
	}{
		{"int vs int64", int64(2), 2, true},
		{"float vs int", 4.0, 4, true},
		{"float vs float", 3.5, 3.5, true},
		{"number vs string", 2, "2", false},
		{"strings", "a", "a", true},
		{"nil vs nil", nil, nil, true},
		{"nil vs value", nil, "a", false},
		{"nested maps", map[string]interface{}{"a": int64(1)}, map[string]interface{}{"a": 1}, true},
		{"map size differs", map[string]interface{}{"a": 1, "b": 2}, map[string]interface{}{"a": 1}, false},
		{"slices", []interface{}{1, "x"}, []interface{}{int64(1), "x"}, true},
		{"bools", true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, valuesEqual(tt.actual, tt.expected))
		})
	}
}

func TestMatchArgs_SubsetSemantics(t *testing.T) {
	actual := map[string]interface{}{"a": 1, "b": "x"}
	assert.True(t, matchArgs(actual, nil))
	assert.True(t, matchArgs(actual, map[string]interface{}{"b": "x"}))
	assert.False(t, matchArgs(actual, map[string]interface{}{"c": 1}))
}
