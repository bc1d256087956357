package testutil

// FixedSessionGenerator returns the same session id every time.
//
// Unlike engine.FixedGenerator which returns ids in sequence, this generator
// always returns the same id, so every identity switch in a scenario logs and
// snapshots under one stable id.
//
// Thread-safety: FixedSessionGenerator is stateless and safe for concurrent use.
type FixedSessionGenerator struct {
	id string
}

// NewFixedSessionGenerator creates a generator for id. An empty id becomes
// "test-session-default".
func NewFixedSessionGenerator(id string) *FixedSessionGenerator {
	if id == "" {
		id = "test-session-default"
	}
	return &FixedSessionGenerator{id: id}
}

// Generate returns the fixed id.
func (g *FixedSessionGenerator) Generate() string {
	return g.id
}
