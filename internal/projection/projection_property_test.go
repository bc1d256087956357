package projection

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/roach88/chatsync/internal/event"
	"github.com/roach88/chatsync/internal/ledger"
)

// buildSnapshot turns generated integers into a mixed event stream. Each value
// picks a kind (mod 3) and a topic id (mod 4); a value repeated in the input
// reuses the same dedup key, modelling re-delivery.
func buildSnapshot(seeds []int) []event.ContractEvent {
	names := []string{"", "Sports", "Music", "General"}
	out := make([]event.ContractEvent, 0, len(seeds))
	for _, s := range seeds {
		if s < 0 {
			s = -s
		}
		id := s % 4
		switch s % 3 {
		case 0:
			out = append(out, topicEvent(txHash(s), 0, id, names[id]))
		case 1:
			out = append(out, msgEvent(txHash(s), 1, "u", "m", "1", names[id]))
		default:
			out = append(out, karmaEvent(txHash(s), 2, "u", "1"))
		}
	}
	return out
}

// TestProjectorDeterminism verifies views are pure functions of the snapshot.
// Property: Messages(s, f) == Messages(s, f) and Karma(s) == Karma(s) for any s, f
func TestProjectorDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("projections are repeatable", prop.ForAll(
		func(seeds []int, filter int) bool {
			snapshot := buildSnapshot(seeds)
			c := NewCatalog()
			c.Merge(snapshot, ledger.New())

			f := Filter(filter)
			m1 := Messages(snapshot, f, c)
			m2 := Messages(snapshot, f, c)
			k1 := Karma(snapshot)
			k2 := Karma(snapshot)
			return reflect.DeepEqual(m1, m2) && reflect.DeepEqual(k1, k2)
		},
		gen.SliceOf(gen.IntRange(0, 500)),
		gen.IntRange(-1, 4),
	))

	properties.TestingRun(t)
}

// TestCatalogRedeliveryIdempotent verifies each topic id appears once.
// Property: merging the full history any number of times never double-appends
func TestCatalogRedeliveryIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("ids are unique after repeated merges", prop.ForAll(
		func(seeds []int, rounds int) bool {
			snapshot := buildSnapshot(seeds)
			c := NewCatalog()
			l := ledger.New()

			c.Merge(snapshot, l)
			once := c.Topics()
			for i := 0; i < rounds; i++ {
				c.Merge(append(snapshot, snapshot...), l)
			}

			seen := make(map[int]bool)
			for _, tp := range c.Topics() {
				if seen[tp.ID] {
					return false
				}
				seen[tp.ID] = true
			}
			return reflect.DeepEqual(once, c.Topics())
		},
		gen.SliceOf(gen.IntRange(0, 500)),
		gen.IntRange(1, 4),
	))

	properties.TestingRun(t)
}

// TestDefaultTopicDisplaysGeneral verifies the id 0 display rule on both paths.
// Property: topic 0 with an empty name reads "General" whether learned by event or bulk fetch
func TestDefaultTopicDisplaysGeneral(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("topic 0 is General", prop.ForAll(
		func(names []string) bool {
			bulk := []event.Topic{{ID: 0, Name: ""}}
			for i, n := range names {
				bulk = append(bulk, event.Topic{ID: i + 1, Name: n})
			}

			fromBulk := &Catalog{index: make(map[int]int)}
			fromBulk.MergeBulk(bulk)
			fromEvents := NewCatalog()
			fromEvents.Merge([]event.ContractEvent{topicEvent("0x0", 0, 0, "")}, ledger.New())

			a, okA := fromBulk.Name(0)
			b, okB := fromEvents.Name(0)
			return okA && okB && a == "General" && b == "General"
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
