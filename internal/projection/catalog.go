package projection

import (
	"strconv"

	"github.com/roach88/chatsync/internal/event"
	"github.com/roach88/chatsync/internal/ledger"
)

// Catalog is the ordered topic table for a session, seeded with topic 0.
//
// Order is discovery order. Ids are unique.
//
// Catalog is not safe for concurrent use; the owning session serializes access.
type Catalog struct {
	topics []event.Topic
	index  map[int]int // topic id -> position in topics
}

// MergeResult reports what one Merge pass did.
type MergeResult struct {
	// Added lists topics appended to the catalog, in discovery order.
	Added []event.Topic
	// Known counts TopicCreated events for ids already in the catalog.
	Known int
	// Duplicates counts TopicCreated events whose dedup key was already applied.
	Duplicates int
}

// NewCatalog creates a catalog holding only the default topic.
func NewCatalog() *Catalog {
	c := &Catalog{index: make(map[int]int)}
	c.add(event.Topic{ID: event.DefaultTopicID, Name: event.DefaultTopicName})
	return c
}

// Merge folds every not-yet-applied TopicCreated event of the snapshot into
// the catalog.
//
// For each such event: a new id with a non-empty name is appended and its key
// recorded; an id already present produces no mutation but its key is still
// recorded. A new id with an empty name is left unrecorded.
func (c *Catalog) Merge(snapshot []event.ContractEvent, l *ledger.Ledger) MergeResult {
	var res MergeResult
	for _, ev := range snapshot {
		cl := event.Classify(ev)
		if cl.Kind != event.KindTopicCreated {
			continue
		}
		if l.Seen(cl.Key) {
			res.Duplicates++
			continue
		}

		id, name := cl.Topic.TopicID, cl.Topic.Topic
		if c.Has(id) {
			l.Record(cl.Key)
			res.Known++
			continue
		}
		if name == "" {
			continue
		}

		t := event.Topic{ID: id, Name: event.DisplayName(id, name)}
		c.add(t)
		l.Record(cl.Key)
		res.Added = append(res.Added, t)
	}
	return res
}

// MergeBulk merges topics read from the contract by id. Unknown ids are
// appended in the order given; ids already present keep their name.
// Topic 0 with an empty name becomes "General"; any other empty name becomes
// "Topic <id>".
func (c *Catalog) MergeBulk(topics []event.Topic) []event.Topic {
	var added []event.Topic
	for _, t := range topics {
		if t.ID < 0 || c.Has(t.ID) {
			continue
		}
		t.Name = BulkName(t.ID, t.Name)
		c.add(t)
		added = append(added, t)
	}
	return added
}

// BulkName is the display name applied to a bulk-fetched topic.
func BulkName(id int, name string) string {
	if name != "" {
		return name
	}
	if id == event.DefaultTopicID {
		return event.DefaultTopicName
	}
	return "Topic " + strconv.Itoa(id)
}

// Topics returns a copy of the catalog in discovery order.
func (c *Catalog) Topics() []event.Topic {
	out := make([]event.Topic, len(c.topics))
	copy(out, c.topics)
	return out
}

// Name returns the display name associated with id.
func (c *Catalog) Name(id int) (string, bool) {
	pos, ok := c.index[id]
	if !ok {
		return "", false
	}
	return c.topics[pos].Name, true
}

// Has reports whether id is in the catalog.
func (c *Catalog) Has(id int) bool {
	_, ok := c.index[id]
	return ok
}

// Len returns the number of topics, including the default topic.
func (c *Catalog) Len() int {
	return len(c.topics)
}

func (c *Catalog) add(t event.Topic) {
	c.index[t.ID] = len(c.topics)
	c.topics = append(c.topics, t)
}
