package projection

import (
	"strconv"

	"github.com/roach88/chatsync/internal/event"
)

// Filter selects which topic's messages a view shows.
type Filter int

// AllTopics is the filter sentinel that matches every message.
const AllTopics Filter = -1

// String renders the filter for logs.
func (f Filter) String() string {
	if f == AllTopics {
		return "all"
	}
	return strconv.Itoa(int(f))
}

// Matches reports whether a message whose embedded topic name is msgTopic
// belongs to the filtered topic.
//
// Topic identity is by name at the event layer and by id at the view layer,
// so the rules are applied in this order:
//  1. AllTopics matches everything.
//  2. Topic 0 matches an empty name or "General".
//  3. Any other id matches the display name the catalog holds for it; an id
//     missing from the catalog matches nothing.
func Matches(msgTopic string, filter Filter, c *Catalog) bool {
	switch {
	case filter == AllTopics:
		return true
	case filter == event.DefaultTopicID:
		return msgTopic == "" || msgTopic == event.DefaultTopicName
	}

	name, ok := c.Name(int(filter))
	if !ok {
		return false
	}
	return msgTopic == name
}

// Messages projects every MessageSentToTopic event of the snapshot that
// matches filter, in snapshot order.
func Messages(snapshot []event.ContractEvent, filter Filter, c *Catalog) []event.Message {
	out := make([]event.Message, 0)
	for _, ev := range snapshot {
		cl := event.Classify(ev)
		if cl.Kind != event.KindMessageSent {
			continue
		}
		p := cl.Message
		if !Matches(p.Topic, filter, c) {
			continue
		}
		out = append(out, event.Message{
			User:              p.User,
			UserID:            p.UserID,
			Text:              p.Message,
			MessageID:         p.MessageID,
			Topic:             p.Topic,
			SourceTransaction: ev.TransactionHash,
			Timestamp:         p.Timestamp,
		})
	}
	return out
}
