package event

import (
	"strconv"
	"time"
)

// Event names emitted by the ChatApp contract.
const (
	NameMessageSentToTopic = "MessageSentToTopic"
	NameKarmaChanged       = "KarmaChanged"
	NameTopicCreated       = "TopicCreated"
	NameUserRegistered     = "UserRegistered"
)

// DefaultTopicID is the synthetic topic every catalog is seeded with.
const DefaultTopicID = 0

// DefaultTopicName is the display name of topic 0 when its stored name is empty.
const DefaultTopicName = "General"

// ContractEvent is one decoded log entry as supplied by the event source.
// It is immutable once received.
type ContractEvent struct {
	EventName       string         `json:"eventName" yaml:"eventName"`
	Decoded         bool           `json:"decoded" yaml:"decoded"`
	Args            map[string]any `json:"args,omitempty" yaml:"args,omitempty"`
	TransactionHash string         `json:"transactionHash" yaml:"transactionHash"`
	LogIndex        int64          `json:"logIndex" yaml:"logIndex"`
	Timestamp       time.Time      `json:"timestamp" yaml:"timestamp"`
}

// DedupKey identifies one event occurrence: transaction hash + "-" + log index.
type DedupKey string

// Key returns the dedup identity of the event.
func (e ContractEvent) Key() DedupKey {
	return DedupKey(e.TransactionHash + "-" + strconv.FormatInt(e.LogIndex, 10))
}

// Topic is one entry of the topic catalog.
type Topic struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// DisplayName returns the name shown for the topic. Topic 0 with an empty
// name displays as "General".
func (t Topic) DisplayName() string {
	return DisplayName(t.ID, t.Name)
}

// DisplayName normalizes a (id, name) pair the way every catalog path must.
func DisplayName(id int, name string) string {
	if id == DefaultTopicID && name == "" {
		return DefaultTopicName
	}
	return name
}

// Message is one derived chat message.
type Message struct {
	User              string    `json:"user"`
	UserID            string    `json:"userId"`
	Text              string    `json:"text"`
	MessageID         string    `json:"messageId"`
	Topic             string    `json:"topic"`
	SourceTransaction string    `json:"sourceTransaction"`
	Timestamp         time.Time `json:"timestamp"`
}

// KarmaUpdate is one entry of the reputation feed. Karma is the decimal
// integer exactly as reported by the event.
type KarmaUpdate struct {
	User              string    `json:"user"`
	UserID            string    `json:"userId"`
	Karma             string    `json:"karma"`
	SourceTransaction string    `json:"sourceTransaction"`
	Timestamp         time.Time `json:"timestamp"`
}

// SameSnapshot reports whether two snapshots contain the same event
// identities in the same order.
func SameSnapshot(a, b []ContractEvent) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key() != b[i].Key() || a[i].Decoded != b[i].Decoded {
			return false
		}
	}
	return true
}
