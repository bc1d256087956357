package event

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"
)

// Kind identifies which chat event an envelope represents.
type Kind int

const (
	// KindUnrecognized covers undecoded envelopes and unknown event names.
	KindUnrecognized Kind = iota
	// KindMessageSent is a MessageSentToTopic event.
	KindMessageSent
	// KindKarmaChanged is a KarmaChanged event.
	KindKarmaChanged
	// KindTopicCreated is a TopicCreated event.
	KindTopicCreated
)

// String returns the label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindMessageSent:
		return "message_sent"
	case KindKarmaChanged:
		return "karma_changed"
	case KindTopicCreated:
		return "topic_created"
	default:
		return "unrecognized"
	}
}

// MessagePayload is the typed content of a MessageSentToTopic event.
type MessagePayload struct {
	User      string
	UserID    string
	Message   string
	MessageID string
	Topic     string
	Timestamp time.Time
}

// KarmaPayload is the typed content of a KarmaChanged event.
type KarmaPayload struct {
	User      string
	UserID    string
	Karma     string
	Timestamp time.Time
}

// TopicPayload is the typed content of a TopicCreated event.
type TopicPayload struct {
	TopicID int
	Topic   string
}

// Classified is the tagged result of Classify. Exactly one payload is set,
// matching Kind; all are nil for KindUnrecognized.
type Classified struct {
	Kind    Kind
	Key     DedupKey
	Message *MessagePayload
	Karma   *KarmaPayload
	Topic   *TopicPayload
}

// Classify maps an envelope onto the chat domain. It is pure and never fails:
// missing arguments are replaced by their defaults.
func Classify(ev ContractEvent) Classified {
	c := Classified{Kind: KindUnrecognized, Key: ev.Key()}
	if !ev.Decoded {
		return c
	}

	switch ev.EventName {
	case NameMessageSentToTopic:
		c.Kind = KindMessageSent
		c.Message = &MessagePayload{
			User:      argString(ev.Args, "user", ""),
			UserID:    argString(ev.Args, "userId", ""),
			Message:   argString(ev.Args, "message", ""),
			MessageID: argString(ev.Args, "msgId", "0"),
			Topic:     argString(ev.Args, "topic", ""),
			Timestamp: ev.Timestamp,
		}
	case NameKarmaChanged:
		c.Kind = KindKarmaChanged
		c.Karma = &KarmaPayload{
			User:      argString(ev.Args, "user", ""),
			UserID:    argString(ev.Args, "userId", ""),
			Karma:     argString(ev.Args, "karma", "0"),
			Timestamp: ev.Timestamp,
		}
	case NameTopicCreated:
		c.Kind = KindTopicCreated
		c.Topic = &TopicPayload{
			TopicID: argInt(ev.Args, "topicId"),
			Topic:   argString(ev.Args, "topic", ""),
		}
	}
	return c
}

// argString renders an argument as text. Empty or absent values yield def.
func argString(args map[string]any, key, def string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return def
	}

	var s string
	switch val := v.(type) {
	case string:
		s = val
	case *big.Int:
		if val == nil {
			return def
		}
		s = val.String()
	case fmt.Stringer:
		// json.Number and ethtypes integer wrappers
		s = val.String()
		if s == "<nil>" {
			return def
		}
	case int:
		s = strconv.Itoa(val)
	case int64:
		s = strconv.FormatInt(val, 10)
	case int32:
		s = strconv.FormatInt(int64(val), 10)
	case uint:
		s = strconv.FormatUint(uint64(val), 10)
	case uint64:
		s = strconv.FormatUint(val, 10)
	case uint32:
		s = strconv.FormatUint(uint64(val), 10)
	case float64:
		s = strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(val)
	default:
		s = fmt.Sprint(val)
	}

	if s == "" {
		return def
	}
	return s
}

// argInt reads an integer argument, yielding 0 when absent, malformed,
// negative or out of range.
func argInt(args map[string]any, key string) int {
	v, ok := args[key]
	if !ok || v == nil {
		return 0
	}

	var n int64
	switch val := v.(type) {
	case int:
		n = int64(val)
	case int64:
		n = val
	case int32:
		n = int64(val)
	case uint64:
		if val > math.MaxInt32 {
			return 0
		}
		n = int64(val)
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return 0
		}
		n = int64(val)
	default:
		parsed, err := strconv.ParseInt(argString(args, key, "0"), 10, 64)
		if err != nil {
			return 0
		}
		n = parsed
	}

	if n < 0 || n > math.MaxInt32 {
		return 0
	}
	return int(n)
}
