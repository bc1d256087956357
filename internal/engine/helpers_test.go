package engine

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/chatsync/internal/event"
	"github.com/roach88/chatsync/internal/registration"
	"github.com/roach88/chatsync/internal/testutil"
)

const (
	alice = "0x00000000000000000000000000000000000a11ce"
	bob   = "0x0000000000000000000000000000000000000b0b"
	carol = "0x000000000000000000000000000000000000ca01"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testOptions returns deterministic options: manual clock, fixed session id,
// no rating delay.
func testOptions(clock *testutil.ManualClock, extra ...Option) []Option {
	opts := []Option{
		WithLogger(discardLogger()),
		WithNow(clock.Now),
		WithSessionIDGenerator(testutil.NewFixedSessionGenerator("s-test")),
		WithRatingRefreshDelay(0),
	}
	return append(opts, extra...)
}

// transitionLog records registration transitions as "from->to".
type transitionLog struct {
	mu   sync.Mutex
	list []string
}

func (l *transitionLog) record(_ string, from, to registration.State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.list = append(l.list, from.String()+"->"+to.String())
}

func (l *transitionLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.list = nil
}

func (l *transitionLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.list...)
}

func txHash(n int) string {
	return fmt.Sprintf("0x%064x", n)
}

func msgEvent(n int, user, topic, msgID string) event.ContractEvent {
	return event.ContractEvent{
		EventName: event.NameMessageSentToTopic,
		Decoded:   true,
		Args: map[string]any{
			"user":    user,
			"userId":  "u" + msgID,
			"message": "text " + msgID,
			"msgId":   msgID,
			"topic":   topic,
		},
		TransactionHash: txHash(n),
	}
}

func karmaEvent(n int, user, karma string) event.ContractEvent {
	return event.ContractEvent{
		EventName:       event.NameKarmaChanged,
		Decoded:         true,
		Args:            map[string]any{"user": user, "karma": karma},
		TransactionHash: txHash(n),
	}
}

func topicEvent(n, id int, name string) event.ContractEvent {
	return event.ContractEvent{
		EventName:       event.NameTopicCreated,
		Decoded:         true,
		Args:            map[string]any{"topicId": id, "topic": name},
		TransactionHash: txHash(n),
	}
}

func topicIDs(topics []event.Topic) []int {
	ids := make([]int, len(topics))
	for i, t := range topics {
		ids[i] = t.ID
	}
	return ids
}

