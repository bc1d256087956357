package projection

import (
	"fmt"
	"time"

	"github.com/roach88/chatsync/internal/event"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func msgEvent(tx string, idx int64, user, text, msgID, topic string) event.ContractEvent {
	return event.ContractEvent{
		EventName: event.NameMessageSentToTopic,
		Decoded:   true,
		Args: map[string]any{
			"user":    user,
			"userId":  user + "-id",
			"message": text,
			"msgId":   msgID,
			"topic":   topic,
		},
		TransactionHash: tx,
		LogIndex:        idx,
		Timestamp:       baseTime.Add(time.Duration(idx) * time.Second),
	}
}

func karmaEvent(tx string, idx int64, user, karma string) event.ContractEvent {
	return event.ContractEvent{
		EventName:       event.NameKarmaChanged,
		Decoded:         true,
		Args:            map[string]any{"user": user, "userId": user + "-id", "karma": karma},
		TransactionHash: tx,
		LogIndex:        idx,
		Timestamp:       baseTime.Add(time.Duration(idx) * time.Second),
	}
}

func topicEvent(tx string, idx int64, id int, name string) event.ContractEvent {
	return event.ContractEvent{
		EventName:       event.NameTopicCreated,
		Decoded:         true,
		Args:            map[string]any{"topicId": id, "topic": name},
		TransactionHash: tx,
		LogIndex:        idx,
		Timestamp:       baseTime,
	}
}

func txHash(n int) string {
	return fmt.Sprintf("0x%04x", n)
}
