package simchain

import (
	"context"
	"strconv"

	"github.com/roach88/chatsync/internal/collab"
	"github.com/roach88/chatsync/internal/event"
)

// submit applies a write now, or queues it for Mine in asynchronous mode.
// apply validates against the state it runs on and mutates only on success.
func (c *Chain) submit(ctx context.Context, apply func(caller string) error) (collab.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return collab.Receipt{}, err
	}

	c.mu.Lock()
	if err := c.failNext; err != nil {
		c.failNext = nil
		c.mu.Unlock()
		return collab.Receipt{}, err
	}
	caller := c.caller
	if caller == "" {
		c.mu.Unlock()
		return collab.Receipt{}, ErrNoCaller
	}

	if c.synchronous {
		tx := c.peekTxLocked()
		err := apply(caller)
		c.mu.Unlock()
		if err != nil {
			return collab.Receipt{}, err
		}
		c.signal()
		return collab.Receipt{Synchronous: true, TxHash: tx}, nil
	}

	c.queue = append(c.queue, pending{caller: caller, apply: apply})
	tx := c.peekTxLocked()
	c.mu.Unlock()
	return collab.Receipt{Synchronous: false, TxHash: tx}, nil
}

// peekTxLocked returns the hash the next applied transaction will get. In
// asynchronous mode it is only a submission reference.
func (c *Chain) peekTxLocked() string {
	return txHash(c.txs + 1 + len(c.queue))
}

func (c *Chain) Register(ctx context.Context, name string) (collab.Receipt, error) {
	return c.submit(ctx, func(caller string) error {
		if _, ok := c.users[caller]; ok {
			return ErrAlreadyRegistered
		}
		c.users[caller] = &user{name: name}
		tx := c.nextTxLocked()
		c.emitLocked(tx, 0, event.NameUserRegistered, map[string]any{
			"user":   caller,
			"userId": name,
		})
		return nil
	})
}

func (c *Chain) SendMessage(ctx context.Context, text string) (collab.Receipt, error) {
	return c.submit(ctx, func(caller string) error {
		return c.sendLocked(caller, text, "")
	})
}

func (c *Chain) SendMessageToTopic(ctx context.Context, text string, topicID int) (collab.Receipt, error) {
	return c.submit(ctx, func(caller string) error {
		t, err := c.topicLocked(topicID)
		if err != nil {
			return err
		}
		return c.sendLocked(caller, text, t.name)
	})
}

// sendLocked stores a message. Message ids start at 1.
func (c *Chain) sendLocked(caller, text, topicName string) error {
	u, ok := c.users[caller]
	if !ok {
		return ErrNotRegistered
	}
	c.messages = append(c.messages, message{author: caller})
	id := len(c.messages)
	tx := c.nextTxLocked()
	c.emitLocked(tx, 0, event.NameMessageSentToTopic, map[string]any{
		"user":    caller,
		"userId":  u.name,
		"message": text,
		"msgId":   strconv.Itoa(id),
		"topic":   topicName,
	})
	return nil
}

func (c *Chain) LikeMessage(ctx context.Context, msgID string) (collab.Receipt, error) {
	return c.submit(ctx, func(caller string) error {
		return c.karmaLocked(caller, msgID, 1)
	})
}

func (c *Chain) DislikeMessage(ctx context.Context, msgID string) (collab.Receipt, error) {
	return c.submit(ctx, func(caller string) error {
		return c.karmaLocked(caller, msgID, -1)
	})
}

func (c *Chain) karmaLocked(caller, msgID string, delta int64) error {
	if _, ok := c.users[caller]; !ok {
		return ErrNotRegistered
	}
	id, err := strconv.Atoi(msgID)
	if err != nil || id < 1 || id > len(c.messages) {
		return ErrNoSuchMessage
	}
	author := c.messages[id-1].author
	u := c.users[author]
	u.karma += delta
	tx := c.nextTxLocked()
	c.emitLocked(tx, 0, event.NameKarmaChanged, map[string]any{
		"user":   author,
		"userId": u.name,
		"karma":  strconv.FormatInt(u.karma, 10),
	})
	return nil
}

func (c *Chain) CreateTopic(ctx context.Context, name string) (collab.Receipt, error) {
	return c.submit(ctx, func(caller string) error {
		if _, ok := c.users[caller]; !ok {
			return ErrNotRegistered
		}
		c.topics = append(c.topics, &topic{name: name, ratings: make(map[string]int)})
		tx := c.nextTxLocked()
		c.emitLocked(tx, 0, event.NameTopicCreated, map[string]any{
			"topicId": strconv.Itoa(len(c.topics) - 1),
			"topic":   name,
		})
		return nil
	})
}

// RateTopic records the caller's rating. Re-rating replaces the earlier
// rating. No event is emitted.
func (c *Chain) RateTopic(ctx context.Context, topicID, rating int) (collab.Receipt, error) {
	return c.submit(ctx, func(caller string) error {
		if _, ok := c.users[caller]; !ok {
			return ErrNotRegistered
		}
		t, err := c.topicLocked(topicID)
		if err != nil {
			return err
		}
		if rating < 1 || rating > 5 {
			return ErrBadRating
		}
		t.ratings[caller] = rating
		c.txs++
		return nil
	})
}
