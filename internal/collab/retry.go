package collab

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy configures read-side retries.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxInterval time.Duration
}

// DefaultRetryPolicy retries a read up to three times.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseBackoff: 100 * time.Millisecond,
	MaxInterval: 2 * time.Second,
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

func (p RetryPolicy) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseBackoff
	exp.Multiplier = 2
	exp.MaxInterval = p.MaxInterval
	exp.MaxElapsedTime = 0
	exp.Reset()

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)
}

func retryValue[T any](ctx context.Context, p RetryPolicy, op func() (T, error)) (T, error) {
	var out T
	err := backoff.Retry(func() error {
		v, err := op()
		if err != nil {
			return err
		}
		out = v
		return nil
	}, p.newBackOff(ctx))
	return out, err
}

// RetryingReader decorates a Reader with exponential-backoff retries.
//
// Only reads are retried. The engine never retries writes or its own
// operations; this decorator keeps retries on the collaborator side of the
// boundary.
type RetryingReader struct {
	next   Reader
	policy RetryPolicy
}

// NewRetryingReader wraps next with policy.
func NewRetryingReader(next Reader, policy RetryPolicy) *RetryingReader {
	return &RetryingReader{next: next, policy: policy}
}

func (r *RetryingReader) IsRegistered(ctx context.Context, identity string) (bool, error) {
	return retryValue(ctx, r.policy, func() (bool, error) {
		return r.next.IsRegistered(ctx, identity)
	})
}

func (r *RetryingReader) DisplayName(ctx context.Context, identity string) (string, error) {
	return retryValue(ctx, r.policy, func() (string, error) {
		return r.next.DisplayName(ctx, identity)
	})
}

func (r *RetryingReader) TopicCount(ctx context.Context) (int, error) {
	return retryValue(ctx, r.policy, func() (int, error) {
		return r.next.TopicCount(ctx)
	})
}

func (r *RetryingReader) TopicName(ctx context.Context, id int) (string, error) {
	return retryValue(ctx, r.policy, func() (string, error) {
		return r.next.TopicName(ctx, id)
	})
}

func (r *RetryingReader) TopicRating(ctx context.Context, id int) (RawRating, error) {
	return retryValue(ctx, r.policy, func() (RawRating, error) {
		return r.next.TopicRating(ctx, id)
	})
}

func (r *RetryingReader) UserTopicRating(ctx context.Context, identity string, id int) (int, error) {
	return retryValue(ctx, r.policy, func() (int, error) {
		return r.next.UserTopicRating(ctx, identity, id)
	})
}
