// Package adapter defines the notification boundary for published feeds.
//
// Adapters tell downstream systems that a new canonical feed is available.
// Notifications are best effort: a failed notification never fails a run.
package adapter

import (
	"context"
	"fmt"
	"time"
)

// EventTypeFeedPublished is the only event type emitted.
const EventTypeFeedPublished = "feed_published"

// FeedPublishedEvent is the payload published after a successful publish.
type FeedPublishedEvent struct {
	ContractVersion string `json:"contract_version"`
	EventType       string `json:"event_type"` // always "feed_published"
	RunID           string `json:"run_id"`
	Feed            string `json:"feed"`
	Location        string `json:"location"`
	Timestamp       string `json:"timestamp"` // RFC 3339
	Attempt         int    `json:"attempt"`
	Batches         int    `json:"batches"`
	Records         int64  `json:"records"`
	Skipped         int64  `json:"skipped"`
	DurationMs      int64  `json:"duration_ms"`
}

// Adapter publishes feed notifications to a downstream system.
type Adapter interface {
	// Publish sends the event. Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *FeedPublishedEvent) error

	// Close releases adapter resources.
	Close() error
}

// BaseBackoff is the delay before the first retry.
const BaseBackoff = 500 * time.Millisecond

// Backoff returns the delay before retry n (1-based): base, 2*base, 4*base...
func Backoff(base time.Duration, n int) time.Duration {
	if n < 1 {
		return 0
	}
	return time.Duration(1<<uint(n-1)) * base
}

// Retry calls fn up to 1+retries times with exponential backoff between
// attempts. It stops early when fn succeeds, when permanent reports the error
// as non-retriable, or when ctx is done.
func Retry(ctx context.Context, retries int, base time.Duration, permanent func(error) bool, fn func(context.Context) error) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context canceled: %w", err)
		}

		if i > 0 {
			timer := time.NewTimer(Backoff(base, i))
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("context canceled during backoff: %w", ctx.Err())
			case <-timer.C:
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("non-retriable error: %w", lastErr)
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
