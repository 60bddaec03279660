package usecase

import (
	"time"

	"github.com/channelrelay/relay/internal/biz/domain"
)

// Clock abstracts time so waits can be faked in tests
type Clock interface {
	Now() time.Time
	// Sleep blocks for d. It is not cancellable.
	Sleep(d time.Duration)
}

// SystemClock is the wall clock
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

type retryEntry struct {
	channel *domain.Channel
	due     time.Time
}

// RetryTable holds rate limited channels and the time each may be retried
type RetryTable struct {
	entries []retryEntry
}

// Schedule defers a channel until due. A channel already in the table keeps its first entry.
func (t *RetryTable) Schedule(ch *domain.Channel, due time.Time) {
	for _, e := range t.entries {
		if e.channel == ch {
			return
		}
	}
	t.entries = append(t.entries, retryEntry{channel: ch, due: due})
}

// Len returns the number of pending channels
func (t *RetryTable) Len() int {
	return len(t.entries)
}

// Due returns the due time of a pending channel
func (t *RetryTable) Due(ch *domain.Channel) (time.Time, bool) {
	for _, e := range t.entries {
		if e.channel == ch {
			return e.due, true
		}
	}
	return time.Time{}, false
}

// Latest returns the furthest due time, zero when empty
func (t *RetryTable) Latest() time.Time {
	var latest time.Time
	for _, e := range t.entries {
		if e.due.After(latest) {
			latest = e.due
		}
	}
	return latest
}

// PopDue removes and returns the channels due at now, in the order they were scheduled
func (t *RetryTable) PopDue(now time.Time) []*domain.Channel {
	var due []*domain.Channel
	kept := t.entries[:0]
	for _, e := range t.entries {
		if !e.due.After(now) {
			due = append(due, e.channel)
		} else {
			kept = append(kept, e)
		}
	}
	t.entries = kept
	return due
}
