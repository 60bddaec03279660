package repo

import (
	"context"
	"time"

	"github.com/channelrelay/relay/internal/biz/domain"
)

// StoredEvent is a persisted post
type StoredEvent struct {
	ID          string
	Fingerprint domain.Fingerprint
	Event       *domain.MessageEvent
	CreatedAt   time.Time
}

// MessageStore is the durable message repository interface
// Responsible for dedup at the persistence boundary (SQLite)
type MessageStore interface {
	// SaveEvent stores a post. It returns false without error when the
	// fingerprint is already stored.
	SaveEvent(ctx context.Context, event *domain.MessageEvent, fp domain.Fingerprint) (bool, error)

	// SaveEvents stores many posts in one transaction and returns how many were new
	SaveEvents(ctx context.Context, events []*domain.MessageEvent) (int, error)

	// HasFingerprint checks whether the content was already stored
	HasFingerprint(ctx context.Context, fp domain.Fingerprint) (bool, error)

	// UpdateLastSeen records the newest activity time of a channel
	UpdateLastSeen(ctx context.Context, channel string, t time.Time) error

	// UpdateLastSeenBatch records activity for many channels at once
	UpdateLastSeenBatch(ctx context.Context, seen map[string]time.Time) error

	// LastSeen gets the last activity time per channel
	LastSeen(ctx context.Context) (map[string]time.Time, error)

	// ListSince lists stored posts created after the given time, oldest first
	ListSince(ctx context.Context, after time.Time, limit int) ([]*StoredEvent, error)

	// ExportCursor returns the creation time of the last exported record
	// for the named exporter, zero when nothing was exported yet
	ExportCursor(ctx context.Context, name string) (time.Time, error)

	// SetExportCursor advances the named exporter's cursor
	SetExportCursor(ctx context.Context, name string, t time.Time) error

	Close() error
}
