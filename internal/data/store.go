package data

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/channelrelay/relay/internal/biz/domain"
	"github.com/channelrelay/relay/internal/biz/repo"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewULID returns a time-sortable id
func NewULID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// messageStore implements the message store on SQLite
type messageStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewMessageStore creates a new message store
func NewMessageStore(dbPath string) (repo.MessageStore, error) {
	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}

	// Create messages table
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			fingerprint TEXT UNIQUE NOT NULL,
			channel TEXT NOT NULL,
			message_id INTEGER NOT NULL,
			published_at INTEGER NOT NULL,
			text TEXT NOT NULL DEFAULT '',
			display_text TEXT NOT NULL DEFAULT '',
			media TEXT NOT NULL DEFAULT '[]',
			group_id TEXT NOT NULL DEFAULT '',
			views INTEGER NOT NULL DEFAULT 0,
			forwards INTEGER NOT NULL DEFAULT 0,
			link TEXT NOT NULL DEFAULT '',
			urgency_level TEXT NOT NULL DEFAULT '',
			urgency_score REAL NOT NULL DEFAULT 0,
			urgency_source TEXT NOT NULL DEFAULT '',
			alert_category TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create messages table: %w", err)
	}

	// Create indexes
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at)`)
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel, published_at)`)

	// Create channel activity table
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS channel_activity (
			channel TEXT PRIMARY KEY,
			last_seen INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create channel_activity table: %w", err)
	}

	// Create export cursor table
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS export_cursors (
			name TEXT PRIMARY KEY,
			position INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create export_cursors table: %w", err)
	}

	return &messageStore{db: db, now: time.Now}, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *messageStore) insert(ctx context.Context, ex execer, event *domain.MessageEvent, fp domain.Fingerprint) (bool, error) {
	media, err := json.Marshal(event.Media)
	if err != nil {
		return false, fmt.Errorf("failed to encode media: %w", err)
	}

	var level, source string
	var score float64
	if event.Urgency != nil {
		level, source, score = string(event.Urgency.Level), string(event.Urgency.Source), event.Urgency.Score
	}

	now := s.now()
	res, err := ex.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages (
			id, fingerprint, channel, message_id, published_at, text, display_text, media,
			group_id, views, forwards, link, urgency_level, urgency_score, urgency_source,
			alert_category, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		NewULID(now),
		string(fp),
		event.Channel,
		event.MessageID,
		event.Timestamp.Unix(),
		event.Text,
		event.DisplayText,
		string(media),
		event.GroupID,
		event.Views,
		event.Forwards,
		event.Link,
		level,
		score,
		source,
		event.AlertCategory(),
		now.UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to save message: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return affected > 0, nil
}

// SaveEvent stores a post, ignoring a fingerprint that already exists
func (s *messageStore) SaveEvent(ctx context.Context, event *domain.MessageEvent, fp domain.Fingerprint) (bool, error) {
	return s.insert(ctx, s.db, event, fp)
}

// SaveEvents stores posts in one transaction
func (s *messageStore) SaveEvents(ctx context.Context, events []*domain.MessageEvent) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for _, ev := range events {
		ok, err := s.insert(ctx, tx, ev, domain.NewFingerprint(ev.Text, ev.Timestamp))
		if err != nil {
			return 0, err
		}
		if ok {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit messages: %w", err)
	}
	return inserted, nil
}

// HasFingerprint checks whether the content was already stored
func (s *messageStore) HasFingerprint(ctx context.Context, fp domain.Fingerprint) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE fingerprint = ?`, string(fp)).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query fingerprint: %w", err)
	}
	return true, nil
}

// UpdateLastSeen records channel activity; an older time never replaces a newer one
func (s *messageStore) UpdateLastSeen(ctx context.Context, channel string, t time.Time) error {
	return s.upsertLastSeen(ctx, s.db, channel, t)
}

func (s *messageStore) upsertLastSeen(ctx context.Context, ex execer, channel string, t time.Time) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO channel_activity (channel, last_seen) VALUES (?, ?)
		ON CONFLICT(channel) DO UPDATE SET last_seen = MAX(last_seen, excluded.last_seen)
	`, channel, t.Unix())
	if err != nil {
		return fmt.Errorf("failed to update last seen: %w", err)
	}
	return nil
}

// UpdateLastSeenBatch records activity for many channels in one transaction
func (s *messageStore) UpdateLastSeenBatch(ctx context.Context, seen map[string]time.Time) error {
	if len(seen) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for channel, t := range seen {
		if err := s.upsertLastSeen(ctx, tx, channel, t); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit last seen: %w", err)
	}
	return nil
}

// LastSeen gets the last activity time per channel
func (s *messageStore) LastSeen(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT channel, last_seen FROM channel_activity`)
	if err != nil {
		return nil, fmt.Errorf("failed to query last seen: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]time.Time)
	for rows.Next() {
		var channel string
		var ts int64
		if err := rows.Scan(&channel, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan last seen: %w", err)
		}
		seen[channel] = time.Unix(ts, 0)
	}
	return seen, rows.Err()
}

// ListSince lists posts created after the given time, oldest first
func (s *messageStore) ListSince(ctx context.Context, after time.Time, limit int) ([]*repo.StoredEvent, error) {
	if limit <= 0 {
		limit = 500
	}

	var afterNano int64
	if !after.IsZero() {
		afterNano = after.UnixNano()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, fingerprint, channel, message_id, published_at, text, display_text, media,
			group_id, views, forwards, link, urgency_level, urgency_score, urgency_source,
			alert_category, created_at
		FROM messages
		WHERE created_at > ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`, afterNano, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []*repo.StoredEvent
	for rows.Next() {
		var (
			stored                   repo.StoredEvent
			ev                       domain.MessageEvent
			fp, media, level, source string
			display, alert           string
			publishedAt, createdAt   int64
			score                    float64
		)
		err := rows.Scan(&stored.ID, &fp, &ev.Channel, &ev.MessageID, &publishedAt, &ev.Text, &display, &media,
			&ev.GroupID, &ev.Views, &ev.Forwards, &ev.Link, &level, &score, &source, &alert, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		ev.Timestamp = time.Unix(publishedAt, 0)
		if err := json.Unmarshal([]byte(media), &ev.Media); err != nil {
			return nil, fmt.Errorf("failed to decode media of %s: %w", stored.ID, err)
		}
		if level != "" || display != "" {
			var match *domain.AlertMatch
			if alert != "" {
				match = &domain.AlertMatch{Category: alert}
			}
			urgency := domain.Urgency{Level: domain.UrgencyLevel(level), Score: score, Source: domain.Provenance(source)}
			_ = ev.Decorate(display, urgency, match)
		}

		stored.Fingerprint = domain.Fingerprint(fp)
		stored.Event = &ev
		stored.CreatedAt = time.Unix(0, createdAt)
		out = append(out, &stored)
	}
	return out, rows.Err()
}

// ExportCursor returns the position of the named exporter
func (s *messageStore) ExportCursor(ctx context.Context, name string) (time.Time, error) {
	var position int64
	err := s.db.QueryRowContext(ctx, `SELECT position FROM export_cursors WHERE name = ?`, name).Scan(&position)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query export cursor: %w", err)
	}
	return time.Unix(0, position), nil
}

// SetExportCursor advances the named exporter
func (s *messageStore) SetExportCursor(ctx context.Context, name string, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO export_cursors (name, position) VALUES (?, ?)
	`, name, t.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save export cursor: %w", err)
	}
	return nil
}

// Close closes the database
func (s *messageStore) Close() error {
	return s.db.Close()
}
