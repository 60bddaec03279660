package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/channelrelay/relay/internal/biz/domain"
	"github.com/channelrelay/relay/internal/biz/repo"
)

// archiveCursor is the export cursor name of the S3 exporter
const archiveCursor = "s3"

// ArchiveRecord is one JSONL line of an archive object
type ArchiveRecord struct {
	ID            string            `json:"id"`
	Fingerprint   string            `json:"fingerprint"`
	Channel       string            `json:"channel"`
	MessageID     int64             `json:"message_id"`
	PublishedAt   time.Time         `json:"published_at"`
	Text          string            `json:"text"`
	DisplayText   string            `json:"display_text,omitempty"`
	Media         []domain.MediaRef `json:"media,omitempty"`
	GroupID       string            `json:"group_id,omitempty"`
	Views         int               `json:"views,omitempty"`
	Forwards      int               `json:"forwards,omitempty"`
	Link          string            `json:"link,omitempty"`
	UrgencyLevel  string            `json:"urgency_level,omitempty"`
	UrgencyScore  float64           `json:"urgency_score,omitempty"`
	UrgencySource string            `json:"urgency_source,omitempty"`
	AlertCategory string            `json:"alert_category,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// NewArchiveRecord converts a stored post
func NewArchiveRecord(stored *repo.StoredEvent) ArchiveRecord {
	ev := stored.Event
	rec := ArchiveRecord{
		ID:            stored.ID,
		Fingerprint:   string(stored.Fingerprint),
		Channel:       ev.Channel,
		MessageID:     ev.MessageID,
		PublishedAt:   ev.Timestamp.UTC(),
		Text:          ev.Text,
		DisplayText:   ev.DisplayText,
		Media:         ev.Media,
		GroupID:       ev.GroupID,
		Views:         ev.Views,
		Forwards:      ev.Forwards,
		Link:          ev.Link,
		AlertCategory: ev.AlertCategory(),
		CreatedAt:     stored.CreatedAt.UTC(),
	}
	if ev.Urgency != nil {
		rec.UrgencyLevel = string(ev.Urgency.Level)
		rec.UrgencyScore = ev.Urgency.Score
		rec.UrgencySource = string(ev.Urgency.Source)
	}
	return rec
}

// ToEvent rebuilds the post, decorated when the record carries a classification
func (r ArchiveRecord) ToEvent() *domain.MessageEvent {
	ev := &domain.MessageEvent{
		Channel:   domain.NormalizeHandle(r.Channel),
		MessageID: r.MessageID,
		Timestamp: r.PublishedAt,
		Text:      r.Text,
		Media:     r.Media,
		GroupID:   r.GroupID,
		Views:     r.Views,
		Forwards:  r.Forwards,
		Link:      r.Link,
	}
	if r.UrgencyLevel != "" || r.DisplayText != "" {
		var alert *domain.AlertMatch
		if r.AlertCategory != "" {
			alert = &domain.AlertMatch{Category: r.AlertCategory}
		}
		level, _ := domain.ParseUrgencyLevel(r.UrgencyLevel)
		_ = ev.Decorate(r.DisplayText, domain.Urgency{
			Level:  level,
			Score:  r.UrgencyScore,
			Source: domain.Provenance(r.UrgencySource),
		}, alert)
	}
	return ev
}

// EncodeArchive writes records as JSONL
func EncodeArchive(w io.Writer, stored []*repo.StoredEvent) error {
	enc := json.NewEncoder(w)
	for _, s := range stored {
		if err := enc.Encode(NewArchiveRecord(s)); err != nil {
			return fmt.Errorf("failed to encode record %s: %w", s.ID, err)
		}
	}
	return nil
}

// DecodeArchive reads JSONL records. Blank lines are skipped.
func DecodeArchive(r io.Reader) ([]ArchiveRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var out []ArchiveRecord
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec ArchiveRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}
	return out, nil
}

// ArchiveConfig holds the exporter settings
type ArchiveConfig struct {
	Prefix     string
	Interval   time.Duration
	MaxRetries int
	BatchSize  int
}

// ArchiveExporter periodically uploads newly stored posts as JSONL objects
type ArchiveExporter struct {
	store   repo.MessageStore
	archive repo.ArchiveRepo
	config  ArchiveConfig
	metrics *Metrics
	logger  *slog.Logger

	backoff time.Duration // Base of the retry backoff
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewArchiveExporter creates a new exporter
func NewArchiveExporter(store repo.MessageStore, archive repo.ArchiveRepo, config ArchiveConfig, metrics *Metrics, logger *slog.Logger) *ArchiveExporter {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 1000
	}
	config.Prefix = strings.Trim(config.Prefix, "/")
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchiveExporter{
		store:   store,
		archive: archive,
		config:  config,
		metrics: metrics,
		logger:  logger.With("component", "archive"),
		backoff: time.Second,
		now:     time.Now,
	}
}

// Start starts the export loop
func (e *ArchiveExporter) Start(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(1)
	go e.loop()

	e.logger.Info("archive exporter started", "interval", e.config.Interval, "prefix", e.config.Prefix)
}

// Stop stops the export loop and waits for a running export
func (e *ArchiveExporter) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.logger.Info("archive exporter stopped")
}

func (e *ArchiveExporter) loop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.ExportOnce(e.ctx); err != nil && !errors.Is(err, context.Canceled) {
				e.logger.Error("archive export failed", "error", err)
			}
		}
	}
}

// ExportOnce uploads every record stored after the cursor and returns how many were exported.
// The cursor only advances past objects that were uploaded.
func (e *ArchiveExporter) ExportOnce(ctx context.Context) (int, error) {
	cursor, err := e.store.ExportCursor(ctx, archiveCursor)
	if err != nil {
		return 0, err
	}

	total := 0
	for {
		batch, err := e.store.ListSince(ctx, cursor, e.config.BatchSize)
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			break
		}

		var buf bytes.Buffer
		if err := EncodeArchive(&buf, batch); err != nil {
			return total, err
		}

		key := e.objectKey()
		err = e.putWithRetry(ctx, key, buf.Bytes())
		e.metrics.ObserveArchive(len(batch), err)
		if err != nil {
			return total, err
		}

		cursor = batch[len(batch)-1].CreatedAt
		if err := e.store.SetExportCursor(ctx, archiveCursor, cursor); err != nil {
			return total, err
		}
		total += len(batch)
		e.logger.Info("archive object uploaded", "key", key, "records", len(batch))

		if len(batch) < e.config.BatchSize {
			break
		}
	}
	return total, nil
}

// objectKey returns <prefix>/<yyyy>/<mm>/<dd>/<ulid>.jsonl
func (e *ArchiveExporter) objectKey() string {
	now := e.now().UTC()
	name := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String() + ".jsonl"
	if e.config.Prefix == "" {
		return now.Format("2006/01/02") + "/" + name
	}
	return e.config.Prefix + "/" + now.Format("2006/01/02") + "/" + name
}

func (e *ArchiveExporter) putWithRetry(ctx context.Context, key string, body []byte) error {
	var err error
	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		err = e.archive.Put(ctx, key, body)
		if err == nil {
			return nil
		}

		if attempt < e.config.MaxRetries {
			backoff := time.Duration(1<<uint(attempt)) * e.backoff
			e.logger.Warn("archive upload failed, retrying",
				"key", key, "attempt", attempt+1, "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return fmt.Errorf("upload %s failed after %d attempts: %w", key, e.config.MaxRetries+1, err)
}
