package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/channelrelay/relay/internal/biz/domain"
	"github.com/channelrelay/relay/internal/biz/repo"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock advances only when slept on
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	if d > 0 {
		c.now = c.now.Add(d)
	}
}

func (c *fakeClock) slept() time.Duration {
	var total time.Duration
	for _, d := range c.sleeps {
		if d > 0 {
			total += d
		}
	}
	return total
}

// mockPlatform scripts platform responses per handle
type mockPlatform struct {
	clock         *fakeClock
	resolveErr    map[string]error
	members       map[string]bool
	memberErr     map[string]error
	memberships   []string
	membershipErr error
	joinResults   map[string][]domain.JoinResult // consumed in order
	joinErr       map[string]error
	media         []domain.MediaFile
	mediaErr      error

	resolveCalls    []string
	joinCalls       []string
	joinTimes       []time.Time
	membershipScans int
	downloads       int
	subscribed      []*domain.Peer
}

func newMockPlatform(clock *fakeClock) *mockPlatform {
	return &mockPlatform{
		clock:       clock,
		resolveErr:  map[string]error{},
		members:     map[string]bool{},
		memberErr:   map[string]error{},
		joinResults: map[string][]domain.JoinResult{},
		joinErr:     map[string]error{},
	}
}

func (m *mockPlatform) Resolve(ctx context.Context, handle string) (*domain.Peer, error) {
	m.resolveCalls = append(m.resolveCalls, handle)
	if err := m.resolveErr[handle]; err != nil {
		return nil, err
	}
	return &domain.Peer{ID: int64(len(m.resolveCalls)), Username: handle}, nil
}

func (m *mockPlatform) IsMember(ctx context.Context, peer *domain.Peer) (bool, error) {
	if err := m.memberErr[peer.Username]; err != nil {
		return false, err
	}
	return m.members[peer.Username], nil
}

func (m *mockPlatform) ListMemberships(ctx context.Context) ([]string, error) {
	m.membershipScans++
	return m.memberships, m.membershipErr
}

func (m *mockPlatform) Join(ctx context.Context, peer *domain.Peer) (domain.JoinResult, error) {
	m.joinCalls = append(m.joinCalls, peer.Username)
	if m.clock != nil {
		m.joinTimes = append(m.joinTimes, m.clock.Now())
	}
	if err := m.joinErr[peer.Username]; err != nil {
		return domain.JoinResult{}, err
	}
	results := m.joinResults[peer.Username]
	if len(results) == 0 {
		return domain.Joined(), nil
	}
	m.joinResults[peer.Username] = results[1:]
	return results[0], nil
}

func (m *mockPlatform) Subscribe(ctx context.Context, peers []*domain.Peer) (<-chan *domain.MessageEvent, error) {
	m.subscribed = peers
	ch := make(chan *domain.MessageEvent)
	close(ch)
	return ch, nil
}

func (m *mockPlatform) DownloadMedia(ctx context.Context, event *domain.MessageEvent) ([]domain.MediaFile, error) {
	m.downloads++
	if m.mediaErr != nil {
		return nil, m.mediaErr
	}
	return append([]domain.MediaFile(nil), m.media...), nil
}

var _ repo.PlatformRepo = (*mockPlatform)(nil)

// mockCache is an in-memory subscription cache
type mockCache struct {
	entries map[string]bool
	added   []string
	addErr  error
}

func newMockCache(handles ...string) *mockCache {
	c := &mockCache{entries: map[string]bool{}}
	for _, h := range handles {
		c.entries[h] = true
	}
	return c
}

func (c *mockCache) Contains(channel string) bool { return c.entries[channel] }

func (c *mockCache) Add(ctx context.Context, channel string) error {
	if c.addErr != nil {
		return c.addErr
	}
	c.entries[channel] = true
	c.added = append(c.added, channel)
	return nil
}

func (c *mockCache) Clear(ctx context.Context) error {
	c.entries = map[string]bool{}
	return nil
}

func (c *mockCache) Reconcile(ctx context.Context, current []string) (int, error) {
	keep := map[string]bool{}
	for _, h := range current {
		keep[h] = true
	}
	removed := 0
	for h := range c.entries {
		if !keep[h] {
			delete(c.entries, h)
			removed++
		}
	}
	return removed, nil
}

func (c *mockCache) List() []string {
	var out []string
	for h := range c.entries {
		out = append(out, h)
	}
	return out
}

func (c *mockCache) Close() error { return nil }

var _ repo.SubscriptionCache = (*mockCache)(nil)

// mockStore keeps fingerprints in memory
type mockStore struct {
	fingerprints map[domain.Fingerprint]bool
	saved        []*domain.MessageEvent
	lastSeen     map[string]time.Time
	saveErr      error
}

func newMockStore() *mockStore {
	return &mockStore{
		fingerprints: map[domain.Fingerprint]bool{},
		lastSeen:     map[string]time.Time{},
	}
}

func (s *mockStore) SaveEvent(ctx context.Context, event *domain.MessageEvent, fp domain.Fingerprint) (bool, error) {
	if s.saveErr != nil {
		return false, s.saveErr
	}
	if s.fingerprints[fp] {
		return false, nil
	}
	s.fingerprints[fp] = true
	s.saved = append(s.saved, event)
	return true, nil
}

func (s *mockStore) SaveEvents(ctx context.Context, events []*domain.MessageEvent) (int, error) {
	n := 0
	for _, ev := range events {
		ok, err := s.SaveEvent(ctx, ev, domain.NewFingerprint(ev.Text, ev.Timestamp))
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (s *mockStore) HasFingerprint(ctx context.Context, fp domain.Fingerprint) (bool, error) {
	return s.fingerprints[fp], nil
}

func (s *mockStore) UpdateLastSeen(ctx context.Context, channel string, t time.Time) error {
	s.lastSeen[channel] = t
	return nil
}

func (s *mockStore) UpdateLastSeenBatch(ctx context.Context, seen map[string]time.Time) error {
	for k, v := range seen {
		s.lastSeen[k] = v
	}
	return nil
}

func (s *mockStore) LastSeen(ctx context.Context) (map[string]time.Time, error) {
	return s.lastSeen, nil
}

func (s *mockStore) ListSince(ctx context.Context, after time.Time, limit int) ([]*repo.StoredEvent, error) {
	return nil, nil
}

func (s *mockStore) ExportCursor(ctx context.Context, name string) (time.Time, error) {
	return time.Time{}, nil
}

func (s *mockStore) SetExportCursor(ctx context.Context, name string, t time.Time) error {
	return nil
}

func (s *mockStore) Close() error { return nil }

var _ repo.MessageStore = (*mockStore)(nil)

type delivery struct {
	kind        string // text, media, forward
	destination string
	topicID     string
	text        string
	files       int
}

// mockSink records deliveries and fails per destination and kind
type mockSink struct {
	deliveries []delivery
	fail       map[string]bool // key: destination or destination+"/"+kind
}

func newMockSink() *mockSink {
	return &mockSink{fail: map[string]bool{}}
}

func (s *mockSink) record(d delivery) error {
	if s.fail[d.destination] || s.fail[d.destination+"/"+d.kind] {
		return errors.New("sink unavailable")
	}
	s.deliveries = append(s.deliveries, d)
	return nil
}

func (s *mockSink) Deliver(ctx context.Context, destination, topicID, text string) error {
	return s.record(delivery{kind: "text", destination: destination, topicID: topicID, text: text})
}

func (s *mockSink) DeliverMedia(ctx context.Context, destination, topicID string, files []domain.MediaFile, caption string) error {
	return s.record(delivery{kind: "media", destination: destination, topicID: topicID, text: caption, files: len(files)})
}

func (s *mockSink) ForwardOriginal(ctx context.Context, destination, topicID string, event *domain.MessageEvent) error {
	return s.record(delivery{kind: "forward", destination: destination, topicID: topicID, text: event.Body()})
}

var _ repo.OutputSink = (*mockSink)(nil)

// mockClassifier returns a fixed result, or blocks until ctx ends when hang is set
type mockClassifier struct {
	urgency domain.Urgency
	err     error
	hang    bool
	calls   int
}

func (c *mockClassifier) Classify(ctx context.Context, text string) (domain.Urgency, error) {
	c.calls++
	if c.hang {
		<-ctx.Done()
		return domain.Urgency{}, ctx.Err()
	}
	return c.urgency, c.err
}

var _ repo.ClassifierRepo = (*mockClassifier)(nil)
