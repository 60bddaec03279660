package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/channelrelay/relay/internal/biz/domain"
	"github.com/channelrelay/relay/internal/biz/repo"
	"github.com/channelrelay/relay/internal/data"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) repo.MessageStore {
	t.Helper()
	store, err := data.NewMessageStore(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("NewMessageStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestCache(t *testing.T) repo.SubscriptionCache {
	t.Helper()
	cache, err := data.NewSubscriptionCache(filepath.Join(t.TempDir(), "subs.db"))
	if err != nil {
		t.Fatalf("NewSubscriptionCache: %v", err)
	}
	t.Cleanup(func() { cache.Close() })
	return cache
}

// mockPlatform resolves every handle except those in missing and streams events
type mockPlatform struct {
	missing map[string]bool
	events  chan *domain.MessageEvent
	nextID  int64
}

func newMockPlatform() *mockPlatform {
	return &mockPlatform{missing: map[string]bool{}, events: make(chan *domain.MessageEvent)}
}

func (m *mockPlatform) Resolve(ctx context.Context, handle string) (*domain.Peer, error) {
	if m.missing[handle] {
		return nil, errors.New("username not occupied")
	}
	m.nextID++
	return &domain.Peer{ID: m.nextID, Username: handle}, nil
}

func (m *mockPlatform) IsMember(ctx context.Context, peer *domain.Peer) (bool, error) {
	return false, nil
}

func (m *mockPlatform) ListMemberships(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (m *mockPlatform) Join(ctx context.Context, peer *domain.Peer) (domain.JoinResult, error) {
	return domain.Joined(), nil
}

func (m *mockPlatform) Subscribe(ctx context.Context, peers []*domain.Peer) (<-chan *domain.MessageEvent, error) {
	return m.events, nil
}

func (m *mockPlatform) DownloadMedia(ctx context.Context, event *domain.MessageEvent) ([]domain.MediaFile, error) {
	return nil, nil
}

// mockSink records delivered texts
type mockSink struct {
	mu    sync.Mutex
	texts []string
}

func (m *mockSink) Deliver(ctx context.Context, destination, topicID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	return nil
}

func (m *mockSink) DeliverMedia(ctx context.Context, destination, topicID string, files []domain.MediaFile, caption string) error {
	return m.Deliver(ctx, destination, topicID, caption)
}

func (m *mockSink) ForwardOriginal(ctx context.Context, destination, topicID string, event *domain.MessageEvent) error {
	return m.Deliver(ctx, destination, topicID, event.Body())
}

// mockArchive stores uploaded objects, failing the first failures calls
type mockArchive struct {
	mu       sync.Mutex
	failures int
	calls    int
	objects  map[string][]byte
}

func (m *mockArchive) Put(ctx context.Context, key string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failures > 0 {
		m.failures--
		return errors.New("503 slow down")
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = body
	return nil
}

// metricValue reads a counter or gauge sample from the registry, zero when absent
func metricValue(t *testing.T, m *Metrics, name, label, value string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			matched := label == ""
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					matched = true
				}
			}
			if !matched {
				continue
			}
			if c := metric.GetCounter(); c != nil {
				return c.GetValue()
			}
			return metric.GetGauge().GetValue()
		}
	}
	return 0
}
