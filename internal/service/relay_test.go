package service

import (
	"context"
	"testing"
	"time"

	"github.com/channelrelay/relay/internal/biz/domain"
	"github.com/channelrelay/relay/internal/biz/usecase"
)

type relayFixture struct {
	platform *mockPlatform
	sink     *mockSink
	metrics  *Metrics
	relay    *RelayService
}

func newRelayFixture(t *testing.T, handles ...string) *relayFixture {
	t.Helper()
	f := &relayFixture{
		platform: newMockPlatform(),
		sink:     &mockSink{},
		metrics:  NewMetrics(),
	}
	store := newTestStore(t)

	channels := make([]*domain.Channel, 0, len(handles))
	for _, h := range handles {
		channels = append(channels, domain.NewChannel(h, nil))
	}

	monitor := usecase.NewMonitorUsecase(f.platform, newTestCache(t), usecase.SystemClock{},
		usecase.MonitorConfig{BatchSize: 10}, quietLogger())
	router := usecase.NewRouterUsecase(nil, channels, f.platform, f.sink,
		usecase.RouterConfig{BaseDestination: "oc_base"}, quietLogger())
	pipeline := usecase.NewPipelineUsecase(
		usecase.NewFilterUsecase(nil),
		usecase.NewAlertUsecase(nil),
		usecase.NewUrgencyUsecase(nil, usecase.DefaultHeuristicConfig(), time.Second, quietLogger()),
		router,
		store,
		usecase.SystemClock{},
		usecase.PipelineConfig{MediaGroupCapacity: 10},
		quietLogger(),
	)
	f.relay = NewRelayService(monitor, pipeline, store, channels, f.metrics, quietLogger())
	return f
}

func TestRelayService_RunProcessesEvents(t *testing.T) {
	f := newRelayFixture(t, "news_a", "news_b", "gone")
	f.platform.missing["gone"] = true

	done := make(chan error, 1)
	go func() { done <- f.relay.Run(context.Background()) }()

	future := time.Now().Add(time.Minute)
	f.platform.events <- &domain.MessageEvent{Channel: "news_a", MessageID: 1, Timestamp: future, Text: "Bridge closed"}
	f.platform.events <- &domain.MessageEvent{Channel: "news_b", MessageID: 2, Timestamp: future, Text: "bridge CLOSED"}
	close(f.platform.events)

	select {
	case err := <-done:
		if err == nil {
			t.Error("Expected error when the stream closes on its own")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for Run")
	}

	status := f.relay.Status(context.Background())
	if status.Phase != PhaseStopped {
		t.Errorf("Expected stopped phase, got %s", status.Phase)
	}
	if status.Outcomes[string(usecase.OutcomeDispatched)] != 1 || status.Outcomes[string(usecase.OutcomeDuplicate)] != 1 {
		t.Errorf("Unexpected outcomes %v", status.Outcomes)
	}
	if status.States[string(domain.StateJoined)] != 2 || status.States[string(domain.StateFailed)] != 1 {
		t.Errorf("Unexpected states %v", status.States)
	}
	if status.JoinCalls != 2 {
		t.Errorf("Expected 2 join calls, got %d", status.JoinCalls)
	}

	for _, ch := range status.Channels {
		switch ch.Handle {
		case "news_a", "news_b":
			if ch.LastSeen == nil {
				t.Errorf("Expected last seen for %s", ch.Handle)
			}
		case "gone":
			if ch.LastError == "" {
				t.Error("Expected failure reason for unresolvable channel")
			}
		}
	}

	if len(f.sink.texts) != 1 {
		t.Errorf("Expected 1 delivery, got %d", len(f.sink.texts))
	}
	if got := metricValue(t, f.metrics, "relay_events_total", "outcome", string(usecase.OutcomeDispatched)); got != 1 {
		t.Errorf("Expected dispatched metric 1, got %v", got)
	}
	if got := metricValue(t, f.metrics, "relay_channels", "state", string(domain.StateJoined)); got != 2 {
		t.Errorf("Expected joined gauge 2, got %v", got)
	}
}

func TestRelayService_NoChannelsJoined(t *testing.T) {
	f := newRelayFixture(t, "gone")
	f.platform.missing["gone"] = true

	err := f.relay.Run(context.Background())
	if err != usecase.ErrNoChannelsJoined {
		t.Errorf("Expected ErrNoChannelsJoined, got %v", err)
	}
}

func TestRelayService_CancelStopsLoop(t *testing.T) {
	f := newRelayFixture(t, "news_a")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.relay.Run(ctx) }()

	// Wait for the loop to take the first event
	f.platform.events <- &domain.MessageEvent{Channel: "news_a", MessageID: 1, Timestamp: time.Now().Add(time.Minute), Text: "x"}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean stop, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for Run")
	}
}

func TestRelayService_PauseResume(t *testing.T) {
	f := newRelayFixture(t, "news_a")

	if !f.relay.Pause() || !f.relay.Status(context.Background()).Paused {
		t.Error("Expected paused status")
	}
	if f.relay.Pause() {
		t.Error("Expected second pause to be a no-op")
	}
	if !f.relay.Resume() || f.relay.Status(context.Background()).Paused {
		t.Error("Expected running status after resume")
	}
}

func TestRelayService_ChannelsBeforeAcquisition(t *testing.T) {
	f := newRelayFixture(t, "news_a", "news_b")

	channels, err := f.relay.Channels(context.Background())
	if err != nil {
		t.Fatalf("Channels: %v", err)
	}
	if len(channels) != 2 || channels[0].State != string(domain.StateUnknown) {
		t.Errorf("Unexpected channels %+v", channels)
	}
}
