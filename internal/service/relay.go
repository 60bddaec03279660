package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/channelrelay/relay/internal/biz/domain"
	"github.com/channelrelay/relay/internal/biz/repo"
	"github.com/channelrelay/relay/internal/biz/usecase"
)

// Relay phases reported by Status
const (
	PhaseStarting  = "starting"
	PhaseAcquiring = "acquiring"
	PhaseListening = "listening"
	PhaseStopped   = "stopped"
)

// ChannelStatus is the reported state of one channel
type ChannelStatus struct {
	Handle    string     `json:"handle"`
	State     string     `json:"state"`
	Regions   []string   `json:"regions,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
}

// Status is a point-in-time view of the relay
type Status struct {
	Phase     string          `json:"phase"`
	Paused    bool            `json:"paused"`
	StartedAt time.Time       `json:"started_at"`
	Channels  []ChannelStatus `json:"channels"`
	States    map[string]int  `json:"states"`
	Outcomes  map[string]int  `json:"outcomes"`
	JoinCalls int             `json:"join_calls"`
}

// RelayService runs acquisition and then the single event loop
type RelayService struct {
	monitor  *usecase.MonitorUsecase
	pipeline *usecase.PipelineUsecase
	store    repo.MessageStore
	channels []*domain.Channel
	metrics  *Metrics
	logger   *slog.Logger

	mu       sync.RWMutex
	phase    string
	snapshot []ChannelStatus
	acquired *usecase.AcquireResult
}

// NewRelayService creates a new relay service
func NewRelayService(
	monitor *usecase.MonitorUsecase,
	pipeline *usecase.PipelineUsecase,
	store repo.MessageStore,
	channels []*domain.Channel,
	metrics *Metrics,
	logger *slog.Logger,
) *RelayService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RelayService{
		monitor:  monitor,
		pipeline: pipeline,
		store:    store,
		channels: channels,
		metrics:  metrics,
		logger:   logger.With("component", "relay"),
		phase:    PhaseStarting,
	}
}

// Run acquires subscriptions and processes events until ctx ends or the stream closes
func (s *RelayService) Run(ctx context.Context) error {
	s.setPhase(PhaseAcquiring)
	defer s.setPhase(PhaseStopped)

	events, result, err := s.monitor.Start(ctx, s.channels)
	s.recordAcquire(result)
	if err != nil {
		return err
	}
	s.setPhase(PhaseListening)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("event stream closed")
			}
			res := s.pipeline.Handle(ctx, ev)
			s.metrics.ObserveHandle(res)
			s.logger.Debug("event handled",
				"channel", ev.Channel, "message_id", ev.MessageID, "outcome", res.Outcome)
		}
	}
}

func (s *RelayService) setPhase(phase string) {
	s.mu.Lock()
	s.phase = phase
	s.mu.Unlock()
}

// recordAcquire copies channel states once acquisition is done; they are not read before
func (s *RelayService) recordAcquire(result *usecase.AcquireResult) {
	if result == nil {
		return
	}
	snapshot := make([]ChannelStatus, 0, len(result.Channels))
	for _, ch := range result.Channels {
		snapshot = append(snapshot, ChannelStatus{
			Handle:    ch.Handle,
			State:     string(ch.State),
			Regions:   ch.Regions,
			LastError: ch.LastError,
		})
	}

	s.mu.Lock()
	s.snapshot = snapshot
	s.acquired = result
	s.mu.Unlock()

	s.metrics.ObserveAcquire(result)
	s.logger.Info("acquisition finished",
		"joined", result.Count(domain.StateJoined),
		"failed", result.Count(domain.StateFailed),
		"join_calls", result.JoinCalls)
}

// Pause stops event processing. It returns false if already paused.
func (s *RelayService) Pause() bool {
	return s.pipeline.Pause()
}

// Resume restarts event processing. It returns false if not paused.
func (s *RelayService) Resume() bool {
	return s.pipeline.Resume()
}

// Channels returns per-channel states with their last activity
func (s *RelayService) Channels(ctx context.Context) ([]ChannelStatus, error) {
	s.mu.RLock()
	snapshot := s.snapshot
	s.mu.RUnlock()

	var out []ChannelStatus
	if snapshot != nil {
		out = make([]ChannelStatus, len(snapshot))
		copy(out, snapshot)
	} else {
		// Acquisition still running; states are not final yet
		for _, ch := range s.channels {
			out = append(out, ChannelStatus{Handle: ch.Handle, State: string(domain.StateUnknown), Regions: ch.Regions})
		}
	}

	seen, err := s.store.LastSeen(ctx)
	if err != nil {
		return out, err
	}
	for i := range out {
		if t, ok := seen[out[i].Handle]; ok {
			out[i].LastSeen = &t
		}
	}
	return out, nil
}

// Status returns the current relay status. Last-seen times are omitted when the store fails.
func (s *RelayService) Status(ctx context.Context) *Status {
	channels, err := s.Channels(ctx)
	if err != nil {
		s.logger.Warn("failed to read last seen", "error", err)
	}

	s.mu.RLock()
	phase := s.phase
	acquired := s.acquired
	s.mu.RUnlock()

	status := &Status{
		Phase:     phase,
		Paused:    s.pipeline.Paused(),
		StartedAt: s.pipeline.StartedAt(),
		Channels:  channels,
		States:    make(map[string]int),
		Outcomes:  make(map[string]int),
	}
	for _, ch := range channels {
		status.States[ch.State]++
	}
	for outcome, n := range s.pipeline.Counts() {
		status.Outcomes[string(outcome)] = n
	}
	if acquired != nil {
		status.JoinCalls = acquired.JoinCalls
	}
	sort.Slice(status.Channels, func(i, j int) bool {
		return status.Channels[i].Handle < status.Channels[j].Handle
	})
	return status
}
