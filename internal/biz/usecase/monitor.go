package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/channelrelay/relay/internal/biz/domain"
	"github.com/channelrelay/relay/internal/biz/repo"
)

// MonitorConfig holds the join pacing settings
type MonitorConfig struct {
	BatchSize        int
	BatchPause       time.Duration
	DefaultFloodWait time.Duration // Used when a rate limit carries no wait
}

// DefaultMonitorConfig returns the default join pacing
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		BatchSize:        5,
		BatchPause:       10 * time.Second,
		DefaultFloodWait: 60 * time.Second,
	}
}

// ErrNoChannelsJoined is returned when acquisition leaves nothing to listen to
var ErrNoChannelsJoined = errors.New("no channels joined")

// AcquireResult summarizes a subscription acquisition
type AcquireResult struct {
	Channels  []*domain.Channel
	Peers     []*domain.Peer
	JoinCalls int
	Evicted   int
}

// Count returns how many channels ended in the given state
func (r *AcquireResult) Count(state domain.SubscriptionState) int {
	n := 0
	for _, ch := range r.Channels {
		if ch.State == state {
			n++
		}
	}
	return n
}

// Summary returns channel counts for every state
func (r *AcquireResult) Summary() map[domain.SubscriptionState]int {
	summary := make(map[domain.SubscriptionState]int, len(domain.AllStates))
	for _, s := range domain.AllStates {
		summary[s] = r.Count(s)
	}
	return summary
}

// membershipIndex is the fallback membership scan, fetched at most once
type membershipIndex struct {
	loaded  bool
	handles map[string]struct{}
}

// MonitorUsecase acquires channel subscriptions
// Fast path for cached channels, paced batches for the rest
type MonitorUsecase struct {
	platform repo.PlatformRepo
	cache    repo.SubscriptionCache
	clock    Clock
	config   MonitorConfig
	logger   *slog.Logger
}

// NewMonitorUsecase creates a new monitor usecase
func NewMonitorUsecase(
	platform repo.PlatformRepo,
	cache repo.SubscriptionCache,
	clock Clock,
	config MonitorConfig,
	logger *slog.Logger,
) *MonitorUsecase {
	defaults := DefaultMonitorConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.BatchPause < 0 {
		config.BatchPause = defaults.BatchPause
	}
	if config.DefaultFloodWait <= 0 {
		config.DefaultFloodWait = defaults.DefaultFloodWait
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MonitorUsecase{
		platform: platform,
		cache:    cache,
		clock:    clock,
		config:   config,
		logger:   logger.With("component", "monitor"),
	}
}

// Start acquires subscriptions and registers the joined peers with the event stream
func (uc *MonitorUsecase) Start(ctx context.Context, channels []*domain.Channel) (<-chan *domain.MessageEvent, *AcquireResult, error) {
	result := uc.Acquire(ctx, channels)
	if len(result.Peers) == 0 {
		return nil, result, ErrNoChannelsJoined
	}

	events, err := uc.platform.Subscribe(ctx, result.Peers)
	if err != nil {
		return nil, result, fmt.Errorf("failed to subscribe: %w", err)
	}
	uc.logger.Info("listening", "peers", len(result.Peers))
	return events, result, nil
}

// Acquire drives every channel to joined or failed
func (uc *MonitorUsecase) Acquire(ctx context.Context, channels []*domain.Channel) *AcquireResult {
	result := &AcquireResult{Channels: channels}

	handles := make([]string, 0, len(channels))
	for _, ch := range channels {
		handles = append(handles, ch.Handle)
	}
	if removed, err := uc.cache.Reconcile(ctx, handles); err != nil {
		uc.logger.Warn("cache reconcile failed", "error", err)
	} else if removed > 0 {
		uc.logger.Info("evicted stale cache entries", "count", removed)
		result.Evicted = removed
	}

	var fast, slow []*domain.Channel
	for _, ch := range channels {
		if uc.cache.Contains(ch.Handle) {
			uc.transition(ch, domain.StateCached)
			fast = append(fast, ch)
		} else {
			uc.transition(ch, domain.StateNeedsJoin)
			slow = append(slow, ch)
		}
	}
	uc.logger.Info("acquiring channels", "cached", len(fast), "needs_join", len(slow))

	uc.runFastPath(ctx, fast)

	retries := &RetryTable{}
	uc.runSlowPath(ctx, slow, retries, result)
	uc.runRetries(ctx, retries, result)

	for _, ch := range channels {
		if ch.IsJoined() && ch.Peer != nil {
			result.Peers = append(result.Peers, ch.Peer)
		}
	}

	summary := result.Summary()
	uc.logger.Info("acquisition complete",
		"joined", summary[domain.StateJoined],
		"failed", summary[domain.StateFailed],
		"join_calls", result.JoinCalls)
	return result
}

// runFastPath resolves cached channels without any join request
func (uc *MonitorUsecase) runFastPath(ctx context.Context, channels []*domain.Channel) {
	for _, ch := range channels {
		peer, err := uc.platform.Resolve(ctx, ch.Handle)
		if err != nil {
			uc.fail(ch, fmt.Sprintf("resolve: %v", err))
			continue
		}
		ch.Peer = peer
		uc.transition(ch, domain.StateJoined)
	}
}

// runSlowPath processes channels in batches with a pause between batches
func (uc *MonitorUsecase) runSlowPath(ctx context.Context, channels []*domain.Channel, retries *RetryTable, result *AcquireResult) {
	memberships := &membershipIndex{}

	for start := 0; start < len(channels); start += uc.config.BatchSize {
		end := min(start+uc.config.BatchSize, len(channels))
		for _, ch := range channels[start:end] {
			uc.acquireOne(ctx, ch, memberships, retries, result)
		}

		if end < len(channels) {
			uc.logger.Debug("pausing between join batches", "pause", uc.config.BatchPause)
			uc.clock.Sleep(uc.config.BatchPause)
		}
	}
}

func (uc *MonitorUsecase) acquireOne(ctx context.Context, ch *domain.Channel, memberships *membershipIndex, retries *RetryTable, result *AcquireResult) {
	peer, err := uc.platform.Resolve(ctx, ch.Handle)
	if err != nil {
		uc.fail(ch, fmt.Sprintf("resolve: %v", err))
		return
	}
	ch.Peer = peer

	member, err := uc.platform.IsMember(ctx, peer)
	if err != nil {
		uc.logger.Warn("membership lookup failed, scanning memberships", "channel", ch.Handle, "error", err)
		member = uc.scanMemberships(ctx, memberships, ch.Handle)
	}
	if member {
		uc.markJoined(ctx, ch, "already member")
		return
	}

	result.JoinCalls++
	joinResult, err := uc.platform.Join(ctx, peer)
	if err != nil {
		uc.fail(ch, fmt.Sprintf("join: %v", err))
		return
	}

	switch joinResult.Status {
	case domain.JoinSuccess, domain.JoinAlreadyMember:
		uc.markJoined(ctx, ch, string(joinResult.Status))
	case domain.JoinRateLimited:
		wait := joinResult.Wait
		if wait <= 0 {
			wait = uc.config.DefaultFloodWait
		}
		uc.transition(ch, domain.StateRateLimited)
		ch.LastError = (&domain.RateLimitError{Wait: wait}).Error()
		retries.Schedule(ch, uc.clock.Now().Add(wait))
		uc.logger.Warn("join rate limited", "channel", ch.Handle, "wait", wait)
	default:
		uc.fail(ch, joinResult.Err().Error())
	}
}

// runRetries waits for the latest due time and retries each deferred channel once
func (uc *MonitorUsecase) runRetries(ctx context.Context, retries *RetryTable, result *AcquireResult) {
	for retries.Len() > 0 {
		wait := retries.Latest().Sub(uc.clock.Now())
		uc.logger.Info("waiting before join retries", "channels", retries.Len(), "wait", wait)
		uc.clock.Sleep(wait)

		for _, ch := range retries.PopDue(uc.clock.Now()) {
			result.JoinCalls++
			joinResult, err := uc.platform.Join(ctx, ch.Peer)
			if err != nil {
				uc.fail(ch, fmt.Sprintf("retry join: %v", err))
				continue
			}
			if joinResult.IsMember() {
				uc.markJoined(ctx, ch, "retry")
				continue
			}
			uc.fail(ch, fmt.Sprintf("retry join: %v", joinResult.Err()))
		}
	}
}

func (uc *MonitorUsecase) scanMemberships(ctx context.Context, idx *membershipIndex, handle string) bool {
	if !idx.loaded {
		idx.loaded = true
		idx.handles = make(map[string]struct{})
		list, err := uc.platform.ListMemberships(ctx)
		if err != nil {
			uc.logger.Warn("membership scan failed", "error", err)
		}
		for _, h := range list {
			idx.handles[domain.NormalizeHandle(h)] = struct{}{}
		}
	}
	_, ok := idx.handles[handle]
	return ok
}

func (uc *MonitorUsecase) markJoined(ctx context.Context, ch *domain.Channel, via string) {
	uc.transition(ch, domain.StateJoined)
	ch.LastError = ""
	if err := uc.cache.Add(ctx, ch.Handle); err != nil {
		uc.logger.Error("failed to cache subscription", "channel", ch.Handle, "error", err)
	}
	uc.logger.Info("channel joined", "channel", ch.Handle, "via", via)
}

func (uc *MonitorUsecase) fail(ch *domain.Channel, reason string) {
	if err := ch.Fail(reason); err != nil {
		uc.logger.Error("state change rejected", "error", err)
		return
	}
	uc.logger.Warn("channel failed", "channel", ch.Handle, "reason", reason)
}

func (uc *MonitorUsecase) transition(ch *domain.Channel, to domain.SubscriptionState) {
	if err := ch.Transition(to); err != nil {
		uc.logger.Error("state change rejected", "error", err)
	}
}
