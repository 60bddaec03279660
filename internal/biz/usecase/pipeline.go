package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/channelrelay/relay/internal/biz/domain"
	"github.com/channelrelay/relay/internal/biz/repo"
)

// Outcome names where the pipeline stopped an event, or how dispatch went
type Outcome string

const (
	OutcomePaused         Outcome = "paused"
	OutcomeAlbumRepeat    Outcome = "album_repeat"
	OutcomeSpam           Outcome = "spam"
	OutcomeStale          Outcome = "stale"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeDispatched     Outcome = "dispatched"
	OutcomeDispatchFailed Outcome = "dispatch_failed"
	OutcomeError          Outcome = "error"
)

// AllOutcomes lists every outcome
var AllOutcomes = []Outcome{
	OutcomePaused, OutcomeAlbumRepeat, OutcomeSpam, OutcomeStale,
	OutcomeDuplicate, OutcomeDispatched, OutcomeDispatchFailed, OutcomeError,
}

// HandleResult is what happened to one event
type HandleResult struct {
	Outcome  Outcome
	Urgency  *domain.Urgency
	Dispatch *DispatchResult
}

// PauseSwitch toggles event processing. Safe for concurrent use.
type PauseSwitch struct {
	paused atomic.Bool
}

// Pause stops processing. It returns false if already paused.
func (p *PauseSwitch) Pause() bool {
	return p.paused.CompareAndSwap(false, true)
}

// Resume restarts processing. It returns false if not paused.
func (p *PauseSwitch) Resume() bool {
	return p.paused.CompareAndSwap(true, false)
}

// Paused reports the current state
func (p *PauseSwitch) Paused() bool {
	return p.paused.Load()
}

// PipelineConfig holds the pipeline settings
type PipelineConfig struct {
	MediaGroupCapacity int
}

// PipelineUsecase processes events one at a time from gating to dispatch
type PipelineUsecase struct {
	filterUC  *FilterUsecase
	alertUC   *AlertUsecase
	urgencyUC *UrgencyUsecase
	routerUC  *RouterUsecase
	store     repo.MessageStore
	clock     Clock
	logger    *slog.Logger

	pause     PauseSwitch
	groups    *domain.MediaGroupTracker
	startedAt time.Time

	mu     sync.Mutex
	counts map[Outcome]int
}

// NewPipelineUsecase creates a new pipeline. Events published before this call are dropped.
func NewPipelineUsecase(
	filterUC *FilterUsecase,
	alertUC *AlertUsecase,
	urgencyUC *UrgencyUsecase,
	routerUC *RouterUsecase,
	store repo.MessageStore,
	clock Clock,
	config PipelineConfig,
	logger *slog.Logger,
) *PipelineUsecase {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineUsecase{
		filterUC:  filterUC,
		alertUC:   alertUC,
		urgencyUC: urgencyUC,
		routerUC:  routerUC,
		store:     store,
		clock:     clock,
		logger:    logger.With("component", "pipeline"),
		groups:    domain.NewMediaGroupTracker(config.MediaGroupCapacity),
		startedAt: clock.Now(),
		counts:    make(map[Outcome]int),
	}
}

// Pause stops processing; events arriving while paused are dropped
func (uc *PipelineUsecase) Pause() bool {
	changed := uc.pause.Pause()
	if changed {
		uc.logger.Info("processing paused")
	}
	return changed
}

// Resume restarts processing
func (uc *PipelineUsecase) Resume() bool {
	changed := uc.pause.Resume()
	if changed {
		uc.logger.Info("processing resumed")
	}
	return changed
}

// Paused reports whether processing is paused
func (uc *PipelineUsecase) Paused() bool {
	return uc.pause.Paused()
}

// StartedAt returns the time gate of the pipeline
func (uc *PipelineUsecase) StartedAt() time.Time {
	return uc.startedAt
}

// Counts returns a copy of the outcome counters
func (uc *PipelineUsecase) Counts() map[Outcome]int {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	out := make(map[Outcome]int, len(uc.counts))
	for k, v := range uc.counts {
		out[k] = v
	}
	return out
}

// Handle runs one event through the pipeline. A panic is recovered and reported as OutcomeError.
func (uc *PipelineUsecase) Handle(ctx context.Context, event *domain.MessageEvent) (result *HandleResult) {
	defer func() {
		if r := recover(); r != nil {
			attrs := []any{"panic", fmt.Sprint(r)}
			if event != nil {
				attrs = append(attrs, "channel", event.Channel, "message_id", event.MessageID)
			}
			uc.logger.Error("panic while handling event", attrs...)
			result = &HandleResult{Outcome: OutcomeError}
		}
		uc.mu.Lock()
		uc.counts[result.Outcome]++
		uc.mu.Unlock()
	}()
	return uc.handle(ctx, event)
}

func (uc *PipelineUsecase) handle(ctx context.Context, event *domain.MessageEvent) *HandleResult {
	if uc.pause.Paused() {
		return &HandleResult{Outcome: OutcomePaused}
	}

	if event.InGroup() && !uc.groups.Track(event.GroupID) {
		return &HandleResult{Outcome: OutcomeAlbumRepeat}
	}

	if kw, spam := uc.filterUC.MatchSpam(event.Text); spam {
		uc.logger.Debug("spam dropped", "channel", event.Channel, "message_id", event.MessageID, "keyword", kw)
		return &HandleResult{Outcome: OutcomeSpam}
	}

	if uc.filterUC.IsStale(event, uc.startedAt) {
		return &HandleResult{Outcome: OutcomeStale}
	}

	fp := domain.NewFingerprint(event.Text, event.Timestamp)
	seen, err := uc.store.HasFingerprint(ctx, fp)
	if err != nil {
		uc.logger.Warn("fingerprint lookup failed", "channel", event.Channel, "error", err)
	} else if seen {
		return &HandleResult{Outcome: OutcomeDuplicate}
	}

	alert := uc.alertUC.Match(event.Text)
	urgency := uc.urgencyUC.Classify(ctx, event.Text)
	if err := event.Decorate(ComposeDisplayText(event.Text, urgency, alert), urgency, alert); err != nil {
		uc.logger.Warn("decoration skipped", "channel", event.Channel, "error", err)
	}
	result := &HandleResult{Urgency: &urgency}

	stored, err := uc.store.SaveEvent(ctx, event, fp)
	switch {
	case err != nil:
		uc.logger.Error("failed to persist event, delivering anyway",
			"channel", event.Channel, "message_id", event.MessageID,
			"error", fmt.Errorf("%w: %v", domain.ErrPersistence, err))
	case !stored:
		result.Outcome = OutcomeDuplicate
		return result
	}

	if err := uc.store.UpdateLastSeen(ctx, event.Channel, event.Timestamp); err != nil {
		uc.logger.Warn("failed to update last seen", "channel", event.Channel, "error", err)
	}

	dispatch, err := uc.routerUC.Dispatch(ctx, event)
	result.Dispatch = dispatch
	if err != nil {
		uc.logger.Error("dispatch failed", "channel", event.Channel, "message_id", event.MessageID, "error", err)
		result.Outcome = OutcomeDispatchFailed
		return result
	}

	uc.logger.Info("event dispatched",
		"channel", event.Channel,
		"message_id", event.MessageID,
		"urgency", urgency.Level,
		"alert", event.AlertCategory(),
		"regions", dispatch.Decision.RegionKeys(),
		"sent", dispatch.Sent,
		"failed", dispatch.Failed)
	result.Outcome = OutcomeDispatched
	return result
}
