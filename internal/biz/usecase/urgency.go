package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/channelrelay/relay/internal/biz/domain"
	"github.com/channelrelay/relay/internal/biz/repo"
)

// WeightedKeyword adds Weight to the heuristic score when present
type WeightedKeyword struct {
	Keyword string
	Weight  float64
}

// HeuristicConfig is the local urgency scoring used when the classifier is unavailable
type HeuristicConfig struct {
	Keywords           []WeightedKeyword
	TimeMarkers        []string
	TimeMarkerWeight   float64
	ImportantThreshold float64
	UrgentThreshold    float64
}

// DefaultHeuristicConfig returns keyword weights for regional news
func DefaultHeuristicConfig() HeuristicConfig {
	kw := func(weight float64, words ...string) []WeightedKeyword {
		out := make([]WeightedKeyword, 0, len(words))
		for _, w := range words {
			out = append(out, WeightedKeyword{Keyword: w, Weight: weight})
		}
		return out
	}

	var keywords []WeightedKeyword
	keywords = append(keywords, kw(3, "срочно", "эвакуац", "землетрясен", "цунами", "пожар", "взрыв",
		"urgent", "evacuation", "earthquake", "tsunami", "explosion")...)
	keywords = append(keywords, kw(2, "штормов", "предупрежден", "авари", "отключени", "чп",
		"warning", "outage", "accident")...)
	keywords = append(keywords, kw(1, "внимание", "важно", "attention", "important")...)

	return HeuristicConfig{
		Keywords:           keywords,
		TimeMarkers:        []string{"сейчас", "сегодня", "только что", "now", "today", "breaking"},
		TimeMarkerWeight:   1,
		ImportantThreshold: 2,
		UrgentThreshold:    5,
	}
}

// DefaultClassifyTimeout bounds a single classifier call
const DefaultClassifyTimeout = 10 * time.Second

// UrgencyUsecase classifies posts with the AI classifier and falls back to the heuristic
type UrgencyUsecase struct {
	classifier repo.ClassifierRepo
	heuristic  HeuristicConfig
	timeout    time.Duration
	logger     *slog.Logger
}

// NewUrgencyUsecase creates a new urgency usecase. classifier may be nil.
func NewUrgencyUsecase(
	classifier repo.ClassifierRepo,
	heuristic HeuristicConfig,
	timeout time.Duration,
	logger *slog.Logger,
) *UrgencyUsecase {
	if timeout <= 0 {
		timeout = DefaultClassifyTimeout
	}
	if heuristic.UrgentThreshold <= 0 || heuristic.ImportantThreshold <= 0 {
		defaults := DefaultHeuristicConfig()
		heuristic.ImportantThreshold = defaults.ImportantThreshold
		heuristic.UrgentThreshold = defaults.UrgentThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UrgencyUsecase{
		classifier: classifier,
		heuristic:  heuristic,
		timeout:    timeout,
		logger:     logger.With("component", "urgency"),
	}
}

// Classify makes one AI attempt within the timeout, otherwise scores locally.
// It always returns a classification.
func (uc *UrgencyUsecase) Classify(ctx context.Context, text string) domain.Urgency {
	if uc.classifier != nil && strings.TrimSpace(text) != "" {
		u, err := uc.classifyAI(ctx, text)
		if err == nil {
			return u
		}
		uc.logger.Warn("classifier unavailable, using heuristic", "error", err)
	}
	return uc.Heuristic(text)
}

func (uc *UrgencyUsecase) classifyAI(ctx context.Context, text string) (domain.Urgency, error) {
	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	type reply struct {
		urgency domain.Urgency
		err     error
	}
	done := make(chan reply, 1)
	go func() {
		u, err := uc.classifier.Classify(ctx, text)
		done <- reply{u, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return domain.Urgency{}, fmt.Errorf("%w: %v", domain.ErrClassificationUnavailable, r.err)
		}
		r.urgency.Source = domain.ProvenanceAI
		return r.urgency, nil
	case <-ctx.Done():
		return domain.Urgency{}, fmt.Errorf("%w: %v", domain.ErrClassificationUnavailable, ctx.Err())
	}
}

// Heuristic scores the text with weighted keywords and time markers
func (uc *UrgencyUsecase) Heuristic(text string) domain.Urgency {
	normalized := domain.NormalizeText(text)
	if normalized == "" {
		return domain.Urgency{Level: domain.UrgencyIgnore, Source: domain.ProvenanceHeuristic}
	}

	score := 0.0
	for _, kw := range uc.heuristic.Keywords {
		if n := domain.NormalizeText(kw.Keyword); n != "" && strings.Contains(normalized, n) {
			score += kw.Weight
		}
	}
	for _, marker := range uc.heuristic.TimeMarkers {
		if n := domain.NormalizeText(marker); n != "" && strings.Contains(normalized, n) {
			score += uc.heuristic.TimeMarkerWeight
			break
		}
	}

	level := domain.UrgencyNormal
	switch {
	case score >= uc.heuristic.UrgentThreshold:
		level = domain.UrgencyUrgent
	case score >= uc.heuristic.ImportantThreshold:
		level = domain.UrgencyImportant
	}
	return domain.Urgency{Level: level, Score: score, Source: domain.ProvenanceHeuristic}
}
