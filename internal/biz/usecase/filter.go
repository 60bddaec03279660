package usecase

import (
	"strings"
	"time"

	"github.com/channelrelay/relay/internal/biz/domain"
)

// FilterUsecase handles the cheap gates applied before classification
type FilterUsecase struct {
	spamKeywords []string
}

// NewFilterUsecase creates a new filter usecase
func NewFilterUsecase(spamKeywords []string) *FilterUsecase {
	normalized := make([]string, 0, len(spamKeywords))
	for _, kw := range spamKeywords {
		if kw = domain.NormalizeText(kw); kw != "" {
			normalized = append(normalized, kw)
		}
	}
	return &FilterUsecase{spamKeywords: normalized}
}

// MatchSpam returns the first spam keyword found in the text
func (uc *FilterUsecase) MatchSpam(text string) (string, bool) {
	if len(uc.spamKeywords) == 0 {
		return "", false
	}
	normalized := domain.NormalizeText(text)
	for _, kw := range uc.spamKeywords {
		if strings.Contains(normalized, kw) {
			return kw, true
		}
	}
	return "", false
}

// IsStale checks if the post predates the pipeline start
func (uc *FilterUsecase) IsStale(event *domain.MessageEvent, startedAt time.Time) bool {
	return event.IsBefore(startedAt)
}
