package usecase

import (
	"strings"

	"github.com/channelrelay/relay/internal/biz/domain"
)

// AlertUsecase matches posts against configured alert categories
type AlertUsecase struct {
	categories []domain.AlertCategory
}

// NewAlertUsecase creates a matcher. Priority categories are evaluated
// first, each group in configuration order.
func NewAlertUsecase(categories []domain.AlertCategory) *AlertUsecase {
	ordered := make([]domain.AlertCategory, 0, len(categories))
	for _, c := range categories {
		if c.Priority {
			ordered = append(ordered, c)
		}
	}
	for _, c := range categories {
		if !c.Priority {
			ordered = append(ordered, c)
		}
	}
	return &AlertUsecase{categories: ordered}
}

// Match returns the first category whose keywords appear in the text, or nil
func (uc *AlertUsecase) Match(text string) *domain.AlertMatch {
	normalized := domain.NormalizeText(text)
	if normalized == "" {
		return nil
	}

	for _, c := range uc.categories {
		var hits []string
		for _, kw := range c.Keywords {
			if n := domain.NormalizeText(kw); n != "" && strings.Contains(normalized, n) {
				hits = append(hits, kw)
			}
		}
		if len(hits) > 0 {
			return &domain.AlertMatch{
				Category: c.Name,
				Keywords: hits,
				Priority: c.Priority,
				Emoji:    c.Emoji,
			}
		}
	}
	return nil
}

// Categories returns the categories in evaluation order
func (uc *AlertUsecase) Categories() []domain.AlertCategory {
	return uc.categories
}
