package repo

import (
	"context"

	"github.com/channelrelay/relay/internal/biz/domain"
)

// ClassifierRepo is the AI urgency classification interface
type ClassifierRepo interface {
	// Classify rates the urgency of a post text.
	// Any error means the classifier is unavailable for this post.
	Classify(ctx context.Context, text string) (domain.Urgency, error)
}
