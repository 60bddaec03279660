package repo

import (
	"context"

	"github.com/channelrelay/relay/internal/biz/domain"
)

// OutputSink is the delivery interface for composed messages
type OutputSink interface {
	// Deliver sends a text message to a destination, inside topicID when set
	Deliver(ctx context.Context, destination, topicID, text string) error

	// DeliverMedia sends downloaded files with a caption
	DeliverMedia(ctx context.Context, destination, topicID string, files []domain.MediaFile, caption string) error

	// ForwardOriginal sends the post as a rich message pointing at the original
	ForwardOriginal(ctx context.Context, destination, topicID string, event *domain.MessageEvent) error
}

// ArchiveRepo stores exported record batches
type ArchiveRepo interface {
	Put(ctx context.Context, key string, body []byte) error
}
