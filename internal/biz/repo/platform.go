package repo

import (
	"context"

	"github.com/channelrelay/relay/internal/biz/domain"
)

// PlatformRepo is the remote content platform interface
// Responsible for subscriptions and the inbound event stream
type PlatformRepo interface {
	// Resolve looks up the live peer of a channel handle
	Resolve(ctx context.Context, handle string) (*domain.Peer, error)

	// IsMember asks the platform whether we already participate in the channel
	IsMember(ctx context.Context, peer *domain.Peer) (bool, error)

	// ListMemberships returns the handles of every channel we participate in
	ListMemberships(ctx context.Context) ([]string, error)

	// Join requests membership. Throttling and rejections are reported in the
	// result; the error is reserved for transport failures.
	Join(ctx context.Context, peer *domain.Peer) (domain.JoinResult, error)

	// Subscribe registers the final peer set and returns the event stream.
	// Events arrive in platform order; the channel closes when ctx ends.
	Subscribe(ctx context.Context, peers []*domain.Peer) (<-chan *domain.MessageEvent, error)

	// DownloadMedia fetches the attachments of a post (the whole album for grouped posts).
	// Videos are reported with an empty Path instead of being downloaded.
	DownloadMedia(ctx context.Context, event *domain.MessageEvent) ([]domain.MediaFile, error)
}
