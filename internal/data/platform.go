package data

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/channelrelay/relay/internal/biz/domain"
	"github.com/channelrelay/relay/internal/biz/repo"
	"github.com/channelrelay/relay/internal/infra/gateway"
)

// waitPattern finds a wait hint in gateways that omit wait_seconds
var waitPattern = regexp.MustCompile(`(?i)(?:flood_wait_(\d+)|wait (?:of )?(\d+) ?s(?:ec(?:ond)?s?)?\b)`)

// platformRepo implements the platform repository on the gateway sidecar
type platformRepo struct {
	client   *gateway.Client
	mediaDir string
	logger   *slog.Logger
}

// NewPlatformRepo creates a new platform repository
func NewPlatformRepo(client *gateway.Client, mediaDir string, logger *slog.Logger) repo.PlatformRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &platformRepo{
		client:   client,
		mediaDir: mediaDir,
		logger:   logger.With("component", "platform"),
	}
}

// Resolve looks up the live peer of a handle
func (r *platformRepo) Resolve(ctx context.Context, handle string) (*domain.Peer, error) {
	ch, err := r.client.ResolveChannel(ctx, handle)
	if err != nil {
		return nil, err
	}
	return &domain.Peer{ID: ch.ID, Username: domain.NormalizeHandle(ch.Username), Title: ch.Title}, nil
}

// IsMember asks the gateway about our participation
func (r *platformRepo) IsMember(ctx context.Context, peer *domain.Peer) (bool, error) {
	return r.client.IsMember(ctx, peer.ID)
}

// ListMemberships returns every joined handle
func (r *platformRepo) ListMemberships(ctx context.Context) ([]string, error) {
	return r.client.ListMemberships(ctx)
}

// Join requests membership and maps the answer to a JoinResult
func (r *platformRepo) Join(ctx context.Context, peer *domain.Peer) (domain.JoinResult, error) {
	resp, err := r.client.Join(ctx, peer.ID)
	if err != nil {
		return domain.JoinResult{}, err
	}
	return joinResultFromResponse(resp), nil
}

// joinResultFromResponse is the only place provider answers are interpreted
func joinResultFromResponse(resp *gateway.JoinResponse) domain.JoinResult {
	switch {
	case resp.Status == "rate_limited" || resp.HTTPStatus == http.StatusTooManyRequests:
		wait := time.Duration(resp.WaitSeconds) * time.Second
		if wait <= 0 {
			wait = parseWait(resp.Error)
		}
		return domain.RateLimited(wait)
	case resp.Status == "denied" || resp.HTTPStatus >= 400:
		reason := resp.Error
		if reason == "" {
			reason = fmt.Sprintf("status %d", resp.HTTPStatus)
		}
		return domain.Denied(reason)
	case resp.Status == "already_member":
		return domain.AlreadyMember()
	default:
		return domain.Joined()
	}
}

// parseWait extracts a wait from an error message, zero when absent
func parseWait(msg string) time.Duration {
	m := waitPattern.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	for _, g := range m[1:] {
		if g == "" {
			continue
		}
		if n, err := strconv.Atoi(g); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return 0
}

// Subscribe opens the event stream for the peers
func (r *platformRepo) Subscribe(ctx context.Context, peers []*domain.Peer) (<-chan *domain.MessageEvent, error) {
	ids := make([]int64, 0, len(peers))
	for _, p := range peers {
		ids = append(ids, p.ID)
	}

	frames, err := r.client.Stream(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make(chan *domain.MessageEvent)
	go func() {
		defer close(out)
		for frame := range frames {
			select {
			case out <- eventFromFrame(frame):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func eventFromFrame(frame *gateway.Event) *domain.MessageEvent {
	channel := domain.NormalizeHandle(frame.Channel)
	link := frame.Link
	if link == "" && channel != "" {
		link = fmt.Sprintf("https://t.me/%s/%d", channel, frame.MessageID)
	}
	return &domain.MessageEvent{
		Channel:   channel,
		MessageID: frame.MessageID,
		Timestamp: time.Unix(frame.Date, 0),
		Text:      frame.Text,
		Media:     mediaRefs(frame.Media),
		GroupID:   frame.GroupedID,
		Views:     frame.Views,
		Forwards:  frame.Forwards,
		Link:      link,
	}
}

func mediaRefs(media []gateway.Media) []domain.MediaRef {
	refs := make([]domain.MediaRef, 0, len(media))
	for _, m := range media {
		refs = append(refs, domain.MediaRef{
			Kind:     domain.MediaKind(m.Kind),
			FileID:   m.FileID,
			FileName: m.FileName,
			MimeType: m.MimeType,
			Size:     m.Size,
		})
	}
	return refs
}

// DownloadMedia fetches the attachments of a post, the whole album for grouped posts.
// Videos are listed without a path and never downloaded.
func (r *platformRepo) DownloadMedia(ctx context.Context, event *domain.MessageEvent) ([]domain.MediaFile, error) {
	refs := event.Media
	if event.InGroup() {
		media, err := r.client.ListMedia(ctx, event.Channel, event.MessageID)
		if err != nil {
			return nil, fmt.Errorf("failed to list album media: %w", err)
		}
		refs = mediaRefs(media)
	}

	var files []domain.MediaFile
	for _, ref := range refs {
		name := ref.FileName
		if name == "" {
			name = ref.FileID
		}
		if ref.Kind == domain.MediaVideo {
			files = append(files, domain.MediaFile{Kind: ref.Kind, Name: name})
			continue
		}
		path, err := r.client.DownloadFile(ctx, ref.FileID, r.mediaDir, name)
		if err != nil {
			removeDownloaded(files)
			return nil, err
		}
		files = append(files, domain.MediaFile{Kind: ref.Kind, Path: path, Name: name})
	}
	r.logger.Debug("media downloaded", "channel", event.Channel, "message_id", event.MessageID, "files", len(files))
	return files, nil
}
