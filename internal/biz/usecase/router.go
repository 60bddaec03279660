package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/channelrelay/relay/internal/biz/domain"
	"github.com/channelrelay/relay/internal/biz/repo"
)

const (
	videoNotice       = "🎬 Video attached, open the original post to watch."
	noticePreviewRune = 300
)

// RouterConfig holds the destination defaults
type RouterConfig struct {
	BaseDestination string // Chat used by regions without their own destination
	DefaultRegion   string
}

// DispatchResult aggregates the per-destination delivery outcomes
type DispatchResult struct {
	Decision domain.RoutingDecision
	Sent     int
	Failed   int
	Degraded int // Destinations that only got the fallback notice
}

type deliveryMode int

const (
	modeText deliveryMode = iota
	modeMedia
	modeForward
)

// RouterUsecase resolves regions for a post and fans it out
type RouterUsecase struct {
	regions  []domain.Region
	byKey    map[string]domain.Region
	channels map[string]*domain.Channel
	platform repo.PlatformRepo
	sink     repo.OutputSink
	config   RouterConfig
	logger   *slog.Logger
}

// NewRouterUsecase creates a new router usecase
func NewRouterUsecase(
	regions []domain.Region,
	channels []*domain.Channel,
	platform repo.PlatformRepo,
	sink repo.OutputSink,
	config RouterConfig,
	logger *slog.Logger,
) *RouterUsecase {
	if config.DefaultRegion == "" {
		config.DefaultRegion = domain.DefaultRegionKey
	}
	if logger == nil {
		logger = slog.Default()
	}

	byKey := make(map[string]domain.Region, len(regions))
	for _, r := range regions {
		byKey[r.Key] = r
	}
	byHandle := make(map[string]*domain.Channel, len(channels))
	for _, ch := range channels {
		byHandle[ch.Handle] = ch
	}

	return &RouterUsecase{
		regions:  regions,
		byKey:    byKey,
		channels: byHandle,
		platform: platform,
		sink:     sink,
		config:   config,
		logger:   logger.With("component", "router"),
	}
}

// Resolve picks the destinations of a post.
// Explicit channel regions yield all of them, otherwise the single best keyword region.
func (uc *RouterUsecase) Resolve(event *domain.MessageEvent) domain.RoutingDecision {
	var regions []domain.Region
	if ch, ok := uc.channels[event.Channel]; ok && ch.HasExplicitRegions() {
		for _, key := range ch.Regions {
			r, ok := uc.byKey[key]
			if !ok {
				uc.logger.Warn("unknown region on channel", "channel", ch.Handle, "region", key)
				continue
			}
			regions = append(regions, r)
		}
	}
	if len(regions) == 0 {
		regions = []domain.Region{uc.bestRegion(event.Text)}
	}

	decision := domain.RoutingDecision{Targets: make([]domain.RouteTarget, 0, len(regions))}
	for _, r := range regions {
		dest := r.ChatID
		if dest == "" {
			dest = uc.config.BaseDestination
		}
		decision.Targets = append(decision.Targets, domain.RouteTarget{
			Region:      r,
			Destination: dest,
			TopicID:     r.TopicID,
		})
	}
	return decision
}

// bestRegion returns the region with the most keyword hits; ties keep config order
func (uc *RouterUsecase) bestRegion(text string) domain.Region {
	normalized := domain.NormalizeText(text)
	var best domain.Region
	bestScore := 0
	for _, r := range uc.regions {
		score := 0
		for _, kw := range r.Keywords {
			if n := domain.NormalizeText(kw); n != "" && strings.Contains(normalized, n) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = r, score
		}
	}
	if bestScore > 0 {
		return best
	}
	if r, ok := uc.byKey[uc.config.DefaultRegion]; ok {
		return r
	}
	return domain.Region{Key: uc.config.DefaultRegion, Name: "General"}
}

// Dispatch delivers the post to every resolved destination.
// It returns domain.ErrDeliveryFailed when no destination accepted anything.
func (uc *RouterUsecase) Dispatch(ctx context.Context, event *domain.MessageEvent) (*DispatchResult, error) {
	result := &DispatchResult{Decision: uc.Resolve(event)}

	text := ComposeMessage(event)
	mode, files, hasVideo := uc.prepareMedia(ctx, event)
	defer removeFiles(files)
	if hasVideo {
		text += "\n\n" + videoNotice
	}

	for _, target := range result.Decision.Targets {
		err := uc.deliverPrimary(ctx, target, mode, text, files, event)
		if err == nil {
			result.Sent++
			continue
		}
		uc.logger.Warn("delivery failed, sending notice",
			"channel", event.Channel, "region", target.Region.Key, "destination", target.Destination, "error", err)

		if err := uc.sink.Deliver(ctx, target.Destination, target.TopicID, ComposeNotice(event)); err != nil {
			uc.logger.Error("notice delivery failed",
				"channel", event.Channel, "region", target.Region.Key, "error", err)
			result.Failed++
			continue
		}
		result.Sent++
		result.Degraded++
	}

	if result.Sent == 0 {
		return result, fmt.Errorf("%w: %d destinations", domain.ErrDeliveryFailed, result.Failed)
	}
	return result, nil
}

// prepareMedia downloads attachments once for all destinations.
// Albums are always fetched since the first event only carries its own item.
// hasVideo reports a video anywhere in the post, which is never downloaded.
func (uc *RouterUsecase) prepareMedia(ctx context.Context, event *domain.MessageEvent) (mode deliveryMode, files []domain.MediaFile, hasVideo bool) {
	if !event.HasMedia() && !event.InGroup() {
		return modeText, nil, false
	}
	if !event.InGroup() && event.OnlyVideo() {
		return modeText, nil, true
	}

	downloaded, err := uc.platform.DownloadMedia(ctx, event)
	if err != nil {
		uc.logger.Warn("media download failed, forwarding original", "channel", event.Channel, "error", err)
		return modeForward, nil, event.HasVideo()
	}

	hasVideo = event.HasVideo()
	for _, f := range downloaded {
		if f.Kind == domain.MediaVideo {
			hasVideo = true
			removeFiles([]domain.MediaFile{f})
			continue
		}
		files = append(files, f)
	}
	switch {
	case len(files) > 0:
		return modeMedia, files, hasVideo
	case hasVideo || !event.HasMedia():
		return modeText, nil, hasVideo
	default:
		return modeForward, nil, false
	}
}

func (uc *RouterUsecase) deliverPrimary(ctx context.Context, target domain.RouteTarget, mode deliveryMode, text string, files []domain.MediaFile, event *domain.MessageEvent) error {
	switch mode {
	case modeMedia:
		return uc.sink.DeliverMedia(ctx, target.Destination, target.TopicID, files, text)
	case modeForward:
		return uc.sink.ForwardOriginal(ctx, target.Destination, target.TopicID, event)
	default:
		return uc.sink.Deliver(ctx, target.Destination, target.TopicID, text)
	}
}

// ComposeMessage builds the outbound text: decorated body plus a source line
func ComposeMessage(event *domain.MessageEvent) string {
	var sb strings.Builder
	if body := event.Body(); body != "" {
		sb.WriteString(body)
		sb.WriteString("\n\n")
	}
	sb.WriteString("📢 @")
	sb.WriteString(event.Channel)
	if event.Link != "" {
		sb.WriteString("\n")
		sb.WriteString(event.Link)
	}
	return sb.String()
}

// ComposeNotice builds the degraded text and link message
func ComposeNotice(event *domain.MessageEvent) string {
	preview := []rune(event.Body())
	if len(preview) > noticePreviewRune {
		preview = append(preview[:noticePreviewRune], '…')
	}

	var sb strings.Builder
	sb.WriteString("⚠️ Full post from @")
	sb.WriteString(event.Channel)
	sb.WriteString(" could not be delivered.")
	if len(preview) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(string(preview))
	}
	if event.Link != "" {
		sb.WriteString("\n\n")
		sb.WriteString(event.Link)
	}
	return sb.String()
}

func removeFiles(files []domain.MediaFile) {
	for _, f := range files {
		if f.Path != "" {
			_ = os.Remove(f.Path)
		}
	}
}
