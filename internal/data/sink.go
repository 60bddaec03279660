package data

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/channelrelay/relay/internal/biz/domain"
	"github.com/channelrelay/relay/internal/biz/repo"
	"github.com/channelrelay/relay/internal/infra/feishu"
)

// FeishuClient is the part of the Feishu client used for delivery
type FeishuClient interface {
	SendText(ctx context.Context, chatID, topicID, text string) error
	SendPost(ctx context.Context, chatID, topicID, title string, paragraphs [][]feishu.PostElement) error
	SendImage(ctx context.Context, chatID, topicID, path string) error
	SendFile(ctx context.Context, chatID, topicID, path, name string) error
}

// feishuSink implements the output sink on Feishu
type feishuSink struct {
	client FeishuClient
}

// NewFeishuSink creates a new Feishu output sink
func NewFeishuSink(client FeishuClient) repo.OutputSink {
	return &feishuSink{client: client}
}

// Deliver sends a text message
func (s *feishuSink) Deliver(ctx context.Context, destination, topicID, text string) error {
	return s.client.SendText(ctx, destination, topicID, text)
}

// DeliverMedia sends each file, then the caption.
// Nothing but files goes out until one of them is accepted, so a failed bundle
// leaves the destination free for the fallback notice.
func (s *feishuSink) DeliverMedia(ctx context.Context, destination, topicID string, files []domain.MediaFile, caption string) error {
	var errs []error
	sent := 0
	for _, f := range files {
		var err error
		if f.Kind == domain.MediaPhoto {
			err = s.client.SendImage(ctx, destination, topicID, f.Path)
		} else {
			err = s.client.SendFile(ctx, destination, topicID, f.Path, f.Name)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Name, err))
			continue
		}
		sent++
	}

	if sent == 0 && len(files) > 0 {
		return fmt.Errorf("no media delivered: %w", errors.Join(errs...))
	}
	if err := s.client.SendText(ctx, destination, topicID, caption); err != nil {
		return fmt.Errorf("failed to send caption: %w", err)
	}
	return nil
}

// ForwardOriginal sends a rich post pointing at the original
func (s *feishuSink) ForwardOriginal(ctx context.Context, destination, topicID string, event *domain.MessageEvent) error {
	var paragraphs [][]feishu.PostElement
	for _, line := range strings.Split(event.Body(), "\n") {
		paragraphs = append(paragraphs, []feishu.PostElement{feishu.TextElement(line)})
	}
	if event.Link != "" {
		paragraphs = append(paragraphs, []feishu.PostElement{feishu.LinkElement("Open original post", event.Link)})
	}
	return s.client.SendPost(ctx, destination, topicID, "📢 @"+event.Channel, paragraphs)
}
