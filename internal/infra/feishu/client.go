package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
)

// Upload type values of the IM API
const (
	imageTypeMessage = "message"
	fileTypeStream   = "stream"
)

// PostElement is one inline element of a rich text paragraph
type PostElement map[string]any

// TextElement returns a plain text element
func TextElement(text string) PostElement {
	return PostElement{"tag": "text", "text": text}
}

// LinkElement returns a hyperlink element
func LinkElement(text, href string) PostElement {
	return PostElement{"tag": "a", "text": text, "href": href}
}

// Client is the Feishu API client used for outbound delivery
type Client struct {
	larkCli *lark.Client
	logger  *slog.Logger
}

// NewClient creates a new Feishu client
func NewClient(appID, appSecret string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		larkCli: lark.NewClient(appID, appSecret),
		logger:  logger.With("component", "feishu"),
	}
}

// send posts a message to the chat, or into the thread rooted at topicID when set
func (c *Client) send(ctx context.Context, chatID, topicID, msgType, content string) (string, error) {
	if topicID != "" {
		req := larkim.NewReplyMessageReqBuilder().
			MessageId(topicID).
			Body(larkim.NewReplyMessageReqBodyBuilder().
				MsgType(msgType).
				Content(content).
				ReplyInThread(true).
				Build()).
			Build()

		resp, err := c.larkCli.Im.Message.Reply(ctx, req)
		if err != nil {
			return "", fmt.Errorf("reply in thread failed: %w", err)
		}
		if !resp.Success() {
			return "", fmt.Errorf("reply in thread error: %s", resp.Msg)
		}
		return messageID(resp.Data), nil
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType(msgType).
			Content(content).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("send message failed: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("send message error: %s", resp.Msg)
	}
	if resp.Data != nil && resp.Data.MessageId != nil {
		return *resp.Data.MessageId, nil
	}
	return "", nil
}

func messageID(data *larkim.ReplyMessageRespData) string {
	if data == nil || data.MessageId == nil {
		return ""
	}
	return *data.MessageId
}

// SendText sends a text message
func (c *Client) SendText(ctx context.Context, chatID, topicID, text string) error {
	contentJSON, _ := json.Marshal(map[string]string{"text": text})

	if _, err := c.send(ctx, chatID, topicID, larkim.MsgTypeText, string(contentJSON)); err != nil {
		return err
	}
	c.logger.Debug("text sent", "chat_id", chatID, "topic_id", topicID)
	return nil
}

// SendPost sends a rich text (post) message
func (c *Client) SendPost(ctx context.Context, chatID, topicID, title string, paragraphs [][]PostElement) error {
	post := map[string]any{
		"zh_cn": map[string]any{
			"title":   title,
			"content": paragraphs,
		},
	}
	contentJSON, _ := json.Marshal(post)

	if _, err := c.send(ctx, chatID, topicID, larkim.MsgTypePost, string(contentJSON)); err != nil {
		return err
	}
	c.logger.Debug("post sent", "chat_id", chatID, "topic_id", topicID)
	return nil
}

// SendImage uploads a local image and sends it
func (c *Client) SendImage(ctx context.Context, chatID, topicID, path string) error {
	key, err := c.UploadImage(ctx, path)
	if err != nil {
		return err
	}
	contentJSON, _ := json.Marshal(map[string]string{"image_key": key})
	_, err = c.send(ctx, chatID, topicID, larkim.MsgTypeImage, string(contentJSON))
	return err
}

// SendFile uploads a local file and sends it
func (c *Client) SendFile(ctx context.Context, chatID, topicID, path, name string) error {
	key, err := c.UploadFile(ctx, path, name)
	if err != nil {
		return err
	}
	contentJSON, _ := json.Marshal(map[string]string{"file_key": key})
	_, err = c.send(ctx, chatID, topicID, larkim.MsgTypeFile, string(contentJSON))
	return err
}

// UploadImage uploads an image for use in messages and returns its key
func (c *Client) UploadImage(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	req := larkim.NewCreateImageReqBuilder().
		Body(larkim.NewCreateImageReqBodyBuilder().
			ImageType(imageTypeMessage).
			Image(file).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Image.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("upload image error: %s", resp.Msg)
	}
	if resp.Data == nil || resp.Data.ImageKey == nil {
		return "", fmt.Errorf("upload image returned no key")
	}
	return *resp.Data.ImageKey, nil
}

// UploadFile uploads a file for use in messages and returns its key
func (c *Client) UploadFile(ctx context.Context, path, name string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	req := larkim.NewCreateFileReqBuilder().
		Body(larkim.NewCreateFileReqBodyBuilder().
			FileType(fileTypeStream).
			FileName(name).
			File(file).
			Build()).
		Build()

	resp, err := c.larkCli.Im.File.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("upload file error: %s", resp.Msg)
	}
	if resp.Data == nil || resp.Data.FileKey == nil {
		return "", fmt.Errorf("upload file returned no key")
	}
	return *resp.Data.FileKey, nil
}
