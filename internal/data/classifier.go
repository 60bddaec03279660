package data

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/channelrelay/relay/internal/biz/domain"
	"github.com/channelrelay/relay/internal/biz/repo"
)

const classifierPrompt = `You rate the urgency of regional news posts for an on-call news desk.

Levels:
- ignore: advertising, greetings, off-topic chatter
- normal: routine news
- important: disruptions affecting many people (outages, closures, severe weather warnings)
- urgent: immediate danger to life or property (disasters, evacuations, active emergencies)

Reply with a JSON object only: {"level": "<level>", "score": <0.0-1.0>}`

// classifierInputRunes caps the post text sent to the model
const classifierInputRunes = 2000

// ChatClient is the chat completion client used by the classifier
type ChatClient interface {
	Chat(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// classifierRepo implements urgency classification on a chat model
type classifierRepo struct {
	client ChatClient
}

// NewClassifierRepo creates a new classifier repository
func NewClassifierRepo(client ChatClient) repo.ClassifierRepo {
	return &classifierRepo{client: client}
}

type classifierReply struct {
	Level string  `json:"level"`
	Score float64 `json:"score"`
}

// Classify asks the model for a level and score
func (r *classifierRepo) Classify(ctx context.Context, text string) (domain.Urgency, error) {
	if utf8.RuneCountInString(text) > classifierInputRunes {
		text = string([]rune(text)[:classifierInputRunes])
	}

	content, err := r.client.Chat(ctx, classifierPrompt, text)
	if err != nil {
		return domain.Urgency{}, err
	}
	return parseClassifierReply(content)
}

// parseClassifierReply extracts the JSON object, tolerating code fences around it
func parseClassifierReply(content string) (domain.Urgency, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return domain.Urgency{}, fmt.Errorf("classifier reply is not JSON: %q", content)
	}

	var reply classifierReply
	if err := json.Unmarshal([]byte(content[start:end+1]), &reply); err != nil {
		return domain.Urgency{}, fmt.Errorf("failed to parse classifier reply: %w", err)
	}

	level, ok := domain.ParseUrgencyLevel(reply.Level)
	if !ok {
		return domain.Urgency{}, fmt.Errorf("unknown urgency level %q", reply.Level)
	}
	return domain.Urgency{Level: level, Score: reply.Score, Source: domain.ProvenanceAI}, nil
}
