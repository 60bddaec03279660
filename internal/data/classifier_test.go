package data

import (
	"context"
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/channelrelay/relay/internal/biz/domain"
)

type mockChatClient struct {
	reply    string
	err      error
	lastUser string
}

func (m *mockChatClient) Chat(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	m.lastUser = userMessage
	return m.reply, m.err
}

func TestParseClassifierReply(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    domain.UrgencyLevel
		score   float64
		wantErr bool
	}{
		{"plain", `{"level": "urgent", "score": 0.9}`, domain.UrgencyUrgent, 0.9, false},
		{"fenced", "```json\n{\"level\": \"Important\", \"score\": 0.6}\n```", domain.UrgencyImportant, 0.6, false},
		{"unknown level", `{"level": "critical", "score": 1}`, "", 0, true},
		{"not json", "urgent", "", 0, true},
		{"broken json", `{"level": }`, "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseClassifierReply(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got.Level != tt.want || got.Score != tt.score || got.Source != domain.ProvenanceAI {
				t.Errorf("Unexpected urgency %+v", got)
			}
		})
	}
}

func TestClassifierRepo_TruncatesInput(t *testing.T) {
	chat := &mockChatClient{reply: `{"level":"normal","score":0.1}`}
	r := NewClassifierRepo(chat)

	long := make([]rune, classifierInputRunes+100)
	for i := range long {
		long[i] = 'я'
	}
	if _, err := r.Classify(context.Background(), string(long)); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if n := utf8.RuneCountInString(chat.lastUser); n != classifierInputRunes {
		t.Errorf("Expected %d runes sent, got %d", classifierInputRunes, n)
	}
}

func TestClassifierRepo_PropagatesError(t *testing.T) {
	r := NewClassifierRepo(&mockChatClient{err: errors.New("quota exceeded")})
	if _, err := r.Classify(context.Background(), "text"); err == nil {
		t.Error("Expected error from chat client")
	}
}
