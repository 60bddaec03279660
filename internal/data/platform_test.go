package data

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/channelrelay/relay/internal/biz/domain"
	"github.com/channelrelay/relay/internal/infra/gateway"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPlatform(t *testing.T, handler http.Handler) *platformRepo {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := gateway.NewClient(srv.URL, "secret", quietLogger())
	client.ReconnectDelay = 10 * time.Millisecond
	return NewPlatformRepo(client, t.TempDir(), quietLogger()).(*platformRepo)
}

func TestJoinResultFromResponse(t *testing.T) {
	tests := []struct {
		name string
		resp gateway.JoinResponse
		want domain.JoinResult
	}{
		{"joined", gateway.JoinResponse{HTTPStatus: 200, Status: "joined"}, domain.Joined()},
		{"already", gateway.JoinResponse{HTTPStatus: 200, Status: "already_member"}, domain.AlreadyMember()},
		{"wait seconds", gateway.JoinResponse{HTTPStatus: 429, WaitSeconds: 120}, domain.RateLimited(120 * time.Second)},
		{"wait in message", gateway.JoinResponse{HTTPStatus: 429, Error: "FLOOD_WAIT_37"}, domain.RateLimited(37 * time.Second)},
		{"wait in prose", gateway.JoinResponse{Status: "rate_limited", Error: "A wait of 15 seconds is required"}, domain.RateLimited(15 * time.Second)},
		{"no wait hint", gateway.JoinResponse{HTTPStatus: 429}, domain.RateLimited(0)},
		{"denied", gateway.JoinResponse{HTTPStatus: 403, Error: "CHANNEL_PRIVATE"}, domain.Denied("CHANNEL_PRIVATE")},
		{"denied no reason", gateway.JoinResponse{HTTPStatus: 400}, domain.Denied("status 400")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := joinResultFromResponse(&tt.resp)
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPlatform_ResolveAndJoin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/channels/{name}", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.PathValue("name") != "Sakhalin_News" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(gateway.Channel{ID: 1001, Username: "Sakhalin_News", Title: "Sakhalin"})
	})
	mux.HandleFunc("POST /v1/channels/1001/join", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{"status": "rate_limited", "wait_seconds": 42})
	})
	mux.HandleFunc("POST /v1/channels/1002/join", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	p := newTestPlatform(t, mux)
	ctx := context.Background()

	peer, err := p.Resolve(ctx, "Sakhalin_News")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if peer.ID != 1001 || peer.Username != "sakhalin_news" {
		t.Errorf("Unexpected peer %+v", peer)
	}

	if _, err := p.Resolve(ctx, "missing"); err == nil {
		t.Error("Expected error for unknown channel")
	}

	result, err := p.Join(ctx, peer)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if result != domain.RateLimited(42*time.Second) {
		t.Errorf("Expected rate limit of 42s, got %v", result)
	}

	if _, err := p.Join(ctx, &domain.Peer{ID: 1002}); err == nil {
		t.Error("Expected transport error for 5xx")
	}
}

func TestPlatform_DownloadAlbumSkipsVideo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/channels/news/messages/7/media", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"media": []gateway.Media{
			{Kind: "photo", FileID: "p1", FileName: "a.jpg"},
			{Kind: "video", FileID: "v1"},
			{Kind: "document", FileID: "d1", FileName: "report.pdf"},
		}})
	})
	mux.HandleFunc("GET /v1/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "content-"+r.PathValue("id"))
	})
	p := newTestPlatform(t, mux)

	ev := &domain.MessageEvent{Channel: "news", MessageID: 7, GroupID: "g1"}
	files, err := p.DownloadMedia(context.Background(), ev)
	if err != nil {
		t.Fatalf("DownloadMedia: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(files))
	}
	if files[0].Kind != domain.MediaPhoto || files[2].Name != "report.pdf" {
		t.Errorf("Unexpected files %+v", files)
	}
	if files[1].Kind != domain.MediaVideo || files[1].Path != "" {
		t.Errorf("Expected video listed without download, got %+v", files[1])
	}
	data, err := os.ReadFile(files[0].Path)
	if err != nil || string(data) != "content-p1" {
		t.Errorf("Unexpected file content %q %v", data, err)
	}
}

func TestPlatform_SubscribeStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan []int64, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/stream", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var action struct {
			Action string  `json:"action"`
			Peers  []int64 `json:"peers"`
		}
		if err := conn.ReadJSON(&action); err != nil || action.Action != "subscribe" {
			return
		}
		subscribed <- action.Peers

		conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		conn.WriteJSON(map[string]any{"type": "ping"})
		conn.WriteJSON(gateway.Event{
			Type:      "message",
			Channel:   "Sakhalin_News",
			MessageID: 5,
			Date:      1700000000,
			Text:      "hello",
			Media:     []gateway.Media{{Kind: "photo", FileID: "p1"}},
		})

		// Hold the connection until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	p := newTestPlatform(t, mux)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := p.Subscribe(ctx, []*domain.Peer{{ID: 1}, {ID: 2}})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	select {
	case peers := <-subscribed:
		if len(peers) != 2 || peers[0] != 1 || peers[1] != 2 {
			t.Errorf("Unexpected subscribe peers %v", peers)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for subscribe")
	}

	select {
	case ev := <-events:
		if ev.Channel != "sakhalin_news" || ev.Text != "hello" || ev.MessageID != 5 {
			t.Errorf("Unexpected event %+v", ev)
		}
		if ev.Link != "https://t.me/sakhalin_news/5" {
			t.Errorf("Unexpected link %q", ev.Link)
		}
		if !ev.Timestamp.Equal(time.Unix(1700000000, 0)) || len(ev.Media) != 1 {
			t.Errorf("Unexpected timestamp or media %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for event")
	}

	cancel()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("Expected stream to close after cancel")
		}
	}
}
