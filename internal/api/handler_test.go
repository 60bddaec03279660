package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/channelrelay/relay/internal/service"
)

// MockController implements Controller for testing
type MockController struct {
	paused      bool
	channels    []service.ChannelStatus
	channelsErr error
}

func (m *MockController) Status(ctx context.Context) *service.Status {
	return &service.Status{
		Phase:    service.PhaseListening,
		Paused:   m.paused,
		Channels: m.channels,
		Outcomes: map[string]int{"dispatched": 3},
	}
}

func (m *MockController) Channels(ctx context.Context) ([]service.ChannelStatus, error) {
	return m.channels, m.channelsErr
}

func (m *MockController) Pause() bool {
	changed := !m.paused
	m.paused = true
	return changed
}

func (m *MockController) Resume() bool {
	changed := m.paused
	m.paused = false
	return changed
}

func newTestServer(ctrl *MockController) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(ctrl, service.NewMetrics().Registry, nil, ":0", logger)
}

func TestHandleStatus(t *testing.T) {
	ctrl := &MockController{channels: []service.ChannelStatus{{Handle: "news", State: "joined"}}}
	handler := newTestServer(ctrl).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var status service.Status
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Phase != service.PhaseListening || status.Outcomes["dispatched"] != 3 || len(status.Channels) != 1 {
		t.Errorf("Unexpected status %+v", status)
	}
}

func TestHandlePauseResume(t *testing.T) {
	ctrl := &MockController{}
	handler := newTestServer(ctrl).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/pause", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/pause", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var result map[string]interface{}
	json.NewDecoder(w.Body).Decode(&result)
	if result["changed"] != true || !ctrl.paused {
		t.Errorf("Expected pause to apply, got %v", result)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/resume", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if ctrl.paused {
		t.Error("Expected resume to apply")
	}
}

func TestHandleChannels(t *testing.T) {
	ctrl := &MockController{channels: []service.ChannelStatus{
		{Handle: "a", State: "joined"},
		{Handle: "b", State: "failed"},
	}}
	handler := newTestServer(ctrl).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/channels?state=joined", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var result struct {
		Channels []service.ChannelStatus `json:"channels"`
	}
	json.NewDecoder(w.Body).Decode(&result)
	if len(result.Channels) != 1 || result.Channels[0].Handle != "a" {
		t.Errorf("Expected only joined channel, got %+v", result.Channels)
	}

	ctrl.channelsErr = errors.New("db locked")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/channels", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", w.Code)
	}
}

func TestMetricsAndHealth(t *testing.T) {
	s := newTestServer(&MockController{})
	handler := s.Handler()

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Body.String() != "ok" {
		t.Errorf("Expected ok, got %q", w.Body.String())
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), "relay_events_total") {
		t.Errorf("Expected relay metrics, got %q", w.Body.String())
	}
}

func TestMetricsDisabledWithoutRegistry(t *testing.T) {
	var reg *prometheus.Registry
	s := NewServer(&MockController{}, reg, nil, ":0", nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
