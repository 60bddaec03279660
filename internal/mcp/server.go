package mcp

import (
	"context"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/channelrelay/relay/internal/service"
)

// Controller is the relay surface exposed as tools
type Controller interface {
	Status(ctx context.Context) *service.Status
	Channels(ctx context.Context) ([]service.ChannelStatus, error)
	Pause() bool
	Resume() bool
}

// Server provides relay admin tools over MCP
type Server struct {
	server     *mcp.Server
	controller Controller
}

// NewServer creates the MCP server and registers its tools
func NewServer(controller Controller, version string) *Server {
	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "channel-relay",
			Version: version,
		}, nil),
		controller: controller,
	}
	s.registerTools()
	return s
}

// Handler serves the tools over streamable HTTP
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "relay_status",
		Description: "Get the relay status: phase, pause state, channel states and event outcome counters.",
	}, s.handleStatus)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "relay_channels",
		Description: "List the monitored channels with their subscription state and last activity time.",
	}, s.handleChannels)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "relay_pause",
		Description: "Pause forwarding. Posts arriving while paused are dropped and not replayed.",
	}, s.handlePause)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "relay_resume",
		Description: "Resume forwarding after a pause.",
	}, s.handleResume)
}

// EmptyInput is the input of tools without arguments
type EmptyInput struct{}

// ChannelInfo is one channel as reported by the tools
type ChannelInfo struct {
	Handle    string   `json:"handle"`
	State     string   `json:"state"`
	Regions   []string `json:"regions,omitempty"`
	LastError string   `json:"last_error,omitempty"`
	LastSeen  string   `json:"last_seen,omitempty"`
}

func toChannelInfo(ch service.ChannelStatus) ChannelInfo {
	info := ChannelInfo{
		Handle:    ch.Handle,
		State:     ch.State,
		Regions:   ch.Regions,
		LastError: ch.LastError,
	}
	if ch.LastSeen != nil {
		info.LastSeen = ch.LastSeen.UTC().Format(time.RFC3339)
	}
	return info
}

// StatusOutput is the relay status
type StatusOutput struct {
	Phase     string         `json:"phase"`
	Paused    bool           `json:"paused"`
	StartedAt string         `json:"started_at"`
	Channels  []ChannelInfo  `json:"channels"`
	States    map[string]int `json:"states"`
	Outcomes  map[string]int `json:"outcomes"`
	JoinCalls int            `json:"join_calls"`
}

func (s *Server) handleStatus(ctx context.Context, req *mcp.CallToolRequest, input EmptyInput) (*mcp.CallToolResult, StatusOutput, error) {
	status := s.controller.Status(ctx)
	out := StatusOutput{
		Phase:     status.Phase,
		Paused:    status.Paused,
		StartedAt: status.StartedAt.UTC().Format(time.RFC3339),
		Channels:  make([]ChannelInfo, 0, len(status.Channels)),
		States:    status.States,
		Outcomes:  status.Outcomes,
		JoinCalls: status.JoinCalls,
	}
	if out.States == nil {
		out.States = map[string]int{}
	}
	if out.Outcomes == nil {
		out.Outcomes = map[string]int{}
	}
	for _, ch := range status.Channels {
		out.Channels = append(out.Channels, toChannelInfo(ch))
	}
	return nil, out, nil
}

// ChannelsInput filters the channel list
type ChannelsInput struct {
	State string `json:"state,omitempty" jsonschema:"Only return channels in this state (joined, failed, rate_limited, ...)"`
}

// ChannelsOutput contains the channel list
type ChannelsOutput struct {
	Channels []ChannelInfo `json:"channels"`
	Error    string        `json:"error,omitempty"`
}

func (s *Server) handleChannels(ctx context.Context, req *mcp.CallToolRequest, input ChannelsInput) (*mcp.CallToolResult, ChannelsOutput, error) {
	channels, err := s.controller.Channels(ctx)
	out := ChannelsOutput{Channels: []ChannelInfo{}}
	if err != nil {
		out.Error = err.Error()
	}
	for _, ch := range channels {
		if input.State == "" || ch.State == input.State {
			out.Channels = append(out.Channels, toChannelInfo(ch))
		}
	}
	return nil, out, nil
}

// SwitchOutput reports a pause or resume request
type SwitchOutput struct {
	Changed bool `json:"changed"`
	Paused  bool `json:"paused"`
}

func (s *Server) handlePause(ctx context.Context, req *mcp.CallToolRequest, input EmptyInput) (*mcp.CallToolResult, SwitchOutput, error) {
	return nil, SwitchOutput{Changed: s.controller.Pause(), Paused: true}, nil
}

func (s *Server) handleResume(ctx context.Context, req *mcp.CallToolRequest, input EmptyInput) (*mcp.CallToolResult, SwitchOutput, error) {
	return nil, SwitchOutput{Changed: s.controller.Resume(), Paused: false}, nil
}
