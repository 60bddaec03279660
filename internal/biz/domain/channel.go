package domain

import "strings"

// SubscriptionState represents where a channel is in the acquisition state machine
type SubscriptionState string

const (
	StateUnknown     SubscriptionState = "unknown"
	StateCached      SubscriptionState = "cached"
	StateNeedsJoin   SubscriptionState = "needs_join"
	StateJoined      SubscriptionState = "joined"
	StateRateLimited SubscriptionState = "rate_limited"
	StateFailed      SubscriptionState = "failed"
)

// AllStates lists the states in lifecycle order
var AllStates = []SubscriptionState{
	StateUnknown, StateCached, StateNeedsJoin, StateJoined, StateRateLimited, StateFailed,
}

var transitions = map[SubscriptionState][]SubscriptionState{
	StateUnknown:     {StateCached, StateNeedsJoin},
	StateCached:      {StateJoined, StateFailed},
	StateNeedsJoin:   {StateJoined, StateRateLimited, StateFailed},
	StateRateLimited: {StateJoined, StateFailed},
}

// Peer is the live handle of a resolved channel on the platform
type Peer struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Title    string `json:"title,omitempty"`
}

// Channel represents a configured content source
type Channel struct {
	Handle    string
	Regions   []string // Explicit region keys from config
	State     SubscriptionState
	Peer      *Peer
	LastError string
}

// NewChannel creates a channel in the unknown state
func NewChannel(handle string, regions []string) *Channel {
	return &Channel{
		Handle:  NormalizeHandle(handle),
		Regions: regions,
		State:   StateUnknown,
	}
}

// Transition moves the channel to a new state, rejecting moves the state machine forbids
func (c *Channel) Transition(to SubscriptionState) error {
	for _, allowed := range transitions[c.State] {
		if allowed == to {
			c.State = to
			return nil
		}
	}
	return &InvalidTransitionError{Channel: c.Handle, From: c.State, To: to}
}

// Fail marks the channel failed and records why
func (c *Channel) Fail(reason string) error {
	c.LastError = reason
	return c.Transition(StateFailed)
}

// IsJoined checks if the channel is subscribed
func (c *Channel) IsJoined() bool {
	return c.State == StateJoined
}

// IsTerminal checks if no further automatic transition can happen
func (c *Channel) IsTerminal() bool {
	return c.State == StateJoined || c.State == StateFailed
}

// HasExplicitRegions checks if config assigns regions to this channel
func (c *Channel) HasExplicitRegions() bool {
	return len(c.Regions) > 0
}

// NormalizeHandle strips link prefixes and @ from a channel handle
func NormalizeHandle(handle string) string {
	h := strings.TrimSpace(handle)
	for _, prefix := range []string{"https://t.me/", "http://t.me/", "t.me/"} {
		h = strings.TrimPrefix(h, prefix)
	}
	h = strings.TrimPrefix(h, "@")
	h = strings.TrimSuffix(h, "/")
	return strings.ToLower(h)
}
