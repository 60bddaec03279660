package domain

import (
	"fmt"
	"time"
)

// JoinStatus tags the variant of a JoinResult
type JoinStatus string

const (
	JoinSuccess       JoinStatus = "success"
	JoinAlreadyMember JoinStatus = "already_member"
	JoinRateLimited   JoinStatus = "rate_limited"
	JoinDenied        JoinStatus = "denied"
)

// JoinResult is the structured outcome of a join request.
// Wait is only meaningful for JoinRateLimited, Reason for JoinDenied.
type JoinResult struct {
	Status JoinStatus
	Wait   time.Duration
	Reason string
}

// Joined returns a successful join result
func Joined() JoinResult {
	return JoinResult{Status: JoinSuccess}
}

// AlreadyMember returns a result for a channel that was already joined
func AlreadyMember() JoinResult {
	return JoinResult{Status: JoinAlreadyMember}
}

// RateLimited returns a result asking the caller to wait before retrying
func RateLimited(wait time.Duration) JoinResult {
	return JoinResult{Status: JoinRateLimited, Wait: wait}
}

// Denied returns a permanent rejection
func Denied(reason string) JoinResult {
	return JoinResult{Status: JoinDenied, Reason: reason}
}

// IsMember checks if the result leaves us subscribed
func (r JoinResult) IsMember() bool {
	return r.Status == JoinSuccess || r.Status == JoinAlreadyMember
}

// Err converts a non-member result to an error from the taxonomy
func (r JoinResult) Err() error {
	switch r.Status {
	case JoinRateLimited:
		return &RateLimitError{Wait: r.Wait}
	case JoinDenied:
		return &JoinDeniedError{Reason: r.Reason}
	case JoinSuccess, JoinAlreadyMember:
		return nil
	}
	return fmt.Errorf("unknown join status %q", r.Status)
}

func (r JoinResult) String() string {
	switch r.Status {
	case JoinRateLimited:
		return fmt.Sprintf("%s(%s)", r.Status, r.Wait)
	case JoinDenied:
		return fmt.Sprintf("%s(%s)", r.Status, r.Reason)
	}
	return string(r.Status)
}
