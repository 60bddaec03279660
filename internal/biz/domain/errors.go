package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrClassificationUnavailable means the AI classifier could not produce a result
	ErrClassificationUnavailable = errors.New("classification unavailable")

	// ErrPersistence wraps store write failures
	ErrPersistence = errors.New("persistence failure")

	// ErrDeliveryFailed means no destination accepted the message
	ErrDeliveryFailed = errors.New("delivery failed")

	// ErrAlreadyDecorated is returned when decorating an event twice
	ErrAlreadyDecorated = errors.New("event already decorated")
)

// RateLimitError is a throttled join that can be retried after Wait
type RateLimitError struct {
	Wait time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.Wait)
}

// JoinDeniedError is a join that will never succeed (private or invite-only channel)
type JoinDeniedError struct {
	Reason string
}

func (e *JoinDeniedError) Error() string {
	return "join denied: " + e.Reason
}

// InvalidTransitionError is returned for a state change the state machine does not allow
type InvalidTransitionError struct {
	Channel string
	From    SubscriptionState
	To      SubscriptionState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("channel %s: invalid transition %s -> %s", e.Channel, e.From, e.To)
}
