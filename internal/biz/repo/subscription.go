package repo

import "context"

// SubscriptionCache is the durable set of channels already joined
type SubscriptionCache interface {
	// Contains checks if the channel was joined in a previous run
	Contains(channel string) bool

	// Add records a confirmed join, persisted before returning
	Add(ctx context.Context, channel string) error

	// Clear forgets every entry
	Clear(ctx context.Context) error

	// Reconcile drops entries absent from the current channel list
	Reconcile(ctx context.Context, current []string) (int, error)

	// List returns the cached channels
	List() []string

	Close() error
}
