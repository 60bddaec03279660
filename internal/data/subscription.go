package data

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/channelrelay/relay/internal/biz/repo"
)

// subscriptionCache implements the subscription cache on SQLite.
// Writes go to the table first, then to the in-memory set.
type subscriptionCache struct {
	db *sql.DB

	mu      sync.RWMutex
	entries map[string]struct{}
}

// NewSubscriptionCache opens the cache and loads existing entries
func NewSubscriptionCache(dbPath string) (repo.SubscriptionCache, error) {
	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}

	// Create table
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS subscriptions (
			channel TEXT PRIMARY KEY,
			confirmed INTEGER NOT NULL DEFAULT 1,
			joined_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create subscriptions table: %w", err)
	}

	rows, err := db.Query(`SELECT channel FROM subscriptions WHERE confirmed = 1`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load subscriptions: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]struct{})
	for rows.Next() {
		var channel string
		if err := rows.Scan(&channel); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		entries[channel] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load subscriptions: %w", err)
	}

	return &subscriptionCache{db: db, entries: entries}, nil
}

// Contains checks if the channel is cached
func (c *subscriptionCache) Contains(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[channel]
	return ok
}

// Add persists a confirmed join
func (c *subscriptionCache) Add(ctx context.Context, channel string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO subscriptions (channel, confirmed, joined_at) VALUES (?, 1, ?)
	`, channel, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	c.entries[channel] = struct{}{}
	return nil
}

// Clear forgets every entry
func (c *subscriptionCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.ExecContext(ctx, `DELETE FROM subscriptions`); err != nil {
		return fmt.Errorf("failed to clear subscriptions: %w", err)
	}
	c.entries = make(map[string]struct{})
	return nil
}

// Reconcile drops entries not in current, in one transaction
func (c *subscriptionCache) Reconcile(ctx context.Context, current []string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keep := make(map[string]struct{}, len(current))
	for _, ch := range current {
		keep[ch] = struct{}{}
	}
	var stale []string
	for ch := range c.entries {
		if _, ok := keep[ch]; !ok {
			stale = append(stale, ch)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, ch := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM subscriptions WHERE channel = ?`, ch); err != nil {
			return 0, fmt.Errorf("failed to delete subscription: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit reconcile: %w", err)
	}

	for _, ch := range stale {
		delete(c.entries, ch)
	}
	return len(stale), nil
}

// List returns the cached channels sorted by name
func (c *subscriptionCache) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.entries))
	for ch := range c.entries {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// Close closes the database
func (c *subscriptionCache) Close() error {
	return c.db.Close()
}
