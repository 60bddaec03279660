package data

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/channelrelay/relay/internal/biz/domain"
	"github.com/channelrelay/relay/internal/biz/repo"
	"github.com/channelrelay/relay/internal/infra/gateway"

	_ "modernc.org/sqlite"
)

// Repositories contains all repositories
type Repositories struct {
	Platform     repo.PlatformRepo
	Store        repo.MessageStore
	Subscription repo.SubscriptionCache
	Classifier   repo.ClassifierRepo // nil when no classifier is configured
	Sink         repo.OutputSink
}

// NewRepositories creates all repositories. chat may be nil.
func NewRepositories(
	gatewayClient *gateway.Client,
	feishuClient FeishuClient,
	chat ChatClient,
	dbPath string,
	mediaDir string,
	logger *slog.Logger,
) (*Repositories, error) {
	store, err := NewMessageStore(dbPath)
	if err != nil {
		return nil, err
	}

	subscriptions, err := NewSubscriptionCache(dbPath)
	if err != nil {
		store.Close()
		return nil, err
	}

	var classifier repo.ClassifierRepo
	if chat != nil {
		classifier = NewClassifierRepo(chat)
	}

	return &Repositories{
		Platform:     NewPlatformRepo(gatewayClient, mediaDir, logger),
		Store:        store,
		Subscription: subscriptions,
		Classifier:   classifier,
		Sink:         NewFeishuSink(feishuClient),
	}, nil
}

// Close closes the databases
func (r *Repositories) Close() error {
	err1 := r.Subscription.Close()
	err2 := r.Store.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// openDB opens a SQLite database, creating its directory
func openDB(dbPath string) (*sql.DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func removeDownloaded(files []domain.MediaFile) {
	for _, f := range files {
		if f.Path != "" {
			_ = os.Remove(f.Path)
		}
	}
}
