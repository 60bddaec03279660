package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/channelrelay/relay/internal/biz/domain"
	"github.com/channelrelay/relay/internal/conf"
	"github.com/channelrelay/relay/internal/data"
	"github.com/channelrelay/relay/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var dbPath, envFile string
	var batchSize int

	flagSet := pflag.NewFlagSet("relay-import", pflag.ContinueOnError)
	flagSet.StringVar(&dbPath, "db", "", "sqlite database path (default: DB_PATH or ~/.channel-relay/relay.db)")
	flagSet.StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	flagSet.IntVar(&batchSize, "batch", 500, "records per transaction")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: relay-import [flags] <archive.jsonl>... (use - for stdin)\n")
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() == 0 {
		flagSet.Usage()
		return errors.New("no input files")
	}

	_ = godotenv.Load(envFile)
	if dbPath == "" {
		dbPath = conf.DefaultDBPath()
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("component", "import")

	store, err := data.NewMessageStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	for _, path := range flagSet.Args() {
		records, err := readArchive(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		inserted, err := importRecords(ctx, store, records, batchSize)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		logger.Info("archive imported", "file", path, "records", len(records), "inserted", inserted,
			"skipped", len(records)-inserted)
	}
	return nil
}

func readArchive(path string) ([]service.ArchiveRecord, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return service.DecodeArchive(r)
}

// importer is the part of the message store used by the import
type importer interface {
	SaveEvents(ctx context.Context, events []*domain.MessageEvent) (int, error)
	UpdateLastSeenBatch(ctx context.Context, seen map[string]time.Time) error
}

// importRecords stores records in batches; duplicates are skipped by fingerprint
func importRecords(ctx context.Context, store importer, records []service.ArchiveRecord, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	inserted := 0
	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))

		events := make([]*domain.MessageEvent, 0, end-start)
		seen := make(map[string]time.Time)
		for _, rec := range records[start:end] {
			ev := rec.ToEvent()
			events = append(events, ev)
			if ev.Timestamp.After(seen[ev.Channel]) {
				seen[ev.Channel] = ev.Timestamp
			}
		}

		n, err := store.SaveEvents(ctx, events)
		if err != nil {
			return inserted, err
		}
		inserted += n

		if err := store.UpdateLastSeenBatch(ctx, seen); err != nil {
			return inserted, err
		}
	}
	return inserted, nil
}
