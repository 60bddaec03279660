package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/channelrelay/relay/internal/api"
	"github.com/channelrelay/relay/internal/biz"
	"github.com/channelrelay/relay/internal/biz/usecase"
	"github.com/channelrelay/relay/internal/conf"
	"github.com/channelrelay/relay/internal/data"
	"github.com/channelrelay/relay/internal/infra/feishu"
	"github.com/channelrelay/relay/internal/infra/gateway"
	"github.com/channelrelay/relay/internal/infra/openai"
	"github.com/channelrelay/relay/internal/mcp"
	"github.com/channelrelay/relay/internal/service"
)

const version = "v0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, envFile, httpAddr string

	flagSet := pflag.NewFlagSet("relay", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to relay.yaml (default: RELAY_CONFIG_PATH or configs/relay.yaml)")
	flagSet.StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	flagSet.StringVar(&httpAddr, "http-addr", "", "admin HTTP listen address (overrides HTTP_ADDR)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	// Load .env file
	if err := godotenv.Load(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "No %s file found, using environment variables\n", envFile)
	}

	// Load configuration
	cfg, err := conf.LoadFromEnv(configPath)
	if err != nil {
		return err
	}
	if httpAddr != "" {
		cfg.HTTPAddr = httpAddr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize clients
	feishuClient := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, logger)
	gatewayClient := gateway.NewClient(cfg.Gateway.URL, cfg.Gateway.Token, logger)

	var chat data.ChatClient
	if cfg.Classifier.Enabled() {
		chat = openai.NewClient(cfg.Classifier.APIKey, cfg.Classifier.BaseURL, cfg.Classifier.Model)
		logger.Info("AI urgency classifier enabled", "model", cfg.Classifier.Model)
	} else {
		logger.Info("no classifier key, urgency uses the keyword heuristic")
	}

	// Initialize repository layer
	repos, err := data.NewRepositories(gatewayClient, feishuClient, chat, cfg.Store.DBPath, cfg.Gateway.MediaDir, logger)
	if err != nil {
		return fmt.Errorf("failed to create repositories: %w", err)
	}
	defer repos.Close()
	logger.Info("store opened", "path", cfg.Store.DBPath)

	// Initialize usecase layer
	relayCfg := cfg.Relay
	channels := relayCfg.ToChannels()
	ucs := biz.NewUsecases(biz.Repos{
		Platform:     repos.Platform,
		Store:        repos.Store,
		Subscription: repos.Subscription,
		Classifier:   repos.Classifier,
		Sink:         repos.Sink,
	}, usecase.SystemClock{}, biz.Options{
		Channels:        channels,
		Regions:         relayCfg.ToRegions(),
		Alerts:          relayCfg.ToAlertCategories(),
		SpamKeywords:    relayCfg.SpamKeywords,
		Heuristic:       relayCfg.ToHeuristicConfig(),
		ClassifyTimeout: cfg.Classifier.Timeout(),
		Monitor:         cfg.Monitor.ToMonitorConfig(),
		Pipeline:        cfg.Monitor.ToPipelineConfig(),
		Router:          cfg.ToRouterConfig(),
	}, logger)

	// Initialize service layer
	metrics := service.NewMetrics()
	relay := service.NewRelayService(ucs.Monitor, ucs.Pipeline, repos.Store, channels, metrics, logger)

	var exporter *service.ArchiveExporter
	if cfg.Archive.Enabled() {
		archive, err := data.NewS3Archive(ctx, data.S3Options{
			Bucket:          cfg.Archive.Bucket,
			Region:          cfg.Archive.Region,
			Endpoint:        cfg.Archive.Endpoint,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
		})
		if err != nil {
			return fmt.Errorf("failed to create archive: %w", err)
		}
		exporter = service.NewArchiveExporter(repos.Store, archive, service.ArchiveConfig{
			Prefix:     cfg.Archive.Prefix,
			Interval:   time.Duration(cfg.Archive.IntervalMinutes) * time.Minute,
			MaxRetries: cfg.Archive.MaxRetries,
		}, metrics, logger)
		exporter.Start(ctx)
		defer exporter.Stop()
	}

	// Admin HTTP with metrics and MCP tools
	mcpServer := mcp.NewServer(relay, version)
	apiServer := api.NewServer(relay, metrics.Registry, mcpServer.Handler(), cfg.HTTPAddr, logger)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("API server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		apiServer.Stop(shutdownCtx)
	}()

	logger.Info("starting channel relay", "version", version, "channels", len(channels), "config", relayCfg.Source)
	if err := relay.Run(ctx); err != nil {
		return err
	}
	logger.Info("shutting down")
	return nil
}
