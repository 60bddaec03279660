package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/channelrelay/relay/internal/biz/domain"
	"github.com/channelrelay/relay/internal/conf"
	"github.com/channelrelay/relay/internal/data"
	"github.com/channelrelay/relay/internal/infra/feishu"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, envFile, region, file string

	flagSet := pflag.NewFlagSet("relay-send", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to relay.yaml")
	flagSet.StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	flagSet.StringVar(&region, "region", "", "only send to this region key (default: every region)")
	flagSet.StringVar(&file, "file", "", "attach a local file (images are sent as images)")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: relay-send [flags] <message>\n")
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
		return errors.New("message is required")
	}
	message := strings.Join(flagSet.Args(), " ")

	_ = godotenv.Load(envFile)
	cfg, err := conf.LoadFromEnv(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	targets := destinations(cfg.Relay.ToRegions(), cfg.Feishu.OutputChatID, region)
	if len(targets) == 0 {
		return fmt.Errorf("unknown region %q", region)
	}

	sink := data.NewFeishuSink(feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, nil))
	ctx := context.Background()

	failed := 0
	for _, t := range targets {
		text := fmt.Sprintf("[%s] %s", t.Region.Name, message)
		if file != "" {
			err = sink.DeliverMedia(ctx, t.Destination, t.TopicID, []domain.MediaFile{mediaFile(file)}, text)
		} else {
			err = sink.Deliver(ctx, t.Destination, t.TopicID, text)
		}
		if err != nil {
			failed++
			fmt.Printf("%-16s FAILED: %v\n", t.Region.Key, err)
			continue
		}
		fmt.Printf("%-16s sent to %s %s\n", t.Region.Key, t.Destination, t.TopicID)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d destinations failed", failed, len(targets))
	}
	return nil
}

// destinations lists the send targets of the selected regions; no regions means the base chat
func destinations(regions []domain.Region, baseChat, only string) []domain.RouteTarget {
	if len(regions) == 0 && only == "" {
		return []domain.RouteTarget{{
			Region:      domain.Region{Key: domain.DefaultRegionKey, Name: "General"},
			Destination: baseChat,
		}}
	}

	var out []domain.RouteTarget
	for _, r := range regions {
		if only != "" && r.Key != only {
			continue
		}
		dest := r.ChatID
		if dest == "" {
			dest = baseChat
		}
		out = append(out, domain.RouteTarget{Region: r, Destination: dest, TopicID: r.TopicID})
	}
	return out
}

func mediaFile(path string) domain.MediaFile {
	kind := domain.MediaDocument
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		kind = domain.MediaPhoto
	}
	return domain.MediaFile{Kind: kind, Path: path, Name: filepath.Base(path)}
}
