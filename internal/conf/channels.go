package conf

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/channelrelay/relay/internal/biz/domain"
	"github.com/channelrelay/relay/internal/biz/usecase"
)

// RelayConfig contains channels and routing rules loaded from YAML
type RelayConfig struct {
	Channels      []ChannelEntry  `yaml:"channels"`
	Regions       []RegionEntry   `yaml:"regions"`
	DefaultRegion string          `yaml:"default_region"`
	Alerts        []AlertEntry    `yaml:"alerts"`
	SpamKeywords  []string        `yaml:"spam_keywords"`
	Urgency       *UrgencyEntries `yaml:"urgency"`

	// Path the file was read from
	Source string `yaml:"-"`
}

// ChannelEntry is one monitored channel
type ChannelEntry struct {
	Handle  string   `yaml:"handle"`
	Regions []string `yaml:"regions"`
}

// UnmarshalYAML accepts either a bare handle or a mapping
func (c *ChannelEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		c.Handle = node.Value
		return nil
	}
	type plain ChannelEntry
	return node.Decode((*plain)(c))
}

// RegionEntry is one output region
type RegionEntry struct {
	Key      string   `yaml:"key"`
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	TopicID  string   `yaml:"topic_id"`
	ChatID   string   `yaml:"chat_id"`
}

// AlertEntry is one alert category
type AlertEntry struct {
	Category string   `yaml:"category"`
	Emoji    string   `yaml:"emoji"`
	Priority bool     `yaml:"priority"`
	Keywords []string `yaml:"keywords"`
}

// UrgencyEntries overrides the heuristic scoring
type UrgencyEntries struct {
	Keywords           map[string]float64 `yaml:"keywords"`
	TimeMarkers        []string           `yaml:"time_markers"`
	TimeMarkerWeight   float64            `yaml:"time_marker_weight"`
	ImportantThreshold float64            `yaml:"important_threshold"`
	UrgentThreshold    float64            `yaml:"urgent_threshold"`
}

// LoadRelayConfig loads the relay configuration from a YAML file
func LoadRelayConfig(configPath string) (*RelayConfig, error) {
	// Try multiple paths
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/relay.yaml",
			"./configs/relay.yaml",
			"/etc/channel-relay/relay.yaml",
		}
		// Add path relative to executable
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "relay.yaml"))
		}
	}

	var data []byte
	var loadedPath string
	var err error

	for _, p := range paths {
		data, err = os.ReadFile(p)
		if err == nil {
			loadedPath = p
			break
		}
	}

	if data == nil {
		return nil, &ConfigError{Field: "RELAY_CONFIG_PATH", Message: fmt.Sprintf("relay.yaml not found (tried %s)", strings.Join(paths, ", "))}
	}

	slog.Info("loading relay config", "component", "config", "path", loadedPath)
	return ParseRelayConfig(data, loadedPath)
}

// ParseRelayConfig parses YAML and fills defaults
func ParseRelayConfig(data []byte, source string) (*RelayConfig, error) {
	var cfg RelayConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", source, err)
	}
	cfg.Source = source
	if cfg.DefaultRegion == "" {
		cfg.DefaultRegion = domain.DefaultRegionKey
	}
	return &cfg, nil
}

// Validate checks references between channels and regions
func (c *RelayConfig) Validate() error {
	if len(c.Channels) == 0 {
		return &ConfigError{Field: "channels", Message: "at least one channel is required"}
	}

	regions := make(map[string]bool, len(c.Regions))
	for _, r := range c.Regions {
		if r.Key == "" {
			return &ConfigError{Field: "regions", Message: "region without key"}
		}
		if regions[r.Key] {
			return &ConfigError{Field: "regions", Message: "duplicate region " + r.Key}
		}
		regions[r.Key] = true
	}

	seen := make(map[string]bool, len(c.Channels))
	for _, ch := range c.Channels {
		handle := domain.NormalizeHandle(ch.Handle)
		if handle == "" {
			return &ConfigError{Field: "channels", Message: "empty channel handle"}
		}
		if seen[handle] {
			return &ConfigError{Field: "channels", Message: "duplicate channel " + handle}
		}
		seen[handle] = true
		for _, key := range ch.Regions {
			if !regions[key] {
				return &ConfigError{Field: "channels." + handle, Message: "unknown region " + key}
			}
		}
	}

	for _, a := range c.Alerts {
		if a.Category == "" || len(a.Keywords) == 0 {
			return &ConfigError{Field: "alerts", Message: "alert needs a category and keywords"}
		}
	}
	return nil
}

// ToChannels creates domain channels in configuration order
func (c *RelayConfig) ToChannels() []*domain.Channel {
	out := make([]*domain.Channel, 0, len(c.Channels))
	for _, ch := range c.Channels {
		out = append(out, domain.NewChannel(ch.Handle, ch.Regions))
	}
	return out
}

// ToRegions converts region entries
func (c *RelayConfig) ToRegions() []domain.Region {
	out := make([]domain.Region, 0, len(c.Regions))
	for _, r := range c.Regions {
		name := r.Name
		if name == "" {
			name = r.Key
		}
		out = append(out, domain.Region{
			Key:      r.Key,
			Name:     name,
			Keywords: r.Keywords,
			TopicID:  r.TopicID,
			ChatID:   r.ChatID,
		})
	}
	return out
}

// ToAlertCategories converts alert entries in configuration order
func (c *RelayConfig) ToAlertCategories() []domain.AlertCategory {
	out := make([]domain.AlertCategory, 0, len(c.Alerts))
	for _, a := range c.Alerts {
		out = append(out, domain.AlertCategory{
			Name:     a.Category,
			Emoji:    a.Emoji,
			Priority: a.Priority,
			Keywords: a.Keywords,
		})
	}
	return out
}

// ToHeuristicConfig merges the YAML overrides onto the default scoring
func (c *RelayConfig) ToHeuristicConfig() usecase.HeuristicConfig {
	cfg := usecase.DefaultHeuristicConfig()
	if c.Urgency == nil {
		return cfg
	}

	if len(c.Urgency.Keywords) > 0 {
		keys := make([]string, 0, len(c.Urgency.Keywords))
		for k := range c.Urgency.Keywords {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		cfg.Keywords = cfg.Keywords[:0]
		for _, k := range keys {
			cfg.Keywords = append(cfg.Keywords, usecase.WeightedKeyword{Keyword: k, Weight: c.Urgency.Keywords[k]})
		}
	}
	if len(c.Urgency.TimeMarkers) > 0 {
		cfg.TimeMarkers = c.Urgency.TimeMarkers
	}
	if c.Urgency.TimeMarkerWeight > 0 {
		cfg.TimeMarkerWeight = c.Urgency.TimeMarkerWeight
	}
	if c.Urgency.ImportantThreshold > 0 {
		cfg.ImportantThreshold = c.Urgency.ImportantThreshold
	}
	if c.Urgency.UrgentThreshold > 0 {
		cfg.UrgentThreshold = c.Urgency.UrgentThreshold
	}
	return cfg
}
