package conf

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/channelrelay/relay/internal/biz/domain"
	"github.com/channelrelay/relay/internal/biz/usecase"
)

// Config represents application configuration
type Config struct {
	// Feishu output configuration
	Feishu FeishuConfig

	// Platform gateway configuration
	Gateway GatewayConfig

	// AI classifier configuration (optional)
	Classifier ClassifierConfig

	// Join pacing
	Monitor MonitorConfig

	// Local storage
	Store StoreConfig

	// S3 archive configuration (optional)
	Archive ArchiveConfig

	// Admin HTTP listen address
	HTTPAddr string

	// Channels, regions, alerts (loaded from YAML)
	Relay *RelayConfig

	// Debug mode
	Debug bool
}

// FeishuConfig contains Feishu configuration
type FeishuConfig struct {
	AppID        string
	AppSecret    string
	OutputChatID string // Base destination for regions without their own chat
}

// GatewayConfig contains the platform gateway endpoint
type GatewayConfig struct {
	URL      string
	Token    string
	MediaDir string // Where downloaded attachments are written
}

// ClassifierConfig contains the OpenAI-compatible classifier settings
type ClassifierConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// MonitorConfig contains join pacing settings
type MonitorConfig struct {
	JoinBatchSize           int
	JoinBatchPauseSeconds   int
	DefaultFloodWaitSeconds int
	MediaGroupCapacity      int
}

// StoreConfig contains the sqlite path
type StoreConfig struct {
	DBPath string
}

// ArchiveConfig contains the S3 exporter settings
type ArchiveConfig struct {
	Bucket          string
	Region          string
	Prefix          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	IntervalMinutes int
	MaxRetries      int
}

// Enabled reports whether an archive bucket is configured
func (c ArchiveConfig) Enabled() bool {
	return c.Bucket != ""
}

// LoadFromEnv loads configuration from environment variables.
// configPath overrides RELAY_CONFIG_PATH when set.
func LoadFromEnv(configPath string) (*Config, error) {
	dbPath := DefaultDBPath()

	mediaDir := os.Getenv("MEDIA_DIR")
	if mediaDir == "" {
		mediaDir = filepath.Join(os.TempDir(), "channel-relay-media")
	}

	httpAddr := os.Getenv("HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	archivePrefix := os.Getenv("ARCHIVE_S3_PREFIX")
	if archivePrefix == "" {
		archivePrefix = "relay"
	}

	// Channels and routing from YAML
	if configPath == "" {
		configPath = os.Getenv("RELAY_CONFIG_PATH")
	}
	relayConfig, err := LoadRelayConfig(configPath)
	if err != nil {
		return nil, err
	}

	return &Config{
		Feishu: FeishuConfig{
			AppID:        os.Getenv("FEISHU_APP_ID"),
			AppSecret:    os.Getenv("FEISHU_APP_SECRET"),
			OutputChatID: os.Getenv("OUTPUT_CHAT_ID"),
		},
		Gateway: GatewayConfig{
			URL:      os.Getenv("GATEWAY_URL"),
			Token:    os.Getenv("GATEWAY_TOKEN"),
			MediaDir: mediaDir,
		},
		Classifier: ClassifierConfig{
			APIKey:         os.Getenv("CLASSIFIER_API_KEY"),
			BaseURL:        os.Getenv("CLASSIFIER_BASE_URL"),
			Model:          os.Getenv("CLASSIFIER_MODEL"),
			TimeoutSeconds: envInt("CLASSIFY_TIMEOUT_SECONDS", 10),
		},
		Monitor: MonitorConfig{
			JoinBatchSize:           envInt("JOIN_BATCH_SIZE", 5),
			JoinBatchPauseSeconds:   envInt("JOIN_BATCH_PAUSE_SECONDS", 10),
			DefaultFloodWaitSeconds: envInt("DEFAULT_FLOOD_WAIT_SECONDS", 60),
			MediaGroupCapacity:      envInt("MEDIA_GROUP_CAPACITY", domain.DefaultMediaGroupCapacity),
		},
		Store: StoreConfig{
			DBPath: dbPath,
		},
		Archive: ArchiveConfig{
			Bucket:          os.Getenv("ARCHIVE_S3_BUCKET"),
			Region:          os.Getenv("ARCHIVE_S3_REGION"),
			Prefix:          archivePrefix,
			Endpoint:        os.Getenv("ARCHIVE_S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			IntervalMinutes: envInt("ARCHIVE_INTERVAL_MINUTES", 60),
			MaxRetries:      envInt("ARCHIVE_MAX_RETRIES", 3),
		},
		HTTPAddr: httpAddr,
		Relay:    relayConfig,
		Debug:    os.Getenv("DEBUG") == "true",
	}, nil
}

// DefaultDBPath returns DB_PATH or the per-user default database
func DefaultDBPath() string {
	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		return dbPath
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".channel-relay", "relay.db")
}

// envInt reads an integer variable, keeping def when unset or malformed
func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

// ToMonitorConfig converts to monitor usecase configuration
func (c *MonitorConfig) ToMonitorConfig() usecase.MonitorConfig {
	return usecase.MonitorConfig{
		BatchSize:        c.JoinBatchSize,
		BatchPause:       time.Duration(c.JoinBatchPauseSeconds) * time.Second,
		DefaultFloodWait: time.Duration(c.DefaultFloodWaitSeconds) * time.Second,
	}
}

// ToPipelineConfig converts to pipeline configuration
func (c *MonitorConfig) ToPipelineConfig() usecase.PipelineConfig {
	return usecase.PipelineConfig{MediaGroupCapacity: c.MediaGroupCapacity}
}

// Timeout returns the classifier call bound
func (c *ClassifierConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Enabled reports whether an API key is configured
func (c *ClassifierConfig) Enabled() bool {
	return c.APIKey != ""
}

// ToRouterConfig converts to router configuration
func (c *Config) ToRouterConfig() usecase.RouterConfig {
	return usecase.RouterConfig{
		BaseDestination: c.Feishu.OutputChatID,
		DefaultRegion:   c.Relay.DefaultRegion,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Feishu.AppID == "" || c.Feishu.AppSecret == "" {
		return &ConfigError{Field: "FEISHU_APP_ID/FEISHU_APP_SECRET", Message: "required"}
	}
	if c.Feishu.OutputChatID == "" {
		return &ConfigError{Field: "OUTPUT_CHAT_ID", Message: "required"}
	}
	if c.Gateway.URL == "" {
		return &ConfigError{Field: "GATEWAY_URL", Message: "required"}
	}
	if c.Monitor.JoinBatchSize <= 0 {
		return &ConfigError{Field: "JOIN_BATCH_SIZE", Message: "must be positive"}
	}
	if c.Monitor.JoinBatchPauseSeconds < 0 {
		return &ConfigError{Field: "JOIN_BATCH_PAUSE_SECONDS", Message: "must not be negative"}
	}
	if c.Classifier.TimeoutSeconds <= 0 {
		return &ConfigError{Field: "CLASSIFY_TIMEOUT_SECONDS", Message: "must be positive"}
	}
	if c.Archive.Enabled() && c.Archive.IntervalMinutes <= 0 {
		return &ConfigError{Field: "ARCHIVE_INTERVAL_MINUTES", Message: "must be positive"}
	}
	if c.Relay == nil {
		return &ConfigError{Field: "RELAY_CONFIG_PATH", Message: "no relay configuration loaded"}
	}
	return c.Relay.Validate()
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
