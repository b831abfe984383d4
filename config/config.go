package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Nftflow  NftflowConfig  `yaml:"nftflow"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Channels ChannelsConfig `yaml:"channels"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Source   SourceConfig   `yaml:"source"`
	Chain    ChainConfig    `yaml:"chain"`
	Watch    WatchConfig    `yaml:"watch"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type NftflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type MetricsConfig struct {
	CloudWatch bool   `yaml:"cloudwatch"`
	Namespace  string `yaml:"namespace"`
	Region     string `yaml:"region"`
}

type ChannelsConfig struct {
	EventBuffer int `yaml:"event_buffer"`
}

// MonitorConfig selects the monitoring backend and carries its tuning knobs.
// Defaults match a long-running monitor: 5s polling window, 5 minute initial
// lookback and a 60s reconnection backoff cap.
type MonitorConfig struct {
	Mode                   string `yaml:"mode"`
	PollingIntervalMs      int    `yaml:"polling_interval_ms"`
	InitialLookbackSeconds int    `yaml:"initial_lookback_seconds"`
	MaxReconnectDelayMs    int    `yaml:"max_reconnect_delay_ms"`
	DedupCapacity          int    `yaml:"dedup_capacity"`
}

type SourceConfig struct {
	RestURL   string          `yaml:"rest_url"`
	StreamURL string          `yaml:"stream_url"`
	APIKey    string          `yaml:"api_key"`
	UserAgent string          `yaml:"user_agent"`
	Timeout   time.Duration   `yaml:"timeout"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type ChainConfig struct {
	Network string `yaml:"network"`
}

// WatchConfig supplies the default subscription parameters consumed by the
// command layer. CLI flags override each field.
type WatchConfig struct {
	Collections []string `yaml:"collections"`
	EventTypes  []string `yaml:"event_types"`
	Wallet      string   `yaml:"wallet"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool          `yaml:"enabled"`
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	PathStyle       bool          `yaml:"path_style"`
	Prefix          string        `yaml:"prefix"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	MaxWorkers      int           `yaml:"max_workers"`
	BatchSize       int           `yaml:"batch_size"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
}

type LoggingConfig struct {
	Level  string                 `yaml:"level"`
	Format string                 `yaml:"format"`
	Output string                 `yaml:"output"`
	MaxAge int                    `yaml:"max_age"`
	Fields map[string]interface{} `yaml:"fields"`
}

var configPaths = map[string]string{
	environmentProduction: "config/config.production.yml",
	environmentStaging:    "config/config.staging.yml",
}

// DefaultPath is the configuration file used when no -config flag is given.
const DefaultPath = "config/config.yml"

// ResolvePath maps the requested configuration path onto an environment
// specific file when APP_ENV selects one.
func ResolvePath(path string) string {
	return resolveEnvSpecificPath(path, DefaultPath, configPaths)
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Monitor: MonitorConfig{
			Mode:                   "stream",
			PollingIntervalMs:      5000,
			InitialLookbackSeconds: 300,
			MaxReconnectDelayMs:    60000,
			DedupCapacity:          10000,
		},
		Channels: ChannelsConfig{EventBuffer: 1000},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override the marketplace API key from the environment when present
	if v := os.Getenv("MARKETPLACE_API_KEY"); v != "" {
		config.Source.APIKey = strings.TrimSpace(v)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Nftflow.Name == "" {
		return fmt.Errorf("nftflow.name is required")
	}

	if cfg.Nftflow.Version == "" {
		return fmt.Errorf("nftflow.version is required")
	}

	if cfg.Channels.EventBuffer <= 0 {
		return fmt.Errorf("channels.event_buffer must be greater than 0")
	}

	switch cfg.Monitor.Mode {
	case "stream", "polling":
	default:
		return fmt.Errorf("monitor.mode must be 'stream' or 'polling', got '%s'", cfg.Monitor.Mode)
	}

	if cfg.Monitor.PollingIntervalMs <= 0 {
		return fmt.Errorf("monitor.polling_interval_ms must be greater than 0")
	}
	if cfg.Monitor.InitialLookbackSeconds < 0 {
		return fmt.Errorf("monitor.initial_lookback_seconds must not be negative")
	}
	if cfg.Monitor.MaxReconnectDelayMs <= 0 {
		return fmt.Errorf("monitor.max_reconnect_delay_ms must be greater than 0")
	}
	if cfg.Monitor.DedupCapacity <= 0 {
		return fmt.Errorf("monitor.dedup_capacity must be greater than 0")
	}

	if cfg.Chain.Network == "" {
		return fmt.Errorf("chain.network is required")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
