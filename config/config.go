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
	Okxflow OkxflowConfig `yaml:"okxflow"`
	Dump    DumpConfig    `yaml:"dump"`
	Catalog CatalogConfig `yaml:"catalog"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Writer  WriterConfig  `yaml:"writer"`
	Storage StorageConfig `yaml:"storage"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

type OkxflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type DumpConfig struct {
	AssetClass    string   `yaml:"asset_class"`
	QuoteCurrency string   `yaml:"quote_currency"`
	Symbols       []string `yaml:"symbols"`
	SaveDir       string   `yaml:"save_dir"`
	MaxWorkers    int      `yaml:"max_workers"`
}

type CatalogConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

type FetchConfig struct {
	Timeout   time.Duration   `yaml:"timeout"`
	UserAgent string          `yaml:"user_agent"`
	ChunkSize int             `yaml:"chunk_size"`
	Proxy     string          `yaml:"proxy"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Retry     RetryConfig     `yaml:"retry"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier int           `yaml:"backoff_multiplier"`
}

type WriterConfig struct {
	Formats FormatsConfig `yaml:"formats"`
}

type FormatsConfig struct {
	Parquet ParquetConfig `yaml:"parquet"`
}

type ParquetConfig struct {
	Compression string `yaml:"compression"`
	PageSize    int    `yaml:"page_size"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Prefix          string `yaml:"prefix"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv substitutes ${VAR} placeholders in the raw yaml with values from
// the process environment. Unset variables expand to the empty string.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envPattern.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{}
	if err := yaml.Unmarshal(expandEnv(data), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)

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

func applyDefaults(cfg *Config) {
	if cfg.Dump.AssetClass == "" {
		cfg.Dump.AssetClass = "swap"
	}
	if cfg.Dump.SaveDir == "" {
		cfg.Dump.SaveDir = "./data"
	}
	if cfg.Dump.MaxWorkers <= 0 {
		cfg.Dump.MaxWorkers = 8
	}
	if cfg.Catalog.Endpoint == "" {
		cfg.Catalog.Endpoint = "https://api.tardis.dev/v1/exchanges"
	}
	if cfg.Catalog.Timeout <= 0 {
		cfg.Catalog.Timeout = 30 * time.Second
	}
	if cfg.Fetch.Timeout <= 0 {
		cfg.Fetch.Timeout = 5 * time.Minute
	}
	if cfg.Fetch.UserAgent == "" {
		cfg.Fetch.UserAgent = "okxflow/1.0"
	}
	if cfg.Fetch.ChunkSize <= 0 {
		cfg.Fetch.ChunkSize = 16 * 1024
	}
	if cfg.Fetch.RateLimit.RequestsPerSecond <= 0 {
		cfg.Fetch.RateLimit.RequestsPerSecond = 4
	}
	if cfg.Fetch.RateLimit.BurstSize <= 0 {
		cfg.Fetch.RateLimit.BurstSize = cfg.Fetch.RateLimit.RequestsPerSecond
	}
	if cfg.Fetch.Retry.MaxAttempts <= 0 {
		cfg.Fetch.Retry.MaxAttempts = 5
	}
	if cfg.Fetch.Retry.BaseDelay <= 0 {
		cfg.Fetch.Retry.BaseDelay = 8 * time.Second
	}
	if cfg.Fetch.Retry.MaxDelay <= 0 {
		cfg.Fetch.Retry.MaxDelay = 64 * time.Second
	}
	if cfg.Fetch.Retry.BackoffMultiplier <= 0 {
		cfg.Fetch.Retry.BackoffMultiplier = 2
	}
	if cfg.Writer.Formats.Parquet.Compression == "" {
		cfg.Writer.Formats.Parquet.Compression = "snappy"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Okxflow.Name == "" {
		return fmt.Errorf("okxflow.name is required")
	}

	if cfg.Okxflow.Version == "" {
		return fmt.Errorf("okxflow.version is required")
	}

	switch cfg.Dump.AssetClass {
	case "spot", "swap", "future":
	default:
		return fmt.Errorf("dump.asset_class '%s' must be one of spot, swap, future", cfg.Dump.AssetClass)
	}

	if cfg.Dump.MaxWorkers <= 0 {
		return fmt.Errorf("dump.max_workers must be greater than 0")
	}

	if cfg.Fetch.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("fetch.retry.max_attempts must be greater than 0")
	}
	if cfg.Fetch.Retry.MaxDelay < cfg.Fetch.Retry.BaseDelay {
		return fmt.Errorf("fetch.retry.max_delay must not be smaller than base_delay")
	}

	switch cfg.Writer.Formats.Parquet.Compression {
	case "snappy", "gzip", "none":
	default:
		return fmt.Errorf("writer.formats.parquet.compression '%s' is not supported", cfg.Writer.Formats.Parquet.Compression)
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var bucketPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	return bucketPattern.MatchString(name)
}
