// Package config loads the fizzsync process configuration from YAML, with
// FIZZGRID_* environment variables taking precedence over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/illmade-knight/go-fizzgrid/pkg/microservice"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file.
const (
	EnvAPIBaseURL        = "FIZZGRID_API_BASE_URL"
	EnvSessionCookie     = "FIZZGRID_SESSION_COOKIE"
	EnvCSRFToken         = "FIZZGRID_CSRF_TOKEN"
	EnvHTTPPort          = "FIZZGRID_HTTP_PORT"
	EnvLogLevel          = "FIZZGRID_LOG_LEVEL"
	EnvProjectID         = "FIZZGRID_PROJECT_ID"
	EnvCacheStore        = "FIZZGRID_CACHE_STORE"
	EnvRedisAddr         = "FIZZGRID_REDIS_ADDR"
	EnvTopicID           = "FIZZGRID_INVALIDATION_TOPIC"
	EnvSubscriptionID    = "FIZZGRID_INVALIDATION_SUBSCRIPTION"
	EnvActivitySink      = "FIZZGRID_ACTIVITY_SINK"
	EnvActivityBatchSize = "FIZZGRID_ACTIVITY_BATCH_SIZE"
	EnvCacheRetry        = "FIZZGRID_CACHE_RETRY"
	EnvCacheStaleTime    = "FIZZGRID_CACHE_STALE_TIME"
)

// Snapshot store kinds.
const (
	StoreNone      = "none"
	StoreMemory    = "memory"
	StoreLRU       = "lru"
	StoreRedis     = "redis"
	StoreFirestore = "firestore"
)

// Activity sink kinds.
const (
	SinkNone     = "none"
	SinkBigQuery = "bigquery"
	SinkGCS      = "gcs"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// APIConfig locates the fizzgrid REST API.
type APIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Timeout        time.Duration `yaml:"timeout"`
	CSRFCookieName string        `yaml:"csrf_cookie_name"`
	CSRFHeaderName string        `yaml:"csrf_header_name"`
	// SessionCookie and CSRFToken restore a browser session for the CLI.
	SessionCookie string `yaml:"session_cookie"`
	CSRFToken     string `yaml:"csrf_token"`
}

// RedisConfig configures the redis snapshot store.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	TTL       time.Duration `yaml:"ttl"`
	KeyPrefix string        `yaml:"key_prefix"`
}

type FirestoreConfig struct {
	Collection string `yaml:"collection"`
}

// CacheConfig tunes the query cache and selects its snapshot store.
type CacheConfig struct {
	DefaultRetry      int             `yaml:"default_retry"`
	RetryDelay        time.Duration   `yaml:"retry_delay"`
	StaleTime         time.Duration   `yaml:"stale_time"`
	StoreWriteTimeout time.Duration   `yaml:"store_write_timeout"`
	Store             string          `yaml:"store"`
	LRUSize           int             `yaml:"lru_size"`
	Redis             RedisConfig     `yaml:"redis"`
	Firestore         FirestoreConfig `yaml:"firestore"`
}

// InvalidationConfig enables the Pub/Sub broadcast when TopicID is set and
// the listener when SubscriptionID is set.
type InvalidationConfig struct {
	TopicID        string `yaml:"topic_id"`
	SubscriptionID string `yaml:"subscription_id"`
	Origin         string `yaml:"origin"`
}

type BigQueryConfig struct {
	DatasetID string `yaml:"dataset_id"`
	TableID   string `yaml:"table_id"`
}

type GCSConfig struct {
	BucketName   string `yaml:"bucket_name"`
	ObjectPrefix string `yaml:"object_prefix"`
}

// ActivityConfig selects the activity sink and its batching.
type ActivityConfig struct {
	Sink          string         `yaml:"sink"`
	BatchSize     int            `yaml:"batch_size"`
	FlushInterval time.Duration  `yaml:"flush_interval"`
	BufferSize    int            `yaml:"buffer_size"`
	BigQuery      BigQueryConfig `yaml:"bigquery"`
	GCS           GCSConfig      `yaml:"gcs"`
}

// Config is the full fizzsync configuration.
type Config struct {
	microservice.BaseConfig `yaml:",inline"`
	ProjectID               string             `yaml:"project_id"`
	CredentialsFile         string             `yaml:"credentials_file"`
	API                     APIConfig          `yaml:"api"`
	Cache                   CacheConfig        `yaml:"cache"`
	Invalidation            InvalidationConfig `yaml:"invalidation"`
	Activity                ActivityConfig     `yaml:"activity"`
}

// Default returns the configuration used for fields the file and environment
// leave unset.
func Default() *Config {
	return &Config{
		BaseConfig: microservice.BaseConfig{
			LogLevel:    "info",
			HTTPPort:    ":8080",
			ServiceName: "fizzsync",
		},
		API: APIConfig{
			BaseURL:        "http://localhost:8000",
			Timeout:        30 * time.Second,
			CSRFCookieName: "csrftoken",
			CSRFHeaderName: "X-CSRFToken",
		},
		Cache: CacheConfig{
			DefaultRetry:      1,
			RetryDelay:        250 * time.Millisecond,
			StoreWriteTimeout: 5 * time.Second,
			Store:             StoreMemory,
			LRUSize:           1000,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				TTL:       time.Hour,
				KeyPrefix: "fizzgrid:",
			},
			Firestore: FirestoreConfig{Collection: "fizzgrid-cache"},
		},
		Activity: ActivityConfig{
			Sink:          SinkNone,
			BatchSize:     100,
			FlushInterval: 10 * time.Second,
			BufferSize:    1000,
			BigQuery:      BigQueryConfig{DatasetID: "fizzgrid", TableID: "activity"},
			GCS:           GCSConfig{ObjectPrefix: "activity"},
		},
	}
}

// Load reads path (optional: an empty path uses defaults only), applies the
// environment and validates the result.
func Load(path string, logger zerolog.Logger) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		logger.Info().Str("path", path).Msg("Loaded configuration file.")
	}
	applyEnv(cfg, logger)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, logger zerolog.Logger) {
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	str(EnvAPIBaseURL, &cfg.API.BaseURL)
	str(EnvSessionCookie, &cfg.API.SessionCookie)
	str(EnvCSRFToken, &cfg.API.CSRFToken)
	str(EnvHTTPPort, &cfg.HTTPPort)
	str(EnvLogLevel, &cfg.LogLevel)
	str(EnvProjectID, &cfg.ProjectID)
	str(EnvCacheStore, &cfg.Cache.Store)
	str(EnvRedisAddr, &cfg.Cache.Redis.Addr)
	str(EnvTopicID, &cfg.Invalidation.TopicID)
	str(EnvSubscriptionID, &cfg.Invalidation.SubscriptionID)
	str(EnvActivitySink, &cfg.Activity.Sink)

	if v := os.Getenv(EnvActivityBatchSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Activity.BatchSize = n
		} else {
			logger.Warn().Err(err).Str("var", EnvActivityBatchSize).Msg("Ignoring unparsable environment value.")
		}
	}
	if v := os.Getenv(EnvCacheRetry); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DefaultRetry = n
		} else {
			logger.Warn().Err(err).Str("var", EnvCacheRetry).Msg("Ignoring unparsable environment value.")
		}
	}
	if v := os.Getenv(EnvCacheStaleTime); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.StaleTime = d
		} else {
			logger.Warn().Err(err).Str("var", EnvCacheStaleTime).Msg("Ignoring unparsable environment value.")
		}
	}
}

// Validate checks the combination of settings.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("%w: api.base_url is required", ErrInvalidConfig)
	}
	if c.Cache.DefaultRetry < 0 {
		return fmt.Errorf("%w: cache.default_retry cannot be negative", ErrInvalidConfig)
	}
	switch c.Cache.Store {
	case StoreNone, StoreMemory:
	case StoreLRU:
		if c.Cache.LRUSize <= 0 {
			return fmt.Errorf("%w: cache.lru_size must be positive", ErrInvalidConfig)
		}
	case StoreRedis:
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("%w: cache.redis.addr is required", ErrInvalidConfig)
		}
	case StoreFirestore:
		if c.ProjectID == "" {
			return fmt.Errorf("%w: project_id is required for the firestore store", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown cache.store %q", ErrInvalidConfig, c.Cache.Store)
	}

	if (c.Invalidation.TopicID != "" || c.Invalidation.SubscriptionID != "") && c.ProjectID == "" {
		return fmt.Errorf("%w: project_id is required for invalidation", ErrInvalidConfig)
	}

	switch c.Activity.Sink {
	case SinkNone:
	case SinkBigQuery:
		if c.ProjectID == "" || c.Activity.BigQuery.DatasetID == "" || c.Activity.BigQuery.TableID == "" {
			return fmt.Errorf("%w: project_id, activity.bigquery.dataset_id and table_id are required", ErrInvalidConfig)
		}
	case SinkGCS:
		if c.Activity.GCS.BucketName == "" {
			return fmt.Errorf("%w: activity.gcs.bucket_name is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown activity.sink %q", ErrInvalidConfig, c.Activity.Sink)
	}
	return nil
}

// ParseLevel maps LogLevel to a zerolog level, defaulting to info.
func (c *Config) ParseLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
