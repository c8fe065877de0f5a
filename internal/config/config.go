// Package config loads service configuration from defaults, an optional YAML
// file and GALAXY_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the variable holding the YAML file path.
const EnvConfigPath = "GALAXY_CONFIG"

// Storage backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendS3     = "s3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	Cache     CacheConfig     `yaml:"cache"`
	Gather    GatherConfig    `yaml:"gather"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

type ServerConfig struct {
	Listen          string        `yaml:"listen"`           // ex: ":8080"
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // ex: 10s
	RequestTimeout  time.Duration `yaml:"request_timeout"`  // per API request, gather passes included
}

type LogConfig struct {
	Level  string `yaml:"level"`  // "debug" | "info" | "warn" | "error"
	Pretty bool   `yaml:"pretty"` // console writer instead of JSON
}

type StorageConfig struct {
	Backend        string `yaml:"backend"` // memory | redis | s3
	S3Bucket       string `yaml:"s3_bucket"`
	S3Region       string `yaml:"s3_region"`
	S3Endpoint     string `yaml:"s3_endpoint"`     // optional, MinIO/LocalStack
	DynamoTable    string `yaml:"dynamo_table"`    // optional, first-bookmark table
	DynamoEndpoint string `yaml:"dynamo_endpoint"` // optional
}

type RedisConfig struct {
	Addr           string        `yaml:"addr"` // empty disables Redis
	Password       string        `yaml:"password"`
	DB             int           `yaml:"db"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"` // edge cache freshness
}

type GatherConfig struct {
	StartupDelay    time.Duration `yaml:"startup_delay"`
	PageChunk       int           `yaml:"page_chunk"`     // default page window
	MaxPageChunk    int           `yaml:"max_page_chunk"` // upper bound accepted from API callers
	TopUpPages      int           `yaml:"top_up_pages"`
	PageTimeout     time.Duration `yaml:"page_timeout"`
	StarConcurrency int           `yaml:"star_concurrency"` // 0 = unlimited
}

type UpstreamConfig struct {
	BookmarkBaseURL string        `yaml:"bookmark_base_url"`
	StarBaseURL     string        `yaml:"star_base_url"`
	UserAgent       string        `yaml:"user_agent"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialBackoff  time.Duration `yaml:"initial_backoff"`
}

type SchedulerConfig struct {
	TopUpSchedule string   `yaml:"top_up_schedule"` // cron with seconds, empty disables
	Users         []string `yaml:"users"`           // users topped up on schedule
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          ":8080",
			ShutdownTimeout: 10 * time.Second,
			RequestTimeout:  2 * time.Minute,
		},
		Log: LogConfig{Level: "info"},
		Storage: StorageConfig{
			Backend:  BackendMemory,
			S3Region: "ap-northeast-1",
		},
		Redis: RedisConfig{ConnectTimeout: 30 * time.Second},
		Cache: CacheConfig{TTL: 10 * time.Minute},
		Gather: GatherConfig{
			StartupDelay: time.Second,
			PageChunk:    5,
			MaxPageChunk: 20,
			TopUpPages:   1,
			PageTimeout:  30 * time.Second,
		},
		Upstream: UpstreamConfig{
			BookmarkBaseURL: "https://b.hatena.ne.jp",
			StarBaseURL:     "https://s.hatena.ne.jp",
			UserAgent:       "hatebu-galaxy/1.0",
			Timeout:         30 * time.Second,
			MaxAttempts:     3,
			InitialBackoff:  time.Second,
		},
		Scheduler: SchedulerConfig{TopUpSchedule: "0 0 */6 * * *"},
	}
}

// Load builds the configuration. path may be empty, in which case
// GALAXY_CONFIG is consulted; no file at all is fine.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Listen = getenv("GALAXY_LISTEN", c.Server.Listen)
	c.Server.ShutdownTimeout = mustDuration("GALAXY_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.RequestTimeout = mustDuration("GALAXY_REQUEST_TIMEOUT", c.Server.RequestTimeout)

	c.Log.Level = getenv("GALAXY_LOG_LEVEL", c.Log.Level)
	c.Log.Pretty = mustBool("GALAXY_LOG_PRETTY", c.Log.Pretty)

	c.Storage.Backend = strings.ToLower(getenv("GALAXY_STORAGE_BACKEND", c.Storage.Backend))
	c.Storage.S3Bucket = getenv("GALAXY_S3_BUCKET", c.Storage.S3Bucket)
	c.Storage.S3Region = getenv("GALAXY_S3_REGION", c.Storage.S3Region)
	c.Storage.S3Endpoint = getenv("GALAXY_S3_ENDPOINT", c.Storage.S3Endpoint)
	c.Storage.DynamoTable = getenv("GALAXY_DYNAMO_TABLE", c.Storage.DynamoTable)
	c.Storage.DynamoEndpoint = getenv("GALAXY_DYNAMO_ENDPOINT", c.Storage.DynamoEndpoint)

	c.Redis.Addr = getenv("GALAXY_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getenv("GALAXY_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getenvInt("GALAXY_REDIS_DB", c.Redis.DB)
	c.Redis.ConnectTimeout = mustDuration("GALAXY_REDIS_CONNECT_TIMEOUT", c.Redis.ConnectTimeout)

	c.Cache.TTL = mustDuration("GALAXY_CACHE_TTL", c.Cache.TTL)

	c.Gather.StartupDelay = mustDuration("GALAXY_GATHER_DELAY", c.Gather.StartupDelay)
	c.Gather.PageChunk = getenvInt("GALAXY_PAGE_CHUNK", c.Gather.PageChunk)
	c.Gather.MaxPageChunk = getenvInt("GALAXY_MAX_PAGE_CHUNK", c.Gather.MaxPageChunk)
	c.Gather.TopUpPages = getenvInt("GALAXY_TOP_UP_PAGES", c.Gather.TopUpPages)
	c.Gather.PageTimeout = mustDuration("GALAXY_PAGE_TIMEOUT", c.Gather.PageTimeout)
	c.Gather.StarConcurrency = getenvInt("GALAXY_STAR_CONCURRENCY", c.Gather.StarConcurrency)

	c.Upstream.BookmarkBaseURL = getenv("GALAXY_BOOKMARK_BASE_URL", c.Upstream.BookmarkBaseURL)
	c.Upstream.StarBaseURL = getenv("GALAXY_STAR_BASE_URL", c.Upstream.StarBaseURL)
	c.Upstream.UserAgent = getenv("GALAXY_USER_AGENT", c.Upstream.UserAgent)
	c.Upstream.Timeout = mustDuration("GALAXY_UPSTREAM_TIMEOUT", c.Upstream.Timeout)
	c.Upstream.MaxAttempts = getenvInt("GALAXY_MAX_ATTEMPTS", c.Upstream.MaxAttempts)
	c.Upstream.InitialBackoff = mustDuration("GALAXY_INITIAL_BACKOFF", c.Upstream.InitialBackoff)

	c.Scheduler.TopUpSchedule = getenv("GALAXY_TOP_UP_SCHEDULE", c.Scheduler.TopUpSchedule)
	if users := splitAndTrim(os.Getenv("GALAXY_TOP_UP_USERS")); users != nil {
		c.Scheduler.Users = users
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("storage backend redis requires redis.addr"))
		}
	case BackendS3:
		if c.Storage.S3Bucket == "" {
			errs = append(errs, errors.New("storage backend s3 requires storage.s3_bucket"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}

	if c.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen is required"))
	}
	if c.Upstream.UserAgent == "" {
		errs = append(errs, errors.New("upstream.user_agent is required"))
	}
	if c.Upstream.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("upstream.max_attempts must be >= 1, got %d", c.Upstream.MaxAttempts))
	}
	if c.Gather.PageChunk < 1 {
		errs = append(errs, fmt.Errorf("gather.page_chunk must be >= 1, got %d", c.Gather.PageChunk))
	}
	if c.Gather.MaxPageChunk < c.Gather.PageChunk {
		errs = append(errs, fmt.Errorf("gather.max_page_chunk (%d) must be >= gather.page_chunk (%d)", c.Gather.MaxPageChunk, c.Gather.PageChunk))
	}
	if c.Gather.StartupDelay < 0 {
		errs = append(errs, errors.New("gather.startup_delay must not be negative"))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be > 0"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Redacted returns a copy safe to log.
func (c *Config) Redacted() Config {
	cp := *c
	if cp.Redis.Password != "" {
		cp.Redis.Password = "***REDACTED***"
	}
	return cp
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
