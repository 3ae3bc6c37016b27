// Package config reads service configuration from the environment, after
// loading an optional .env file.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"go-pricebook-sync/internal/model"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

type Config struct {
	Port string

	Upstream UpstreamConfig
	Sync     SyncConfig
	Log      LogConfig

	JWTSecret string
}

type UpstreamConfig struct {
	BaseURL     string
	TenantID    string
	AppKey      string
	AccessToken string
	PageSize    int
	PageDelay   time.Duration
	Timeout     time.Duration
	MaxRetries  int
}

type SyncConfig struct {
	SchedulerEnabled    bool
	FullSyncCron        string
	IncrementalSyncCron string
	DefaultStrategy     model.ResolutionStrategy
	LockTTL             time.Duration
}

type LogConfig struct {
	File      string
	MaxSizeMB int
	Debug     bool
}

// Load loads .env (if present) and then reads the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, relying on system env")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a getenv function, so tests can supply a map.
func FromEnv(getenv func(string) string) (*Config, error) {
	r := reader{getenv: getenv}

	cfg := &Config{
		Port: r.str("PORT", "3000"),
		Upstream: UpstreamConfig{
			BaseURL:     r.str("UPSTREAM_API_URL", ""),
			TenantID:    r.str("UPSTREAM_TENANT_ID", ""),
			AppKey:      r.str("UPSTREAM_APP_KEY", ""),
			AccessToken: r.str("UPSTREAM_ACCESS_TOKEN", ""),
			PageSize:    r.int("UPSTREAM_PAGE_SIZE", 500),
			PageDelay:   r.duration("UPSTREAM_PAGE_DELAY", 250*time.Millisecond),
			Timeout:     r.duration("UPSTREAM_TIMEOUT", 30*time.Second),
			MaxRetries:  r.int("UPSTREAM_MAX_RETRIES", 3),
		},
		Sync: SyncConfig{
			SchedulerEnabled:    r.bool("SYNC_SCHEDULER_ENABLED", true),
			FullSyncCron:        r.str("SYNC_FULL_CRON", "0 2 * * *"),
			IncrementalSyncCron: r.str("SYNC_INCREMENTAL_CRON", "0 */4 * * *"),
			DefaultStrategy:     model.ResolutionStrategy(r.str("SYNC_DEFAULT_STRATEGY", string(model.StrategyManual))),
			LockTTL:             r.duration("SYNC_LOCK_TTL", 2*time.Hour),
		},
		Log: LogConfig{
			File:      r.str("LOG_FILE", ""),
			MaxSizeMB: r.int("LOG_MAX_SIZE_MB", 50),
			Debug:     r.bool("LOG_DEBUG", false),
		},
		JWTSecret: r.str("JWT_SECRET", ""),
	}

	if len(r.errs) > 0 {
		return nil, fmt.Errorf("config: %s", strings.Join(r.errs, "; "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that parse but make no sense.
func (c *Config) Validate() error {
	if c.Upstream.PageSize <= 0 {
		return fmt.Errorf("config: UPSTREAM_PAGE_SIZE must be positive")
	}
	if !c.Sync.DefaultStrategy.Valid() {
		return fmt.Errorf("config: SYNC_DEFAULT_STRATEGY %q is not one of keep_upstream, keep_local, manual", c.Sync.DefaultStrategy)
	}
	if _, err := cron.ParseStandard(c.Sync.FullSyncCron); err != nil {
		return fmt.Errorf("config: SYNC_FULL_CRON: %w", err)
	}
	if _, err := cron.ParseStandard(c.Sync.IncrementalSyncCron); err != nil {
		return fmt.Errorf("config: SYNC_INCREMENTAL_CRON: %w", err)
	}
	if c.Sync.LockTTL <= 0 {
		return fmt.Errorf("config: SYNC_LOCK_TTL must be positive")
	}
	return nil
}

type reader struct {
	getenv func(string) string
	errs   []string
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) int(key string, def int) int {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (r *reader) bool(key string, def bool) bool {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Sprintf("%s: invalid boolean %q", key, v))
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Sprintf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}
