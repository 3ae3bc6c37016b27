package config

import (
	"strings"
	"testing"
	"time"

	"go-pricebook-sync/internal/model"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(envMap(nil))
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}

	if cfg.Port != "3000" {
		t.Errorf("Expected port 3000, got %s", cfg.Port)
	}
	if cfg.Upstream.PageSize != 500 {
		t.Errorf("Expected page size 500, got %d", cfg.Upstream.PageSize)
	}
	if cfg.Upstream.PageDelay != 250*time.Millisecond {
		t.Errorf("Expected page delay 250ms, got %s", cfg.Upstream.PageDelay)
	}
	if !cfg.Sync.SchedulerEnabled {
		t.Error("Expected scheduler enabled by default")
	}
	if cfg.Sync.FullSyncCron != "0 2 * * *" {
		t.Errorf("Unexpected full sync cron %q", cfg.Sync.FullSyncCron)
	}
	if cfg.Sync.DefaultStrategy != model.StrategyManual {
		t.Errorf("Expected manual strategy, got %s", cfg.Sync.DefaultStrategy)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"SYNC_SCHEDULER_ENABLED": "false",
		"SYNC_FULL_CRON":         "30 1 * * 0",
		"SYNC_DEFAULT_STRATEGY":  "keep_upstream",
		"UPSTREAM_PAGE_SIZE":     "50",
		"UPSTREAM_TIMEOUT":       "5s",
	}))
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}

	if cfg.Sync.SchedulerEnabled {
		t.Error("Expected scheduler disabled")
	}
	if cfg.Sync.FullSyncCron != "30 1 * * 0" {
		t.Errorf("Unexpected full sync cron %q", cfg.Sync.FullSyncCron)
	}
	if cfg.Sync.DefaultStrategy != model.StrategyKeepUpstream {
		t.Errorf("Expected keep_upstream, got %s", cfg.Sync.DefaultStrategy)
	}
	if cfg.Upstream.PageSize != 50 || cfg.Upstream.Timeout != 5*time.Second {
		t.Errorf("Unexpected upstream config %+v", cfg.Upstream)
	}
}

func TestFromEnvRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad integer", map[string]string{"UPSTREAM_PAGE_SIZE": "many"}, "UPSTREAM_PAGE_SIZE"},
		{"bad duration", map[string]string{"SYNC_LOCK_TTL": "forever"}, "SYNC_LOCK_TTL"},
		{"bad bool", map[string]string{"SYNC_SCHEDULER_ENABLED": "sometimes"}, "SYNC_SCHEDULER_ENABLED"},
		{"bad cron", map[string]string{"SYNC_INCREMENTAL_CRON": "every four hours"}, "SYNC_INCREMENTAL_CRON"},
		{"bad strategy", map[string]string{"SYNC_DEFAULT_STRATEGY": "coin_flip"}, "SYNC_DEFAULT_STRATEGY"},
		{"zero page size", map[string]string{"UPSTREAM_PAGE_SIZE": "0"}, "UPSTREAM_PAGE_SIZE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(envMap(tt.env))
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}
