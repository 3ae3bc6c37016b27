// Package app assembles the sync engine from configuration. Both the HTTP
// server and the CLI start from here.
package app

import (
	"fmt"

	"go-pricebook-sync/internal/service"
	"go-pricebook-sync/internal/upstream"
	"go-pricebook-sync/pkg/config"
	"go-pricebook-sync/pkg/database"
	"go-pricebook-sync/pkg/jwt"
	"go-pricebook-sync/pkg/logger"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// EngineConfig converts the environment config into engine tunables.
func EngineConfig(cfg *config.Config) service.EngineConfig {
	return service.EngineConfig{
		PageSize:        cfg.Upstream.PageSize,
		PageDelay:       cfg.Upstream.PageDelay,
		PageTimeout:     cfg.Upstream.Timeout,
		LockTTL:         cfg.Sync.LockTTL,
		DefaultStrategy: cfg.Sync.DefaultStrategy,
		Scheduler: service.SchedulerConfig{
			FullSyncCron:        cfg.Sync.FullSyncCron,
			IncrementalSyncCron: cfg.Sync.IncrementalSyncCron,
			Strategy:            cfg.Sync.DefaultStrategy,
		},
	}
}

// Open connects to the database, migrates it and wires every component.
func Open(cfg *config.Config, notifier service.Notifier) (*gorm.DB, *service.Components, error) {
	jwt.SetSecret(cfg.JWTSecret)

	db := database.ConnectDB()
	if cfg.Log.Debug {
		db.Logger = database.NewGormLogger(gormlogger.Info)
	}
	if err := database.Migrate(db); err != nil {
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	client := upstream.NewHTTPClient(upstream.HTTPConfig{
		BaseURL:     cfg.Upstream.BaseURL,
		TenantID:    cfg.Upstream.TenantID,
		AppKey:      cfg.Upstream.AppKey,
		AccessToken: cfg.Upstream.AccessToken,
		Timeout:     cfg.Upstream.Timeout,
		MaxRetries:  cfg.Upstream.MaxRetries,
	}, logger.New("upstream"))

	return db, service.NewComponents(db, client, EngineConfig(cfg), notifier, logger.New("sync")), nil
}
