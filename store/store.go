package store

import (
	"context"
	"fmt"

	"github.com/tnicklin/grassy/logger"
	"github.com/tnicklin/grassy/models"
)

const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// Store persists per-guild category to channel mappings.
type Store interface {
	// Get returns the guild config and whether a record exists.
	Get(ctx context.Context, guildID string) (models.GuildStreamConfig, bool, error)
	// Set creates or replaces one category entry, creating the guild record if needed.
	Set(ctx context.Context, guildID, categoryID string, setting models.CategorySetting) error
	// Remove deletes one category entry. It reports false when the entry did not
	// exist. A guild left with no categories is removed entirely.
	Remove(ctx context.Context, guildID, categoryID string) (bool, error)
	// SetNotificationsActive flips the guild-level switch, creating the record if needed.
	SetNotificationsActive(ctx context.Context, guildID string, active bool) error
	ListGuilds(ctx context.Context) ([]string, error)
	Close() error
}

// Config holds store configuration.
type Config struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// Defaults applies default values to the config.
func (c *Config) Defaults() {
	if c.Driver == "" {
		c.Driver = DriverJSON
	}
	if c.Path == "" {
		if c.Driver == DriverSQLite {
			c.Path = "data/stream_config.db"
		} else {
			c.Path = "stream_config.json"
		}
	}
}

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg Config, log logger.Logger) (Store, error) {
	cfg.Defaults()

	switch cfg.Driver {
	case DriverJSON:
		return NewJSONStore(JSONParams{Path: cfg.Path, Logger: log}), nil
	case DriverSQLite:
		st := NewSQLiteStore(SQLiteParams{Path: cfg.Path, Logger: log})
		if err := st.Open(ctx); err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
