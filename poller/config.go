package poller

import "time"

// Config holds poll loop configuration.
type Config struct {
	// Enabled is the global notification switch. Nil means enabled.
	Enabled           *bool         `yaml:"enabled"`
	Interval          time.Duration `yaml:"interval"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	AnnounceRetention time.Duration `yaml:"announce_retention"`
}

// Defaults applies default values to the config.
func (c *Config) Defaults() {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = time.Minute
	}
	if c.MaxBackoff < c.Interval {
		c.MaxBackoff = c.Interval
	}
	if c.AnnounceRetention <= 0 {
		c.AnnounceRetention = 15 * time.Minute
	}
}

// IsEnabled reports whether the poll loop should run.
func (c Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}
