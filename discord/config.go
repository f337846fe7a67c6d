package discord

import "time"

// Config holds Discord-specific configuration.
type Config struct {
	Token string `yaml:"token"`
	// GuildID limits command registration to one guild. Empty registers the
	// commands globally.
	GuildID              string        `yaml:"guild_id"`
	CommandTimeout       time.Duration `yaml:"command_timeout"`
	RemoveCommandsOnStop bool          `yaml:"remove_commands_on_stop"`
}

// Defaults applies default values to the config.
func (c *Config) Defaults() {
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 12 * time.Second
	}
}
