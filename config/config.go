package config

import (
	"errors"
	"os"
	"strings"

	"github.com/tnicklin/grassy/clock"
	"github.com/tnicklin/grassy/discord"
	"github.com/tnicklin/grassy/logger"
	"github.com/tnicklin/grassy/metrics"
	"github.com/tnicklin/grassy/poller"
	"github.com/tnicklin/grassy/store"
	"github.com/tnicklin/grassy/twitch"
	"go.uber.org/config"
)

// AppConfig holds all application configuration.
type AppConfig struct {
	Logger  logger.Config  `yaml:"logger"`
	Discord discord.Config `yaml:"discord"`
	Twitch  twitch.Config  `yaml:"twitch"`
	Store   store.Config   `yaml:"store"`
	Poller  poller.Config  `yaml:"poller"`
	Clock   clock.Config   `yaml:"clock"`
	Metrics metrics.Config `yaml:"metrics"`
}

// Load reads configuration from the specified YAML files.
// Files are merged in order, with later files overriding earlier ones.
// Missing files are silently ignored. ${VAR} references are expanded from
// the environment.
func Load(files ...string) (*AppConfig, error) {
	opts := make([]config.YAMLOption, 0, len(files)+1)
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			opts = append(opts, config.File(f))
		}
	}

	if len(opts) == 0 {
		return nil, os.ErrNotExist
	}
	opts = append(opts, config.Expand(os.LookupEnv))

	provider, err := config.NewYAML(opts...)
	if err != nil {
		return nil, err
	}

	var cfg AppConfig
	if err := provider.Get(config.Root).Populate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadWithDefaults loads configuration, applies environment overrides and
// fills in defaults. Running without any config file is allowed; everything
// can come from the environment.
func LoadWithDefaults(files ...string) (*AppConfig, error) {
	cfg, err := Load(files...)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = &AppConfig{}, nil
	}
	if err != nil {
		return nil, err
	}

	ApplyEnv(cfg, os.LookupEnv)

	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if len(cfg.Logger.OutputPaths) == 0 {
		cfg.Logger.OutputPaths = []string{"stdout"}
	}
	cfg.Discord.Defaults()
	cfg.Twitch.Defaults()
	cfg.Store.Defaults()
	cfg.Poller.Defaults()

	return cfg, nil
}

// ApplyEnv overrides secrets with environment variables when they are set.
func ApplyEnv(cfg *AppConfig, lookup func(string) (string, bool)) {
	set := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
				*dst = strings.TrimSpace(v)
				return
			}
		}
	}

	set(&cfg.Discord.Token, "DISCORD_TOKEN", "TOKEN")
	set(&cfg.Discord.GuildID, "DISCORD_GUILD_ID")
	set(&cfg.Twitch.ClientID, "TWITCH_CLIENT_ID")
	set(&cfg.Twitch.ClientSecret, "TWITCH_CLIENT_SECRET")
	set(&cfg.Twitch.AccessToken, "TWITCH_OAUTH_TOKEN")
	set(&cfg.Twitch.RefreshToken, "TWITCH_REFRESH_TOKEN")
}

// Validate reports missing settings the bot cannot start without.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Discord.Token == "" {
		errs = append(errs, errors.New("DISCORD_TOKEN environment variable or discord.token config required"))
	}
	if c.Twitch.ClientID == "" {
		errs = append(errs, errors.New("TWITCH_CLIENT_ID environment variable or twitch.client_id config required"))
	}
	// Every token refresh needs the secret.
	if c.Twitch.ClientSecret == "" {
		errs = append(errs, errors.New("TWITCH_CLIENT_SECRET environment variable or twitch.client_secret config required"))
	}
	return errors.Join(errs...)
}
