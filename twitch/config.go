package twitch

import (
	"net/http"
	"time"
)

const (
	defaultBaseURL  = "https://api.twitch.tv/helix"
	defaultTokenURL = "https://id.twitch.tv/oauth2/token"
)

// Config holds Helix client and credential configuration.
type Config struct {
	ClientID             string        `yaml:"client_id"`
	ClientSecret         string        `yaml:"client_secret"`
	AccessToken          string        `yaml:"access_token"`
	RefreshToken         string        `yaml:"refresh_token"`
	BaseURL              string        `yaml:"base_url"`
	TokenURL             string        `yaml:"token_url"`
	UserAgent            string        `yaml:"user_agent"`
	PageSize             int           `yaml:"page_size"`
	MaxPages             int           `yaml:"max_pages"`
	RequestsPerSecond    float64       `yaml:"requests_per_second"`
	Burst                int           `yaml:"burst"`
	Timeout              time.Duration `yaml:"timeout"`
	RefreshCheckInterval time.Duration `yaml:"refresh_check_interval"`
	HTTPClient           *http.Client  `yaml:"-"`
}

// Defaults applies default values to the config.
func (c *Config) Defaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.TokenURL == "" {
		c.TokenURL = defaultTokenURL
	}
	if c.UserAgent == "" {
		c.UserAgent = "grassy/1.0"
	}
	if c.PageSize <= 0 || c.PageSize > 100 {
		c.PageSize = 100
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 5
	}
	// Helix allows 800 points per minute for an app token.
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 10
	}
	if c.Burst <= 0 {
		c.Burst = 20
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.RefreshCheckInterval <= 0 {
		c.RefreshCheckInterval = 30 * time.Minute
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
}
