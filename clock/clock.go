package clock

import "time"

// Clock provides wall-clock time. Implementations may correct for
// system clock drift (e.g. via NTP).
type Clock interface {
	Now() time.Time
}

// System returns a Clock backed by time.Now().
func System() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Config selects the clock used for credential expiry checks.
type Config struct {
	NTPServer    string        `yaml:"ntp_server"`
	SyncInterval time.Duration `yaml:"sync_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Enabled reports whether an NTP server is configured.
func (c Config) Enabled() bool { return c.NTPServer != "" }

// Options converts the config into NTPClock options.
func (c Config) Options() []Option {
	var opts []Option
	if c.NTPServer != "" {
		opts = append(opts, WithServer(c.NTPServer))
	}
	if c.SyncInterval > 0 {
		opts = append(opts, WithInterval(c.SyncInterval))
	}
	if c.Timeout > 0 {
		opts = append(opts, WithTimeout(c.Timeout))
	}
	return opts
}
