package scheduler

import (
	"time"

	"github.com/smallbiznis/iaaps/internal/config"
)

// Config controls the dataset refresh loop.
type Config struct {
	// Interval between refreshes. Zero disables periodic refresh; the
	// startup refresh still runs.
	Interval time.Duration
	Timeout  time.Duration
	LockKey  string
	LockTTL  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Timeout: 2 * time.Minute,
		LockKey: "iaaps:refresh:lock",
		LockTTL: 5 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	c := DefaultConfig()
	c.Interval = cfg.RefreshInterval
	return c
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Interval < 0 {
		c.Interval = 0
	}
	if c.Timeout <= 0 {
		c.Timeout = defaults.Timeout
	}
	if c.LockKey == "" {
		c.LockKey = defaults.LockKey
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}
