package config

import (
	"time"

	"github.com/aristath/fanout/internal/simulator"
)

// APIConfig describes one simulated API in the catalog.
type APIConfig struct {
	Name          string  `json:"name"`
	MinDurationMS int     `json:"min_duration_ms"`
	MaxDurationMS int     `json:"max_duration_ms"`
	FailureRate   float64 `json:"failure_rate"` // 0.0 to 1.0
}

// Config is the top-level configuration.
type Config struct {
	PollIntervalMS int         `json:"poll_interval_ms"` // Observer poll interval
	APIs           []APIConfig `json:"apis"`
}

// PollInterval returns the observer poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// Catalog converts the configured API list into simulator descriptors.
func (c *Config) Catalog() []simulator.API {
	catalog := make([]simulator.API, 0, len(c.APIs))
	for _, api := range c.APIs {
		catalog = append(catalog, simulator.API{
			Name:        api.Name,
			MinDuration: time.Duration(api.MinDurationMS) * time.Millisecond,
			MaxDuration: time.Duration(api.MaxDurationMS) * time.Millisecond,
			FailureRate: api.FailureRate,
		})
	}
	return catalog
}
