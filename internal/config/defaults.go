package config

// DefaultConfig returns the built-in configuration: a 100ms poll interval
// and the default five-API catalog.
func DefaultConfig() *Config {
	return &Config{
		PollIntervalMS: 100,
		APIs: []APIConfig{
			{
				Name:          "Weather API",
				MinDurationMS: 1000,
				MaxDurationMS: 2000,
				FailureRate:   0.05,
			},
			{
				Name:          "Satellite Data API",
				MinDurationMS: 3000,
				MaxDurationMS: 5000,
				FailureRate:   0.15,
			},
			{
				Name:          "Population API",
				MinDurationMS: 2000,
				MaxDurationMS: 3000,
				FailureRate:   0.05,
			},
			{
				Name:          "Traffic API",
				MinDurationMS: 1000,
				MaxDurationMS: 2000,
				FailureRate:   0.20,
			},
			{
				Name:          "Air Quality API",
				MinDurationMS: 2000,
				MaxDurationMS: 4000,
				FailureRate:   0.08,
			},
		},
	}
}
