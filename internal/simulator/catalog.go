package simulator

import (
	"time"

	"github.com/aristath/fanout/internal/batch"
)

// API describes one simulated upstream service: how long a call takes and
// how often it fails.
type API struct {
	Name        string
	MinDuration time.Duration
	MaxDuration time.Duration
	FailureRate float64 // 0.0 to 1.0
}

// DefaultCatalog returns the built-in set of simulated APIs.
func DefaultCatalog() []API {
	return []API{
		{
			Name:        "Weather API",
			MinDuration: 1 * time.Second,
			MaxDuration: 2 * time.Second,
			FailureRate: 0.05,
		},
		{
			Name:        "Satellite Data API",
			MinDuration: 3 * time.Second,
			MaxDuration: 5 * time.Second,
			FailureRate: 0.15,
		},
		{
			Name:        "Population API",
			MinDuration: 2 * time.Second,
			MaxDuration: 3 * time.Second,
			FailureRate: 0.05,
		},
		{
			Name:        "Traffic API",
			MinDuration: 1 * time.Second,
			MaxDuration: 2 * time.Second,
			FailureRate: 0.20,
		},
		{
			Name:        "Air Quality API",
			MinDuration: 2 * time.Second,
			MaxDuration: 4 * time.Second,
			FailureRate: 0.08,
		},
	}
}

// UnitsFor builds one work unit per API. The API descriptor rides in the
// unit payload so the work function knows which service to simulate.
func UnitsFor(catalog []API) []batch.Unit {
	units := make([]batch.Unit, 0, len(catalog))
	for _, api := range catalog {
		units = append(units, batch.Unit{
			ID:      api.Name,
			Label:   api.Name,
			Payload: api,
		})
	}
	return units
}
