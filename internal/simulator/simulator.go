// Package simulator provides a fake upstream for exercising the
// orchestrator: each call sleeps a randomized duration and fails with a
// per-API probability, returning mock geo data on success.
package simulator

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/aristath/fanout/internal/batch"
	"github.com/aristath/fanout/internal/query"
)

var errorMessages = []string{
	"Connection timeout",
	"Rate limit exceeded",
	"Service temporarily unavailable",
	"Invalid response from server",
	"Authentication failed",
}

// Client simulates API calls. The RNG is guarded because all workers of a
// batch share one client.
type Client struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewClient creates a simulator client with the given seed. Tests pass a
// fixed seed for reproducible outcomes.
func NewClient(seed int64) *Client {
	return &Client{rng: rand.New(rand.NewSource(seed))}
}

// WorkFor returns a work function for one query spec. The unit payload
// must be an API descriptor; anything else is a failure outcome, not a
// panic.
func (c *Client) WorkFor(spec query.Spec) batch.WorkFn {
	return func(u batch.Unit) batch.Outcome {
		api, ok := u.Payload.(API)
		if !ok {
			return batch.Fail(fmt.Sprintf("unit %q payload is %T, not a simulator API", u.ID, u.Payload))
		}
		return c.Call(api, spec)
	}
}

// Call performs one simulated API call: sleep a uniform-random duration in
// the API's range, then fail with the API's failure rate or return mock
// data for the query.
func (c *Client) Call(api API, spec query.Spec) batch.Outcome {
	time.Sleep(c.duration(api))

	if c.float() < api.FailureRate {
		return batch.Fail(c.pick(errorMessages))
	}

	return batch.Succeed(c.mockData(api, spec))
}

func (c *Client) duration(api API) time.Duration {
	if api.MaxDuration <= api.MinDuration {
		return api.MinDuration
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return api.MinDuration + time.Duration(c.rng.Int63n(int64(api.MaxDuration-api.MinDuration)))
}

func (c *Client) float() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.Float64()
}

func (c *Client) pick(options []string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return options[c.rng.Intn(len(options))]
}

func (c *Client) intn(lo, hi int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return lo + c.rng.Intn(hi-lo+1)
}

func (c *Client) uniform(lo, hi float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return lo + c.rng.Float64()*(hi-lo)
}

func round1(v float64) float64 { return roundTo(v, 1) }

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// mockData generates a payload shaped after the API type, echoing the
// query parameters it was asked about.
func (c *Client) mockData(api API, spec query.Spec) map[string]any {
	data := map[string]any{
		"query_name": spec.Name,
		"time_range": map[string]string{
			"start": spec.TimeRange.Start.Format(time.RFC3339),
			"end":   spec.TimeRange.End.Format(time.RFC3339),
		},
		"geo_box": map[string]float64{
			"min_lat": spec.GeoBox.MinLat,
			"min_lon": spec.GeoBox.MinLon,
			"max_lat": spec.GeoBox.MaxLat,
			"max_lon": spec.GeoBox.MaxLon,
		},
	}

	switch api.Name {
	case "Weather API":
		data["weather"] = map[string]any{
			"temperature_avg":  round1(c.uniform(10, 35)),
			"humidity_avg":     round1(c.uniform(30, 90)),
			"precipitation_mm": round1(c.uniform(0, 50)),
			"wind_speed_kmh":   round1(c.uniform(0, 30)),
		}
	case "Satellite Data API":
		data["satellite"] = map[string]any{
			"cloud_cover_pct":  round1(c.uniform(0, 100)),
			"ndvi_avg":         roundTo(c.uniform(-0.2, 0.8), 3),
			"images_available": c.intn(5, 50),
			"resolution_m":     []int{10, 30, 60}[c.intn(0, 2)],
		}
	case "Population API":
		data["population"] = map[string]any{
			"total_population": c.intn(10000, 5000000),
			"density_per_km2":  round1(c.uniform(10, 10000)),
			"urban_pct":        round1(c.uniform(20, 95)),
		}
	case "Traffic API":
		data["traffic"] = map[string]any{
			"congestion_index": roundTo(c.uniform(0, 10), 2),
			"avg_speed_kmh":    round1(c.uniform(15, 80)),
			"incidents_count":  c.intn(0, 20),
		}
	case "Air Quality API":
		data["air_quality"] = map[string]any{
			"aqi":       c.intn(20, 200),
			"pm25_ugm3": round1(c.uniform(5, 100)),
			"pm10_ugm3": round1(c.uniform(10, 150)),
			"o3_ppb":    round1(c.uniform(10, 80)),
		}
	}

	return data
}
