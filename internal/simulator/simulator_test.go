package simulator

import (
	"math"
	"testing"
	"time"

	"github.com/aristath/fanout/internal/batch"
	"github.com/aristath/fanout/internal/query"
)

func testSpec() query.Spec {
	return query.Spec{
		Name: "test",
		TimeRange: query.TimeRange{
			Start: time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
		},
		GeoBox: query.GeoBox{MinLat: 34.0, MinLon: -118.5, MaxLat: 34.3, MaxLon: -118.0},
	}
}

func TestCallAlwaysSucceedsAtZeroFailureRate(t *testing.T) {
	c := NewClient(1)
	api := API{Name: "Weather API", FailureRate: 0}

	out := c.Call(api, testSpec())
	if !out.OK() {
		t.Fatalf("expected success at failure rate 0, got: %s", out.Err)
	}

	data, ok := out.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected map payload, got %T", out.Data)
	}
	if data["query_name"] != "test" {
		t.Errorf("payload does not echo query name: %v", data["query_name"])
	}
	if _, ok := data["weather"]; !ok {
		t.Error("weather API payload missing weather block")
	}
}

func TestCallAlwaysFailsAtFullFailureRate(t *testing.T) {
	c := NewClient(1)
	api := API{Name: "Traffic API", FailureRate: 1.0}

	out := c.Call(api, testSpec())
	if out.OK() {
		t.Fatal("expected failure at failure rate 1.0")
	}

	known := false
	for _, msg := range errorMessages {
		if out.Err == msg {
			known = true
			break
		}
	}
	if !known {
		t.Errorf("unexpected error message: %q", out.Err)
	}
}

func TestCallDurationWithinBounds(t *testing.T) {
	c := NewClient(42)
	api := API{
		Name:        "Population API",
		MinDuration: 20 * time.Millisecond,
		MaxDuration: 60 * time.Millisecond,
		FailureRate: 0,
	}

	start := time.Now()
	_ = c.Call(api, testSpec())
	elapsed := time.Since(start)

	if elapsed < api.MinDuration {
		t.Errorf("call returned before MinDuration: %v", elapsed)
	}
	if elapsed > api.MaxDuration+50*time.Millisecond {
		t.Errorf("call took far longer than MaxDuration: %v", elapsed)
	}
}

func TestWorkForDispatchesOnPayload(t *testing.T) {
	c := NewClient(7)
	fn := c.WorkFor(testSpec())

	api := API{Name: "Air Quality API", FailureRate: 0}
	out := fn(batch.Unit{ID: api.Name, Label: api.Name, Payload: api})
	if !out.OK() {
		t.Fatalf("expected success, got: %s", out.Err)
	}
	data := out.Data.(map[string]any)
	if _, ok := data["air_quality"]; !ok {
		t.Error("air quality payload missing air_quality block")
	}
}

func TestWorkForRejectsForeignPayload(t *testing.T) {
	c := NewClient(7)
	fn := c.WorkFor(testSpec())

	out := fn(batch.Unit{ID: "bad", Payload: "not an API"})
	if out.OK() {
		t.Fatal("expected failure for non-API payload")
	}
	if out.Err == "" {
		t.Error("expected a descriptive error message")
	}
}

func TestRoundToHandlesNegatives(t *testing.T) {
	cases := []struct {
		v      float64
		places int
		want   float64
	}{
		{-0.1234, 3, -0.123},
		{-0.5678, 2, -0.57},
		{7.456, 2, 7.46},
		{3.14159, 1, 3.1},
		{-0.04, 1, 0},
	}
	for _, tc := range cases {
		if got := roundTo(tc.v, tc.places); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("roundTo(%v, %d) = %v, want %v", tc.v, tc.places, got, tc.want)
		}
	}
}

func hasPrecision(v float64, places int) bool {
	p := math.Pow(10, float64(places))
	return math.Abs(v*p-math.Round(v*p)) < 1e-9
}

func TestSatelliteAndTrafficPayloadPrecision(t *testing.T) {
	c := NewClient(3)
	spec := testSpec()

	sat := c.Call(API{Name: "Satellite Data API"}, spec).Data.(map[string]any)
	ndvi := sat["satellite"].(map[string]any)["ndvi_avg"].(float64)
	if !hasPrecision(ndvi, 3) {
		t.Errorf("ndvi_avg not rounded to 3 decimals: %v", ndvi)
	}

	tr := c.Call(API{Name: "Traffic API"}, spec).Data.(map[string]any)
	congestion := tr["traffic"].(map[string]any)["congestion_index"].(float64)
	if !hasPrecision(congestion, 2) {
		t.Errorf("congestion_index not rounded to 2 decimals: %v", congestion)
	}
}

func TestDefaultCatalogMatchesUnits(t *testing.T) {
	catalog := DefaultCatalog()
	if len(catalog) != 5 {
		t.Fatalf("expected 5 APIs, got %d", len(catalog))
	}

	units := UnitsFor(catalog)
	if len(units) != len(catalog) {
		t.Fatalf("expected %d units, got %d", len(catalog), len(units))
	}
	for i, u := range units {
		if u.ID != catalog[i].Name {
			t.Errorf("unit %d: expected ID %q, got %q", i, catalog[i].Name, u.ID)
		}
		if _, ok := u.Payload.(API); !ok {
			t.Errorf("unit %d: payload is %T, not API", i, u.Payload)
		}
	}
}
