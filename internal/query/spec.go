// Package query defines the parameters a batch of API calls is run with:
// a name, a time window, and a geographic bounding box.
package query

import (
	"errors"
	"fmt"
	"time"
)

// GeoBox is a geographic bounding box defined by its corners.
type GeoBox struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// TimeRange is the time window for a query.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Spec is one query: every API in the catalog is asked the same question.
type Spec struct {
	Name      string    `json:"name"`
	TimeRange TimeRange `json:"time_range"`
	GeoBox    GeoBox    `json:"geo_box"`
}

// Validate checks the spec before submission.
func (s Spec) Validate() error {
	if s.Name == "" {
		return errors.New("query name must not be empty")
	}
	if !s.TimeRange.Start.Before(s.TimeRange.End) {
		return errors.New("start date must be before end date")
	}
	if s.GeoBox.MinLat >= s.GeoBox.MaxLat {
		return errors.New("min latitude must be less than max latitude")
	}
	if s.GeoBox.MinLon >= s.GeoBox.MaxLon {
		return errors.New("min longitude must be less than max longitude")
	}
	if s.GeoBox.MinLat < -90 || s.GeoBox.MaxLat > 90 {
		return fmt.Errorf("latitude out of range [-90, 90]: %v to %v", s.GeoBox.MinLat, s.GeoBox.MaxLat)
	}
	if s.GeoBox.MinLon < -180 || s.GeoBox.MaxLon > 180 {
		return fmt.Errorf("longitude out of range [-180, 180]: %v to %v", s.GeoBox.MinLon, s.GeoBox.MaxLon)
	}
	return nil
}
