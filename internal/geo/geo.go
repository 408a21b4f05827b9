// Package geo parses and validates the WGS84 coordinates articles carry as text.
package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrMissing means one or both coordinate fields were empty.
	ErrMissing = errors.New("coordinate missing")
	// ErrOutOfRange means a coordinate parsed but lies outside WGS84 bounds.
	ErrOutOfRange = errors.New("coordinate out of range")
)

// LatLng is a latitude/longitude pair in degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p LatLng) String() string {
	return fmt.Sprintf("(%g, %g)", p.Lat, p.Lng)
}

// Validate checks p is finite and within [-90,90] x [-180,180].
func (p LatLng) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return fmt.Errorf("%w: %v", ErrOutOfRange, p)
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: %v", ErrOutOfRange, p)
	}
	return nil
}

// Parse reads a coordinate pair from its textual form.
func Parse(lat, lng string) (LatLng, error) {
	lat = strings.TrimSpace(lat)
	lng = strings.TrimSpace(lng)
	if lat == "" || lng == "" {
		return LatLng{}, ErrMissing
	}

	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return LatLng{}, fmt.Errorf("parse lat %q: %w", lat, err)
	}
	ln, err := strconv.ParseFloat(lng, 64)
	if err != nil {
		return LatLng{}, fmt.Errorf("parse lng %q: %w", lng, err)
	}

	p := LatLng{Lat: la, Lng: ln}
	if err := p.Validate(); err != nil {
		return LatLng{}, err
	}
	return p, nil
}
