package models

import (
	"strconv"
	"time"
)

// GeoPoint is a WGS84 coordinate as stored in the index (geo_point object form).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// NewsDocument represents the canonical structure stored in Elasticsearch.
type NewsDocument struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Link        string    `json:"link"`
	Region      string    `json:"region"`
	Category    string    `json:"category"`
	Location    *GeoPoint `json:"location,omitempty"`
	Keywords    []string  `json:"keywords"`
	Source      string    `json:"source"`
	Timestamp   time.Time `json:"timestamp"`
}

// Article is the wire form returned by the search endpoint.
// Coordinates travel as text and may be missing or malformed.
type Article struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Link        string `json:"link"`
	Lat         string `json:"lat,omitempty"`
	Lng         string `json:"lng,omitempty"`
}

// SearchResponse is either a list of articles or an error message.
type SearchResponse struct {
	News  []Article `json:"news"`
	Error string    `json:"error,omitempty"`
}

// ToArticle converts a stored document into its wire form.
func (d NewsDocument) ToArticle() Article {
	a := Article{
		Title:       d.Title,
		Description: d.Description,
		Link:        d.Link,
	}
	if d.Location != nil {
		a.Lat = strconv.FormatFloat(d.Location.Lat, 'f', -1, 64)
		a.Lng = strconv.FormatFloat(d.Location.Lon, 'f', -1, 64)
	}
	return a
}

// RawArticle is the message the collector publishes and the worker consumes.
// Only a title or description is required; everything else is inferred when missing.
type RawArticle struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Link        string `json:"link,omitempty"`
	Region      string `json:"region,omitempty"`
	Category    string `json:"category,omitempty"`
	Lat         string `json:"lat,omitempty"`
	Lng         string `json:"lng,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
	Source      string `json:"source,omitempty"`
}
