// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Property is one row of the housing dataset as the fetcher sees it.
type Property struct {
	// ID is the property identifier; it names the image file.
	ID string `json:"id" yaml:"id"`

	// Lat is the latitude in decimal degrees.
	Lat float64 `json:"lat" yaml:"lat"`

	// Lon is the longitude in decimal degrees.
	Lon float64 `json:"long" yaml:"long"`
}

// FetchStatus is the outcome of fetching one property's image.
type FetchStatus string

const (
	StatusDownloaded FetchStatus = "downloaded"
	StatusSkipped    FetchStatus = "skipped"
	StatusFailed     FetchStatus = "failed"
)

// ImageRecord is the manifest entry for one property image.
type ImageRecord struct {
	PropertyID string      `json:"property_id" yaml:"property_id"`
	Lat        float64     `json:"lat" yaml:"lat"`
	Lon        float64     `json:"long" yaml:"long"`
	Status     FetchStatus `json:"status" yaml:"status"`

	// HTTPStatus is the provider's response code; zero when no response arrived.
	HTTPStatus int `json:"http_status,omitempty" yaml:"http_status,omitempty"`

	// Path is the local image path.
	Path string `json:"path" yaml:"path"`

	// SourceURL is the request URL with the API key redacted.
	SourceURL string `json:"source_url,omitempty" yaml:"source_url,omitempty"`

	Bytes     int64  `json:"bytes,omitempty" yaml:"bytes,omitempty"`
	Width     int    `json:"width,omitempty" yaml:"width,omitempty"`
	Height    int    `json:"height,omitempty" yaml:"height,omitempty"`
	Blank     bool   `json:"blank,omitempty" yaml:"blank,omitempty"`
	MeanColor string `json:"mean_color,omitempty" yaml:"mean_color,omitempty"`

	// Footprint is the ground bounding box the image covers as
	// [minLon, minLat, maxLon, maxLat].
	Footprint []float64 `json:"footprint,omitempty" yaml:"footprint,omitempty,flow"`

	Error     string    `json:"error,omitempty" yaml:"error,omitempty"`
	RunID     string    `json:"run_id" yaml:"run_id"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// RunSummary records one fetch batch.
type RunSummary struct {
	ID         string    `json:"id" yaml:"id"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Total      int       `json:"total" yaml:"total"`
	Downloaded int       `json:"downloaded" yaml:"downloaded"`
	Skipped    int       `json:"skipped" yaml:"skipped"`
	Failed     int       `json:"failed" yaml:"failed"`
	Aborted    bool      `json:"aborted" yaml:"aborted"`

	// Imagery is what every image downloaded by this run was requested with.
	Imagery ImageryConfig `json:"imagery" yaml:"imagery"`
}
