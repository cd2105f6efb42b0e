// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/satfetch/pkg/types"
)

// Manifest is the exported form of the ledger.
type Manifest struct {
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`

	// Imagery holds the settings of the most recent run. Images keep the
	// run_id of the run that downloaded them; Runs has each run's settings.
	Imagery *types.ImageryConfig `json:"imagery,omitempty" yaml:"imagery,omitempty"`

	Counts ManifestCounts      `json:"counts" yaml:"counts"`
	Runs   []types.RunSummary  `json:"runs" yaml:"runs"`
	Images []types.ImageRecord `json:"images" yaml:"images"`
}

// ManifestCounts repeats the status totals at the top of the export.
type ManifestCounts struct {
	Downloaded int `json:"downloaded" yaml:"downloaded"`
	Skipped    int `json:"skipped" yaml:"skipped"`
	Failed     int `json:"failed" yaml:"failed"`
	Blank      int `json:"blank" yaml:"blank"`
}

// BuildManifest collects every entry matching q.
func (s *Store) BuildManifest(ctx context.Context, q Query) (*Manifest, error) {
	images, err := s.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}
	runs, err := s.Runs(ctx, 0)
	if err != nil {
		return nil, err
	}
	m := &Manifest{
		GeneratedAt: time.Now().UTC(),
		Runs:        runs,
		Images:      images,
	}
	for _, r := range runs {
		if r.Imagery.Size != "" {
			img := r.Imagery
			m.Imagery = &img
			break
		}
	}
	for _, rec := range images {
		switch rec.Status {
		case types.StatusDownloaded:
			m.Counts.Downloaded++
		case types.StatusSkipped:
			m.Counts.Skipped++
		case types.StatusFailed:
			m.Counts.Failed++
		}
		if rec.Blank {
			m.Counts.Blank++
		}
	}
	return m, nil
}

// ExportYAML writes manifest.yaml next to the database and returns its path.
func (s *Store) ExportYAML(ctx context.Context, q Query) (string, error) {
	m, err := s.BuildManifest(ctx, q)
	if err != nil {
		return "", err
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshaling YAML: %w", err)
	}
	path := filepath.Join(s.dir, "manifest.yaml")
	return path, os.WriteFile(path, data, 0o644)
}

// ExportJSON writes manifest.json next to the database and returns its path.
func (s *Store) ExportJSON(ctx context.Context, q Query) (string, error) {
	m, err := s.BuildManifest(ctx, q)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling JSON: %w", err)
	}
	path := filepath.Join(s.dir, "manifest.json")
	return path, os.WriteFile(path, data, 0o644)
}
