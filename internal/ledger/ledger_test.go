// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/satfetch/pkg/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func downloaded(id, runID string) types.ImageRecord {
	return types.ImageRecord{
		PropertyID: id,
		Lat:        47.5,
		Lon:        -122.2,
		Status:     types.StatusDownloaded,
		HTTPStatus: 200,
		Path:       "data/images/" + id + ".png",
		SourceURL:  "https://maps.example.com/staticmap?key=REDACTED",
		Bytes:      1024,
		Width:      256,
		Height:     256,
		MeanColor:  "#556b2f",
		Footprint:  []float64{-122.3, 47.4, -122.1, 47.6},
		RunID:      runID,
	}
}

func TestOpenCreatesSchemaIdempotently(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(dir)
	require.NoError(t, err)
	defer s2.Close()

	_, err = os.Stat(s2.Dir() + "/" + DBFile)
	assert.NoError(t, err)
}

func TestRecordAndGet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	run, err := s.BeginRun(ctx, types.DefaultImagery())
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)

	require.NoError(t, s.Record(ctx, downloaded("100", run.ID)))

	got, err := s.Get(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, types.StatusDownloaded, got.Status)
	assert.Equal(t, 200, got.HTTPStatus)
	assert.Equal(t, 256, got.Width)
	assert.Equal(t, []float64{-122.3, 47.4, -122.1, 47.6}, got.Footprint)
	assert.Equal(t, run.ID, got.RunID)
	assert.False(t, got.UpdatedAt.IsZero())

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRecordSkipKeepsDownloadMetadata(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, downloaded("100", "")))
	require.NoError(t, s.Record(ctx, types.ImageRecord{
		PropertyID: "100",
		Status:     types.StatusSkipped,
		Path:       "data/images/100.png",
	}))

	got, err := s.Get(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, types.StatusDownloaded, got.Status)
	assert.Equal(t, 256, got.Width)
}

func TestRecordSkipClearsEarlierFailure(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, types.ImageRecord{
		PropertyID: "7",
		Status:     types.StatusFailed,
		HTTPStatus: 403,
		Error:      "HTTP 403",
	}))
	require.NoError(t, s.Record(ctx, types.ImageRecord{
		PropertyID: "7",
		Status:     types.StatusSkipped,
		Path:       "data/images/7.png",
	}))

	got, err := s.Get(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, types.StatusSkipped, got.Status)
	assert.Empty(t, got.Error)
	assert.Zero(t, got.HTTPStatus)
}

func TestRecordFailureThenDownloadOverwrites(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, types.ImageRecord{PropertyID: "9", Status: types.StatusFailed, Error: "timeout"}))
	require.NoError(t, s.Record(ctx, downloaded("9", "")))

	got, err := s.Get(ctx, "9")
	require.NoError(t, err)
	assert.Equal(t, types.StatusDownloaded, got.Status)
	assert.Empty(t, got.Error)
}

func TestRunsAndSummary(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	run, err := s.BeginRun(ctx, types.DefaultImagery())
	require.NoError(t, err)

	blank := downloaded("2", run.ID)
	blank.Blank = true
	require.NoError(t, s.Record(ctx, downloaded("1", run.ID)))
	require.NoError(t, s.Record(ctx, blank))
	require.NoError(t, s.Record(ctx, types.ImageRecord{PropertyID: "3", Status: types.StatusSkipped, RunID: run.ID}))
	require.NoError(t, s.Record(ctx, types.ImageRecord{PropertyID: "4", Status: types.StatusFailed, HTTPStatus: 500, RunID: run.ID}))

	run.Total, run.Downloaded, run.Skipped, run.Failed = 4, 2, 1, 1
	require.NoError(t, s.FinishRun(ctx, run))

	sum, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Downloaded)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Blank)
	assert.Equal(t, 4, sum.Total())
	assert.Equal(t, 1, sum.Runs)
	require.NotNil(t, sum.LastRun)
	assert.Equal(t, run.ID, sum.LastRun.ID)
	assert.Equal(t, 4, sum.LastRun.Total)
	assert.False(t, sum.LastRun.FinishedAt.IsZero())

	fails, err := s.Failures(ctx, 10)
	require.NoError(t, err)
	require.Len(t, fails, 1)
	assert.Equal(t, "4", fails[0].PropertyID)
	assert.Equal(t, 500, fails[0].HTTPStatus)
}

func TestFinishUnknownRun(t *testing.T) {
	s := testStore(t)
	err := s.FinishRun(context.Background(), types.RunSummary{ID: "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestList(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, s.Record(ctx, downloaded(id, "")))
	}
	blank := downloaded("d", "")
	blank.Blank = true
	require.NoError(t, s.Record(ctx, blank))

	all, err := s.List(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "a", all[0].PropertyID)

	limited, err := s.List(ctx, Query{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	blanks, err := s.List(ctx, Query{BlankOnly: true})
	require.NoError(t, err)
	require.Len(t, blanks, 1)
	assert.Equal(t, "d", blanks[0].PropertyID)
}

func TestExport(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	run, err := s.BeginRun(ctx, types.DefaultImagery())
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, downloaded("1", run.ID)))
	require.NoError(t, s.Record(ctx, types.ImageRecord{PropertyID: "2", Status: types.StatusFailed, Error: "HTTP 403"}))

	yamlPath, err := s.ExportYAML(ctx, Query{})
	require.NoError(t, err)
	data, err := os.ReadFile(yamlPath)
	require.NoError(t, err)

	var fromYAML Manifest
	require.NoError(t, yaml.Unmarshal(data, &fromYAML))
	assert.Equal(t, 1, fromYAML.Counts.Downloaded)
	assert.Equal(t, 1, fromYAML.Counts.Failed)
	require.NotNil(t, fromYAML.Imagery)
	assert.Equal(t, 19, fromYAML.Imagery.Zoom)
	require.Len(t, fromYAML.Runs, 1)
	assert.Equal(t, run.ID, fromYAML.Runs[0].ID)
	require.Len(t, fromYAML.Images, 2)
	assert.Equal(t, "HTTP 403", fromYAML.Images[1].Error)

	jsonPath, err := s.ExportJSON(ctx, Query{Status: types.StatusDownloaded})
	require.NoError(t, err)
	data, err = os.ReadFile(jsonPath)
	require.NoError(t, err)

	var fromJSON Manifest
	require.NoError(t, json.Unmarshal(data, &fromJSON))
	require.Len(t, fromJSON.Images, 1)
	assert.Equal(t, "1", fromJSON.Images[0].PropertyID)
	assert.NotContains(t, string(data), "api_key")
}

func TestRunImageryRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	first, err := s.BeginRun(ctx, types.DefaultImagery())
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, downloaded("1", first.ID)))
	require.NoError(t, s.FinishRun(ctx, first))

	wide := types.ImageryConfig{MapType: types.MapHybrid, Zoom: 18, Size: "640x640", Scale: 2}
	second, err := s.BeginRun(ctx, wide)
	require.NoError(t, err)
	assert.Equal(t, wide, second.Imagery)
	require.NoError(t, s.Record(ctx, downloaded("2", second.ID)))
	require.NoError(t, s.FinishRun(ctx, second))

	runs, err := s.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, wide, runs[0].Imagery)
	assert.Equal(t, types.DefaultImagery(), runs[1].Imagery)

	m, err := s.BuildManifest(ctx, Query{})
	require.NoError(t, err)
	require.NotNil(t, m.Imagery)
	assert.Equal(t, wide, *m.Imagery, "header reflects the latest run, not flag defaults")

	path, err := s.ExportYAML(ctx, Query{})
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var fromYAML Manifest
	require.NoError(t, yaml.Unmarshal(data, &fromYAML))
	require.NotNil(t, fromYAML.Imagery)
	assert.Equal(t, 18, fromYAML.Imagery.Zoom)
	assert.Equal(t, "640x640", fromYAML.Imagery.Size)
	assert.Equal(t, types.MapHybrid, fromYAML.Imagery.MapType)
	assert.Equal(t, 2, fromYAML.Imagery.Scale)
}

func TestExportWithoutRunsOmitsImagery(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.Record(ctx, downloaded("1", "")))

	m, err := s.BuildManifest(ctx, Query{})
	require.NoError(t, err)
	assert.Nil(t, m.Imagery)
	assert.Empty(t, m.Runs)
}

func TestOpenUpgradesRunsTable(t *testing.T) {
	dir := t.TempDir()
	db, err := sql.Open("sqlite3", filepath.Join(dir, DBFile))
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		total INTEGER NOT NULL DEFAULT 0,
		downloaded INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		aborted INTEGER NOT NULL DEFAULT 0
	)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO runs (id, started_at) VALUES ('old', '2026-01-01T00:00:00.000000000Z')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, dir, s.Dir())

	ctx := context.Background()
	_, err = s.BeginRun(ctx, types.DefaultImagery())
	require.NoError(t, err)

	runs, err := s.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, types.DefaultImagery(), runs[0].Imagery)
	assert.Equal(t, "old", runs[1].ID)
	assert.Zero(t, runs[1].Imagery.Zoom)
}
