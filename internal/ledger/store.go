// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger records fetch outcomes in a SQLite manifest that sits
// next to the images it describes. Downstream training stages read the
// exported manifest to find usable images without re-decoding them.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/satfetch/pkg/types"
)

// DBFile is the manifest database name inside the image directory.
const DBFile = "manifest.db"

// tsFormat is fixed-width so timestamps sort lexically.
const tsFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store manages the manifest SQLite database.
type Store struct {
	db  *sql.DB
	dir string
}

// Open opens or creates dir/manifest.db and its schema.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating manifest directory: %w", err)
	}

	dbPath := filepath.Join(dir, DBFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dir: dir}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dir is the directory holding the manifest.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			total INTEGER NOT NULL DEFAULT 0,
			downloaded INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			aborted INTEGER NOT NULL DEFAULT 0,
			map_type TEXT,
			zoom INTEGER,
			size TEXT,
			scale INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS images (
			property_id TEXT PRIMARY KEY,
			lat REAL,
			lon REAL,
			status TEXT NOT NULL,
			http_status INTEGER,
			path TEXT,
			source_url TEXT,
			bytes INTEGER,
			width INTEGER,
			height INTEGER,
			blank INTEGER NOT NULL DEFAULT 0,
			mean_color TEXT,
			footprint TEXT,
			error TEXT,
			run_id TEXT REFERENCES runs(id),
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_images_status ON images(status)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return s.addRunImageryColumns()
}

// addRunImageryColumns upgrades manifests created before runs recorded
// their imagery settings.
func (s *Store) addRunImageryColumns() error {
	rows, err := s.db.Query(`PRAGMA table_info(runs)`)
	if err != nil {
		return fmt.Errorf("reading runs columns: %w", err)
	}
	have := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			rows.Close()
			return fmt.Errorf("scanning runs columns: %w", err)
		}
		have[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading runs columns: %w", err)
	}

	for _, col := range []struct{ name, ctype string }{
		{"map_type", "TEXT"}, {"zoom", "INTEGER"}, {"size", "TEXT"}, {"scale", "INTEGER"},
	} {
		if have[col.name] {
			continue
		}
		if _, err := s.db.Exec(`ALTER TABLE runs ADD COLUMN ` + col.name + ` ` + col.ctype); err != nil {
			return fmt.Errorf("adding runs.%s: %w", col.name, err)
		}
	}
	return nil
}

// BeginRun inserts a new run row fetching with img and returns it.
func (s *Store) BeginRun(ctx context.Context, img types.ImageryConfig) (types.RunSummary, error) {
	run := types.RunSummary{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Imagery:   img,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, map_type, zoom, size, scale) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.Format(tsFormat),
		string(img.MapType), img.Zoom, img.Size, img.Scale,
	)
	if err != nil {
		return types.RunSummary{}, fmt.Errorf("inserting run: %w", err)
	}
	return run, nil
}

// FinishRun stores the final counts of run.
func (s *Store) FinishRun(ctx context.Context, run types.RunSummary) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, total = ?, downloaded = ?, skipped = ?, failed = ?, aborted = ?
		 WHERE id = ?`,
		run.FinishedAt.Format(tsFormat), run.Total, run.Downloaded, run.Skipped, run.Failed,
		boolInt(run.Aborted), run.ID,
	)
	if err != nil {
		return fmt.Errorf("updating run %s: %w", run.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

// Record upserts the manifest entry for one property. A skipped record
// never overwrites the image metadata of an earlier download; it fills a
// row for images fetched before the manifest existed and clears an
// earlier failure whose file has since appeared.
func (s *Store) Record(ctx context.Context, rec types.ImageRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	footprint := ""
	if len(rec.Footprint) > 0 {
		data, _ := json.Marshal(rec.Footprint)
		footprint = string(data)
	}

	args := []any{
		rec.PropertyID, rec.Lat, rec.Lon, string(rec.Status), rec.HTTPStatus,
		rec.Path, rec.SourceURL, rec.Bytes, rec.Width, rec.Height,
		boolInt(rec.Blank), rec.MeanColor, footprint, rec.Error, nullable(rec.RunID),
		rec.UpdatedAt.Format(tsFormat),
	}

	const insert = `INSERT INTO images (property_id, lat, lon, status, http_status, path, source_url,
			bytes, width, height, blank, mean_color, footprint, error, run_id, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var query string
	if rec.Status == types.StatusSkipped {
		query = insert + ` ON CONFLICT(property_id) DO UPDATE SET
			status=excluded.status, http_status=0, path=excluded.path, error='',
			run_id=excluded.run_id, updated_at=excluded.updated_at
			WHERE images.status = 'failed'`
	} else {
		query = insert + ` ON CONFLICT(property_id) DO UPDATE SET
			lat=excluded.lat, lon=excluded.lon, status=excluded.status,
			http_status=excluded.http_status, path=excluded.path, source_url=excluded.source_url,
			bytes=excluded.bytes, width=excluded.width, height=excluded.height,
			blank=excluded.blank, mean_color=excluded.mean_color, footprint=excluded.footprint,
			error=excluded.error, run_id=excluded.run_id, updated_at=excluded.updated_at`
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("recording %s: %w", rec.PropertyID, err)
	}
	return nil
}

// Get returns the manifest entry for id, or sql.ErrNoRows.
func (s *Store) Get(ctx context.Context, id string) (types.ImageRecord, error) {
	row := s.db.QueryRowContext(ctx, selectImages+` WHERE property_id = ?`, id)
	return scanImage(row)
}

// Summary holds manifest counts by status.
type Summary struct {
	Downloaded int
	Skipped    int
	Failed     int
	Blank      int
	Runs       int
	LastRun    *types.RunSummary
}

// Total returns the number of properties in the manifest.
func (s Summary) Total() int {
	return s.Downloaded + s.Skipped + s.Failed
}

// Summary counts manifest entries by status and loads the latest run.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	var sum Summary
	rows, err := s.db.QueryContext(ctx, `SELECT status, count(*) FROM images GROUP BY status`)
	if err != nil {
		return sum, fmt.Errorf("counting images: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return sum, fmt.Errorf("scanning counts: %w", err)
		}
		switch types.FetchStatus(status) {
		case types.StatusDownloaded:
			sum.Downloaded = n
		case types.StatusSkipped:
			sum.Skipped = n
		case types.StatusFailed:
			sum.Failed = n
		}
	}
	if err := rows.Err(); err != nil {
		return sum, fmt.Errorf("iterating counts: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM images WHERE blank = 1`).Scan(&sum.Blank); err != nil {
		return sum, fmt.Errorf("counting blank images: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM runs`).Scan(&sum.Runs); err != nil {
		return sum, fmt.Errorf("counting runs: %w", err)
	}

	runs, err := s.Runs(ctx, 1)
	if err != nil {
		return sum, err
	}
	if len(runs) > 0 {
		sum.LastRun = &runs[0]
	}
	return sum, nil
}

// Runs returns up to limit runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]types.RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, COALESCE(finished_at, ''), total, downloaded, skipped, failed, aborted,
		        COALESCE(map_type, ''), COALESCE(zoom, 0), COALESCE(size, ''), COALESCE(scale, 0)
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []types.RunSummary
	for rows.Next() {
		var r types.RunSummary
		var started, finished string
		var aborted int
		var mapType string
		if err := rows.Scan(&r.ID, &started, &finished, &r.Total, &r.Downloaded, &r.Skipped, &r.Failed, &aborted,
			&mapType, &r.Imagery.Zoom, &r.Imagery.Size, &r.Imagery.Scale); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.StartedAt, _ = time.Parse(tsFormat, started)
		if finished != "" {
			r.FinishedAt, _ = time.Parse(tsFormat, finished)
		}
		r.Aborted = aborted != 0
		r.Imagery.MapType = types.MapType(mapType)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Query selects manifest entries.
type Query struct {
	// Status filters by fetch status; empty means all.
	Status types.FetchStatus

	// BlankOnly keeps only entries flagged blank.
	BlankOnly bool

	// Limit caps the result count; zero means no limit.
	Limit int
}

// List returns manifest entries ordered by property id.
func (s *Store) List(ctx context.Context, q Query) ([]types.ImageRecord, error) {
	query := selectImages + ` WHERE 1=1`
	var args []any
	if q.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(q.Status))
	}
	if q.BlankOnly {
		query += ` AND blank = 1`
	}
	query += ` ORDER BY property_id`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying images: %w", err)
	}
	defer rows.Close()

	var out []types.ImageRecord
	for rows.Next() {
		rec, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Failures returns up to limit failed entries.
func (s *Store) Failures(ctx context.Context, limit int) ([]types.ImageRecord, error) {
	return s.List(ctx, Query{Status: types.StatusFailed, Limit: limit})
}

const selectImages = `SELECT property_id, lat, lon, status, COALESCE(http_status, 0), COALESCE(path, ''),
	COALESCE(source_url, ''), COALESCE(bytes, 0), COALESCE(width, 0), COALESCE(height, 0), blank,
	COALESCE(mean_color, ''), COALESCE(footprint, ''), COALESCE(error, ''), COALESCE(run_id, ''), updated_at
	FROM images`

type scanner interface {
	Scan(dest ...any) error
}

func scanImage(row scanner) (types.ImageRecord, error) {
	var rec types.ImageRecord
	var status, footprint, updated string
	var blank int
	err := row.Scan(&rec.PropertyID, &rec.Lat, &rec.Lon, &status, &rec.HTTPStatus, &rec.Path,
		&rec.SourceURL, &rec.Bytes, &rec.Width, &rec.Height, &blank,
		&rec.MeanColor, &footprint, &rec.Error, &rec.RunID, &updated)
	if err != nil {
		return types.ImageRecord{}, err
	}
	rec.Status = types.FetchStatus(status)
	rec.Blank = blank != 0
	if footprint != "" {
		if err := json.Unmarshal([]byte(footprint), &rec.Footprint); err != nil {
			return types.ImageRecord{}, fmt.Errorf("decoding footprint for %s: %w", rec.PropertyID, err)
		}
	}
	rec.UpdatedAt, _ = time.Parse(tsFormat, updated)
	return rec, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
