// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch downloads one static map image per property and writes it
// to ImageDir/{id}.png. Existing files are never fetched again, so an
// interrupted run resumes where it stopped.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/satfetch/internal/dataset"
	"github.com/pdiddy/satfetch/internal/httputil"
	"github.com/pdiddy/satfetch/internal/inspect"
	"github.com/pdiddy/satfetch/internal/staticmap"
	"github.com/pdiddy/satfetch/pkg/types"
)

// maxImageBytes bounds a single response body.
const maxImageBytes = 32 << 20

// progressEvery controls how often FetchBatch prints a progress line.
const progressEvery = 100

// StatusError reports a non-200 response from the imagery provider.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.Code)
}

// Recorder persists per-property outcomes. *ledger.Store implements it.
type Recorder interface {
	Record(ctx context.Context, rec types.ImageRecord) error
}

// Fetcher holds everything one fetch run needs.
type Fetcher struct {
	cfg   types.FetchConfig
	pacer *httputil.Pacer
	guard *httputil.Guard
	out   io.Writer
	rec   Recorder
	log   zerolog.Logger
	runID string
	now   func() time.Time
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithOutput sets where progress and status lines go (default io.Discard).
func WithOutput(w io.Writer) Option {
	return func(f *Fetcher) { f.out = w }
}

// WithRecorder stores each outcome under runID.
func WithRecorder(r Recorder, runID string) Option {
	return func(f *Fetcher) {
		f.rec = r
		f.runID = runID
	}
}

// WithLogger sets the structured logger (default disabled).
func WithLogger(l zerolog.Logger) Option {
	return func(f *Fetcher) { f.log = l }
}

// New returns a Fetcher that sends requests through client, spaced by
// cfg.Delay, giving up after cfg.MaxConsecutiveFailures failures in a row.
func New(client *http.Client, cfg types.FetchConfig, opts ...Option) *Fetcher {
	f := &Fetcher{
		cfg:   cfg,
		pacer: httputil.NewPacer(client, cfg.Delay, cfg.UserAgent),
		guard: httputil.NewGuard("staticmap", cfg.MaxConsecutiveFailures),
		out:   io.Discard,
		log:   zerolog.Nop(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// ImagePath is where the image for id is stored. id must pass
// dataset.ValidID.
func ImagePath(dir, id string) string {
	return filepath.Join(dir, id+".png")
}

// Exists reports whether a regular file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// FetchImage downloads the image for one property. If the file already
// exists it returns a skipped record without making a request. An id that
// cannot name a file inside ImageDir fails without touching the disk. On failure
// the returned record carries the failure details alongside the error.
func (f *Fetcher) FetchImage(ctx context.Context, prop types.Property) (rec types.ImageRecord, skipped bool, err error) {
	rec = types.ImageRecord{
		PropertyID: prop.ID,
		Lat:        prop.Lat,
		Lon:        prop.Lon,
		RunID:      f.runID,
	}
	fail := func(err error) (types.ImageRecord, bool, error) {
		rec.Status = types.StatusFailed
		rec.Error = err.Error()
		rec.UpdatedAt = f.now()
		return rec, false, err
	}

	if err := dataset.ValidID(prop.ID); err != nil {
		return fail(err)
	}
	path := ImagePath(f.cfg.ImageDir, prop.ID)
	rec.Path = path

	if Exists(path) {
		rec.Status = types.StatusSkipped
		rec.UpdatedAt = f.now()
		return rec, true, nil
	}

	reqURL := staticmap.BuildURL(staticmap.BaseURL, prop.Lat, prop.Lon, f.cfg.ImageryConfig, f.cfg.APIKey)
	rec.SourceURL = staticmap.Redact(reqURL)
	if fp, fpErr := staticmap.Footprint(prop.Lat, prop.Lon, f.cfg.ImageryConfig); fpErr == nil {
		rec.Footprint = staticmap.BoundSlice(fp)
	}

	data, status, err := f.download(ctx, reqURL)
	rec.HTTPStatus = status
	if err != nil {
		return fail(err)
	}
	rec.Bytes = int64(len(data))

	if f.cfg.Verify {
		info, err := inspect.InspectBytes(data)
		if err != nil {
			return fail(fmt.Errorf("invalid image: %w", err))
		}
		rec.Width, rec.Height = info.Width, info.Height
		rec.MeanColor = info.MeanColor
		rec.Blank = info.Blank
	}

	if err := writeFile(path, data); err != nil {
		return fail(fmt.Errorf("saving %s: %w", path, err))
	}

	rec.Status = types.StatusDownloaded
	rec.UpdatedAt = f.now()
	return rec, false, nil
}

// download performs one GET and returns the body of a 200 response.
// Transport errors are scrubbed of the API key.
func (f *Fetcher) download(ctx context.Context, reqURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", scrub(err))
	}
	req.Header.Set("Accept", "image/png,image/*")

	resp, err := f.pacer.Do(ctx, req)
	if err != nil {
		return nil, 0, scrub(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxImageBytes))
		return nil, resp.StatusCode, &StatusError{Code: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading body: %w", scrub(err))
	}
	if len(data) > maxImageBytes {
		return nil, resp.StatusCode, fmt.Errorf("response exceeds %d bytes", maxImageBytes)
	}
	if len(data) == 0 {
		return nil, resp.StatusCode, errors.New("empty response body")
	}
	return data, resp.StatusCode, nil
}

// scrub redacts the API key from URLs embedded in transport errors.
func scrub(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		clone := *uerr
		clone.URL = staticmap.Redact(uerr.URL)
		return &clone
	}
	return err
}

// writeFile stores data at destPath through a temporary file so a crash
// never leaves a truncated image that a later run would skip.
func writeFile(destPath string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".fetch-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, writeErr := tmpFile.Write(data)
	closeErr := tmpFile.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing image: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
