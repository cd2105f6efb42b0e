// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/pdiddy/satfetch/internal/dataset"
	"github.com/pdiddy/satfetch/pkg/types"
)

// BatchResult holds the outcome of a batch fetch run.
type BatchResult struct {
	Total      int
	Downloaded int
	Skipped    int
	Failed     int

	// Aborted is set when the run stopped before every property was
	// processed (cancellation or the consecutive-failure guard).
	Aborted bool

	Records []types.ImageRecord
}

// Processed returns the number of properties handled before the run ended.
func (r BatchResult) Processed() int {
	return r.Downloaded + r.Skipped + r.Failed
}

// HasFailures reports whether any property failed.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// Summary converts r into the run row stored in the ledger.
func (r BatchResult) Summary(run types.RunSummary) types.RunSummary {
	run.Total = r.Total
	run.Downloaded = r.Downloaded
	run.Skipped = r.Skipped
	run.Failed = r.Failed
	run.Aborted = r.Aborted
	return run
}

// FetchBatch processes props in order. It continues past individual
// failures and spaces consecutive requests by the configured delay;
// skipped properties cost no request and no wait. The returned error is
// non-nil only when the run was cut short: the image directory could not
// be created, ctx was cancelled, or the consecutive-failure guard tripped.
func (f *Fetcher) FetchBatch(ctx context.Context, props []types.Property) (BatchResult, error) {
	result := BatchResult{Total: len(props)}

	if err := os.MkdirAll(f.cfg.ImageDir, 0o755); err != nil {
		return result, fmt.Errorf("creating image directory %s: %w", f.cfg.ImageDir, err)
	}

	fmt.Fprintf(f.out, "Starting satellite image download for %d properties...\n\n", result.Total)
	f.log.Info().Int("total", result.Total).Str("image_dir", f.cfg.ImageDir).Str("run_id", f.runID).Msg("fetch started")

	var runErr error
	for i, prop := range props {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		var (
			rec     types.ImageRecord
			skipped bool
			ran     bool
			err     error
		)
		if dataset.ValidID(prop.ID) != nil || Exists(ImagePath(f.cfg.ImageDir, prop.ID)) {
			// No request is made, so the guard does not see these.
			rec, skipped, err = f.FetchImage(ctx, prop)
			ran = true
		} else {
			err = f.guard.Do(func() error {
				var ferr error
				rec, skipped, ferr = f.FetchImage(ctx, prop)
				ran = true
				return ferr
			})
		}

		if err != nil && ctx.Err() != nil {
			// Cancelled mid-request; the property was not really attempted.
			runErr = ctx.Err()
			break
		}
		if !ran {
			// The guard refused to run the request.
			runErr = err
			break
		}

		switch {
		case err != nil:
			result.Failed++
			f.printFailure(prop.ID, err)
			f.log.Warn().Err(err).Str("property_id", prop.ID).Int("http_status", rec.HTTPStatus).Msg("fetch failed")
		case skipped:
			result.Skipped++
			f.log.Debug().Str("property_id", prop.ID).Msg("image exists, skipped")
		default:
			result.Downloaded++
			lvl := zerolog.DebugLevel
			if rec.Blank {
				lvl = zerolog.WarnLevel
			}
			f.log.WithLevel(lvl).
				Str("property_id", prop.ID).
				Int64("bytes", rec.Bytes).
				Bool("blank", rec.Blank).
				Str("mean_color", rec.MeanColor).
				Msg("image saved")
		}
		result.Records = append(result.Records, rec)

		if f.rec != nil {
			if rerr := f.rec.Record(ctx, rec); rerr != nil {
				f.log.Error().Err(rerr).Str("property_id", prop.ID).Msg("manifest write failed")
			}
		}

		if n := i + 1; n%progressEvery == 0 && n < result.Total {
			fmt.Fprintf(f.out, "progress: %d/%d (downloaded %d, skipped %d, failed %d)\n",
				n, result.Total, result.Downloaded, result.Skipped, result.Failed)
		}
	}

	if runErr != nil {
		result.Aborted = true
		f.log.Error().
			Err(runErr).
			Int("processed", result.Processed()).
			Int("total", result.Total).
			Bool("guard_open", f.guard.Open()).
			Msg("fetch aborted")
	}

	f.printSummary(result, runErr)
	f.log.Info().
		Int("downloaded", result.Downloaded).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Bool("aborted", result.Aborted).
		Msg("fetch finished")

	return result, runErr
}

func (f *Fetcher) printFailure(id string, err error) {
	var serr *StatusError
	if errors.As(err, &serr) {
		fmt.Fprintf(f.out, "[FAILED] ID %s | HTTP %d\n", id, serr.Code)
		return
	}
	fmt.Fprintf(f.out, "[ERROR] ID %s | %v\n", id, err)
}

func (f *Fetcher) printSummary(r BatchResult, runErr error) {
	fmt.Fprintf(f.out, "\nDownload Summary\n")
	fmt.Fprintf(f.out, "----------------\n")
	fmt.Fprintf(f.out, "Total properties : %d\n", r.Total)
	fmt.Fprintf(f.out, "Downloaded       : %d\n", r.Downloaded)
	fmt.Fprintf(f.out, "Skipped (exists) : %d\n", r.Skipped)
	fmt.Fprintf(f.out, "Failed           : %d\n", r.Failed)
	if r.Aborted {
		fmt.Fprintf(f.out, "Not attempted    : %d\n", r.Total-r.Processed())
		fmt.Fprintf(f.out, "\nSatellite image fetching aborted: %v\n", runErr)
		return
	}
	fmt.Fprintf(f.out, "\nSatellite image fetching completed.\n")
}
