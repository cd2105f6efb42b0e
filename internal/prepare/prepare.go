// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package prepare cleans the raw housing dataset before feature
// engineering. Rows the fetcher could not use, or that would poison the
// regression target, are dropped, and the log-transformed target is added.
package prepare

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pdiddy/satfetch/internal/dataset"
)

// DefaultPriceColumn is the regression target in the King County data.
const DefaultPriceColumn = "price"

// LogPriceColumn is appended to the cleaned output when a price column exists.
const LogPriceColumn = "log_price"

// Options controls Clean.
type Options struct {
	// PriceColumn names the target column (default "price").
	PriceColumn string

	Logger zerolog.Logger
}

// Report counts what Clean kept and why it dropped the rest.
type Report struct {
	Read          int `json:"read" yaml:"read"`
	Kept          int `json:"kept" yaml:"kept"`
	EmptyID       int `json:"empty_id" yaml:"empty_id"`
	BadID         int `json:"bad_id" yaml:"bad_id"`
	DuplicateID   int `json:"duplicate_id" yaml:"duplicate_id"`
	BadCoordinate int `json:"bad_coordinate" yaml:"bad_coordinate"`
	BadPrice      int `json:"bad_price" yaml:"bad_price"`

	// HasPrice is set when the input had a price column and log_price was written.
	HasPrice bool `json:"has_price" yaml:"has_price"`
}

// Dropped is the number of rows removed.
func (r Report) Dropped() int {
	return r.EmptyID + r.BadID + r.DuplicateID + r.BadCoordinate + r.BadPrice
}

// Clean reads the dataset at in (CSV or XLSX) and writes the cleaned CSV
// to out. The output file is only replaced once every row is written.
func Clean(in, out string, opts Options) (Report, error) {
	if filepath.Clean(in) == filepath.Clean(out) {
		return Report{}, fmt.Errorf("output %s would overwrite the input", out)
	}

	t, err := dataset.Load(in)
	if err != nil {
		return Report{}, err
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return Report{}, fmt.Errorf("creating output directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(out), ".prepare-*.tmp")
	if err != nil {
		return Report{}, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	report, err := CleanTable(t, tmp, opts)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing temp file: %w", cerr)
	}
	if err != nil {
		return report, err
	}
	if err := os.Rename(tmpPath, out); err != nil {
		return report, fmt.Errorf("renaming temp file: %w", err)
	}

	opts.Logger.Info().
		Str("input", in).
		Str("output", out).
		Int("read", report.Read).
		Int("kept", report.Kept).
		Int("dropped", report.Dropped()).
		Msg("dataset cleaned")
	return report, nil
}

// CleanTable applies the cleaning rules to t and writes CSV to w.
func CleanTable(t *dataset.Table, w io.Writer, opts Options) (Report, error) {
	var report Report

	idCol, latCol, lonCol := t.Column(dataset.ColID), t.Column(dataset.ColLat), t.Column(dataset.ColLon)
	if idCol < 0 || latCol < 0 || lonCol < 0 {
		return report, dataset.ErrMissingColumns
	}

	priceName := opts.PriceColumn
	if priceName == "" {
		priceName = DefaultPriceColumn
	}
	priceCol := t.Column(priceName)
	report.HasPrice = priceCol >= 0

	header := append([]string(nil), t.Header...)
	logCol := -1
	if report.HasPrice {
		logCol = t.Column(LogPriceColumn)
		if logCol < 0 {
			logCol = len(header)
			header = append(header, LogPriceColumn)
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return report, fmt.Errorf("writing header: %w", err)
	}

	seen := make(map[string]struct{}, len(t.Rows))
	for i, row := range t.Rows {
		if blank(row) {
			continue
		}
		report.Read++

		id := dataset.NormalizeID(dataset.Cell(row, idCol))
		if err := dataset.ValidID(id); err != nil {
			if errors.Is(err, dataset.ErrEmptyID) {
				report.EmptyID++
			} else {
				report.BadID++
			}
			opts.Logger.Debug().Int("row", i+1).Err(err).Msg("dropped: unusable id")
			continue
		}
		if _, dup := seen[id]; dup {
			report.DuplicateID++
			opts.Logger.Debug().Int("row", i+1).Str("id", id).Msg("dropped: duplicate id")
			continue
		}
		if _, err := dataset.ParseRow(row, idCol, latCol, lonCol); err != nil {
			report.BadCoordinate++
			opts.Logger.Debug().Int("row", i+1).Err(err).Msg("dropped: bad coordinate")
			continue
		}

		var logPrice string
		if report.HasPrice {
			price, err := strconv.ParseFloat(dataset.Cell(row, priceCol), 64)
			if err != nil || math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
				report.BadPrice++
				opts.Logger.Debug().Int("row", i+1).Str("id", id).Msg("dropped: bad price")
				continue
			}
			logPrice = strconv.FormatFloat(math.Log(price), 'f', -1, 64)
		}
		seen[id] = struct{}{}

		out := make([]string, len(header))
		copy(out, row)
		out[idCol] = id
		if logCol >= 0 {
			out[logCol] = logPrice
		}
		if err := cw.Write(out); err != nil {
			return report, fmt.Errorf("writing row %d: %w", i+1, err)
		}
		report.Kept++
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return report, fmt.Errorf("flushing CSV: %w", err)
	}
	return report, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
