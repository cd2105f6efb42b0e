// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package dataset reads the tabular housing dataset (CSV or XLSX) and
// turns it into Property rows keyed by id with latitude and longitude.
package dataset

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

	"github.com/paulmach/orb"
	"github.com/xuri/excelize/v2"

	"github.com/pdiddy/satfetch/pkg/types"
)

// Required column names. Matching is case-insensitive.
const (
	ColID  = "id"
	ColLat = "lat"
	ColLon = "long"
)

// ErrMissingColumns is returned when the header lacks id, lat or long.
var ErrMissingColumns = errors.New("dataset must contain columns: id, lat, long")

// Table is a header plus string rows, the common shape of CSV and XLSX input.
type Table struct {
	Header []string
	Rows   [][]string
}

// Column returns the index of name in the header, or -1.
func (t *Table) Column(name string) int {
	for i, h := range t.Header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

// Cell returns row[col] trimmed, or "" when the row is short.
func Cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// Load reads a table from path, dispatching on the file extension.
func Load(path string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening dataset: %w", err)
		}
		defer f.Close()
		return ReadCSV(f)
	case ".xlsx":
		return readXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported dataset format %q (want .csv or .xlsx)", filepath.Ext(path))
	}
}

// ReadCSV reads a header row followed by data rows.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}
	return tableFromRecords(records)
}

func readXLSX(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("no sheets found in %s", path)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheet, err)
	}
	return tableFromRecords(rows)
}

func tableFromRecords(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("dataset is empty")
	}
	if len(records[0]) > 0 {
		// Spreadsheet exports sometimes prefix the first header with a BOM.
		records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")
	}
	return &Table{Header: records[0], Rows: records[1:]}, nil
}

// Read loads the dataset at path and returns its properties in file order.
func Read(path string) ([]types.Property, error) {
	t, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Properties(t)
}

// Properties extracts id, lat and long from every row of t. Rows that
// cannot be parsed are reported with their 1-based data row number.
func Properties(t *Table) ([]types.Property, error) {
	idCol, latCol, lonCol := t.Column(ColID), t.Column(ColLat), t.Column(ColLon)
	if idCol < 0 || latCol < 0 || lonCol < 0 {
		return nil, ErrMissingColumns
	}

	props := make([]types.Property, 0, len(t.Rows))
	for i, row := range t.Rows {
		if isBlankRow(row) {
			continue
		}
		p, err := ParseRow(row, idCol, latCol, lonCol)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		props = append(props, p)
	}
	return props, nil
}

// ParseRow builds a Property from the given columns of row.
func ParseRow(row []string, idCol, latCol, lonCol int) (types.Property, error) {
	id := NormalizeID(Cell(row, idCol))
	if err := ValidID(id); err != nil {
		return types.Property{}, err
	}
	lat, err := strconv.ParseFloat(Cell(row, latCol), 64)
	if err != nil {
		return types.Property{}, fmt.Errorf("id %s: parsing lat: %w", id, err)
	}
	lon, err := strconv.ParseFloat(Cell(row, lonCol), 64)
	if err != nil {
		return types.Property{}, fmt.Errorf("id %s: parsing long: %w", id, err)
	}
	if err := ValidCoordinate(lat, lon); err != nil {
		return types.Property{}, fmt.Errorf("id %s: %w", id, err)
	}
	return types.Property{ID: id, Lat: lat, Lon: lon}, nil
}

// ErrEmptyID is returned for rows without an id.
var ErrEmptyID = errors.New("empty id")

// ValidID reports whether id can name an image file: it must be non-empty
// and a single path element inside the image directory.
func ValidID(id string) error {
	if id == "" {
		return ErrEmptyID
	}
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) ||
		filepath.Base(id) != id || filepath.IsAbs(id) {
		return fmt.Errorf("id %q is not a valid file name", id)
	}
	return nil
}

// NormalizeID trims s and drops a zero fraction from integer-valued
// numeric ids, so "7129300520.0" and "7129300520" name the same file.
func NormalizeID(s string) string {
	s = strings.TrimSpace(s)
	if whole, frac, ok := strings.Cut(s, "."); ok && whole != "" && strings.Trim(frac, "0") == "" {
		if _, err := strconv.ParseInt(whole, 10, 64); err == nil {
			return whole
		}
	}
	return s
}

// world covers every valid WGS84 coordinate.
var world = orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}

// ValidCoordinate reports whether lat/lon is a finite WGS84 position.
func ValidCoordinate(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return fmt.Errorf("coordinate (%v, %v) is not finite", lat, lon)
	}
	if !world.Contains(orb.Point{lon, lat}) {
		return fmt.Errorf("coordinate (%v, %v) is out of range", lat, lon)
	}
	return nil
}

// Extent returns the bounding box of all properties. The zero Bound is
// returned for an empty slice.
func Extent(props []types.Property) orb.Bound {
	if len(props) == 0 {
		return orb.Bound{}
	}
	first := orb.Point{props[0].Lon, props[0].Lat}
	b := orb.Bound{Min: first, Max: first}
	for _, p := range props[1:] {
		b = b.Extend(orb.Point{p.Lon, p.Lat})
	}
	return b
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
