// Package inspect decodes fetched imagery and summarizes it: dimensions,
// mean colour, and whether the image is a uniform placeholder tile.
//
// Providers answer coordinates without coverage with a flat grey image and
// HTTP 200, so a successful response alone does not mean usable imagery.
package inspect

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	colorful "github.com/lucasb-eyer/go-colorful"
)

const (
	// sampleSize is the side of the thumbnail colour statistics run on.
	sampleSize = 32

	// BlankThreshold is the mean CIE-Lab distance from the mean colour
	// below which an image counts as blank.
	BlankThreshold = 0.02
)

// Info summarizes one decoded image.
type Info struct {
	Width     int     `json:"width" yaml:"width"`
	Height    int     `json:"height" yaml:"height"`
	Format    string  `json:"format" yaml:"format"`
	MeanColor string  `json:"mean_color" yaml:"mean_color"`
	Spread    float64 `json:"spread" yaml:"spread"`
	Blank     bool    `json:"blank" yaml:"blank"`
}

// Inspect decodes an image from r and computes its summary.
func Inspect(r io.Reader) (Info, error) {
	// Read fully so the format can be reported alongside the decoded image.
	data, err := io.ReadAll(r)
	if err != nil {
		return Info{}, fmt.Errorf("reading image: %w", err)
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf("decoding image: %w", err)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf("decoding image: %w", err)
	}
	info := Summarize(img)
	info.Format = format
	return info, nil
}

// InspectBytes is Inspect over an in-memory body.
func InspectBytes(data []byte) (Info, error) {
	return Inspect(bytes.NewReader(data))
}

// InspectFile opens and inspects the image at path.
func InspectFile(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()
	return Inspect(f)
}

// Summarize computes dimensions and colour statistics for img.
func Summarize(img image.Image) Info {
	bounds := img.Bounds()
	info := Info{Width: bounds.Dx(), Height: bounds.Dy()}
	if info.Width == 0 || info.Height == 0 {
		info.Blank = true
		return info
	}

	thumb := imaging.Resize(img, sampleSize, sampleSize, imaging.Box)
	tb := thumb.Bounds()

	pixels := make([]colorful.Color, 0, tb.Dx()*tb.Dy())
	var sumR, sumG, sumB float64
	for y := tb.Min.Y; y < tb.Max.Y; y++ {
		for x := tb.Min.X; x < tb.Max.X; x++ {
			c, _ := colorful.MakeColor(thumb.At(x, y))
			pixels = append(pixels, c)
			sumR += c.R
			sumG += c.G
			sumB += c.B
		}
	}
	n := float64(len(pixels))
	mean := colorful.Color{R: sumR / n, G: sumG / n, B: sumB / n}

	var spread float64
	for _, c := range pixels {
		spread += c.DistanceLab(mean)
	}
	spread /= n

	info.MeanColor = mean.Clamped().Hex()
	info.Spread = spread
	info.Blank = spread < BlankThreshold
	return info
}

// FileReport is the inspection outcome for one file found by ScanDir.
type FileReport struct {
	Path string
	Info Info
	Err  error
}

// ScanDir inspects every .png under dir, sorted by path. Decoding errors
// are reported per file rather than aborting the scan.
func ScanDir(dir string) ([]FileReport, error) {
	var reports []FileReport
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".png") {
			return nil
		}
		info, ierr := InspectFile(path)
		reports = append(reports, FileReport{Path: path, Info: info, Err: ierr})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].Path < reports[j].Path })
	return reports, nil
}
