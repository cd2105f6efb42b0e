package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout (default 10s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" validate:"gt=0"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "satfetch/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" validate:"required"`
}

// MapType selects the static map rendering.
type MapType string

const (
	MapSatellite MapType = "satellite"
	MapHybrid    MapType = "hybrid"
	MapRoadmap   MapType = "roadmap"
	MapTerrain   MapType = "terrain"
)

// ImageryConfig describes the image requested for every property. All
// images in one dataset share these settings so the downstream CNN sees a
// fixed input geometry.
type ImageryConfig struct {
	// MapType is the rendering style (default satellite).
	MapType MapType `json:"map_type" yaml:"map_type" validate:"oneof=satellite hybrid roadmap terrain"`

	// Zoom is the static map zoom level (default 19).
	Zoom int `json:"zoom" yaml:"zoom" validate:"min=0,max=21"`

	// Size is the image size in pixels as WIDTHxHEIGHT (default "256x256").
	Size string `json:"size" yaml:"size" validate:"required,imagesize"`

	// Scale multiplies the pixel density (1 or 2).
	Scale int `json:"scale" yaml:"scale" validate:"oneof=1 2"`
}

// DefaultImagery returns the imagery settings the training images were
// fetched with.
func DefaultImagery() ImageryConfig {
	return ImageryConfig{
		MapType: MapSatellite,
		Zoom:    19,
		Size:    "256x256",
		Scale:   1,
	}
}

// Dimensions parses Size into width and height.
func (c ImageryConfig) Dimensions() (width, height int, err error) {
	w, h, ok := strings.Cut(c.Size, "x")
	if !ok {
		return 0, 0, fmt.Errorf("image size %q: want WIDTHxHEIGHT", c.Size)
	}
	if width, err = strconv.Atoi(w); err != nil {
		return 0, 0, fmt.Errorf("image size %q: %w", c.Size, err)
	}
	if height, err = strconv.Atoi(h); err != nil {
		return 0, 0, fmt.Errorf("image size %q: %w", c.Size, err)
	}
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("image size %q: dimensions must be positive", c.Size)
	}
	return width, height, nil
}

// FetchConfig holds settings for the image acquisition stage.
type FetchConfig struct {
	HTTPConfig    `yaml:",inline"`
	ImageryConfig `yaml:",inline"`

	// APIKey authenticates against the static map provider.
	APIKey string `json:"-" yaml:"-" validate:"required"`

	// DataPath is the tabular dataset with id, lat and long columns.
	DataPath string `json:"data_path" yaml:"data_path" validate:"required"`

	// ImageDir receives one {id}.png per property.
	ImageDir string `json:"image_dir" yaml:"image_dir" validate:"required"`

	// Delay is the minimum spacing between consecutive requests (default 150ms).
	Delay time.Duration `json:"delay" yaml:"delay" validate:"min=0"`

	// MaxConsecutiveFailures aborts the batch after this many failed
	// requests in a row. Zero disables the guard.
	MaxConsecutiveFailures int `json:"max_consecutive_failures" yaml:"max_consecutive_failures" validate:"min=0"`

	// Verify decodes every downloaded body before it is written.
	Verify bool `json:"verify" yaml:"verify"`

	// Limit caps the number of properties processed. Zero means all.
	Limit int `json:"limit" yaml:"limit" validate:"min=0"`
}

// PrepareConfig holds settings for the preprocessing stage.
type PrepareConfig struct {
	// InputPath is the raw tabular dataset.
	InputPath string `json:"input_path" yaml:"input_path" validate:"required"`

	// OutputPath receives the cleaned CSV.
	OutputPath string `json:"output_path" yaml:"output_path" validate:"required,nefield=InputPath"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("imagesize", func(fl validator.FieldLevel) bool {
			_, _, err := ImageryConfig{Size: fl.Field().String()}.Dimensions()
			return err == nil
		})
	})
	return validate
}

// Validate checks struct tags on cfg and reports the first offending field.
func Validate(cfg any) error {
	err := validatorInstance().Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Param() != "" {
			return fmt.Errorf("invalid config: %s fails %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value())
		}
		return fmt.Errorf("invalid config: %s fails %s", fe.Namespace(), fe.Tag())
	}
	return fmt.Errorf("invalid config: %w", err)
}
