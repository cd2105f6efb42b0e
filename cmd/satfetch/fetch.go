package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/satfetch/internal/dataset"
	"github.com/pdiddy/satfetch/internal/fetch"
	"github.com/pdiddy/satfetch/internal/ledger"
	"github.com/pdiddy/satfetch/internal/logging"
	"github.com/pdiddy/satfetch/internal/secrets"
	"github.com/pdiddy/satfetch/pkg/types"
)

const (
	defaultDataPath               = "data/raw/train.xlsx"
	defaultImageDir               = "data/images/train"
	defaultTimeout                = 10 * time.Second
	defaultDelay                  = 150 * time.Millisecond
	defaultMaxConsecutiveFailures = 25
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download one satellite image per property",
	Long: `Fetch reads the dataset (CSV or XLSX with id, lat and long columns) and
downloads a static satellite image centred on each property into
{image-dir}/{id}.png. Properties whose image already exists are skipped
without a request; individual failures are reported and the run continues.

The API key is read from GOOGLE_MAPS_API_KEY (a .env file in the working
directory is loaded first) or from .secrets/google-maps-api-key.

Exits non-zero when any property failed or the run was aborted.`,
	RunE: runFetch,
}

func init() {
	f := fetchCmd.Flags()
	def := types.DefaultImagery()
	f.String("data", defaultDataPath, "dataset file with id, lat, long columns (.csv or .xlsx)")
	f.String("image-dir", defaultImageDir, "directory receiving {id}.png images")
	f.Int("zoom", def.Zoom, "static map zoom level")
	f.String("size", def.Size, "image size as WIDTHxHEIGHT")
	f.String("map-type", string(def.MapType), "map type: satellite, hybrid, roadmap, terrain")
	f.Int("scale", def.Scale, "pixel density multiplier (1 or 2)")
	f.Duration("timeout", defaultTimeout, "HTTP request timeout")
	f.Duration("delay", defaultDelay, "minimum delay between consecutive requests")
	f.Int("max-consecutive-failures", defaultMaxConsecutiveFailures, "abort after this many failures in a row (0 disables)")
	f.Bool("no-verify", false, "write response bodies without decoding them")
	f.Int("limit", 0, "process only the first N properties (0 means all)")

	for key, flag := range map[string]string{
		"fetch.data":                     "data",
		"fetch.image_dir":                "image-dir",
		"fetch.zoom":                     "zoom",
		"fetch.size":                     "size",
		"fetch.map_type":                 "map-type",
		"fetch.scale":                    "scale",
		"fetch.timeout":                  "timeout",
		"fetch.delay":                    "delay",
		"fetch.max_consecutive_failures": "max-consecutive-failures",
		"fetch.no_verify":                "no-verify",
		"fetch.limit":                    "limit",
	} {
		viper.BindPFlag(key, f.Lookup(flag))
	}

	rootCmd.AddCommand(fetchCmd)
}

// imageryFromConfig returns the imagery settings in effect.
func imageryFromConfig() types.ImageryConfig {
	return types.ImageryConfig{
		MapType: types.MapType(viper.GetString("fetch.map_type")),
		Zoom:    viper.GetInt("fetch.zoom"),
		Size:    viper.GetString("fetch.size"),
		Scale:   viper.GetInt("fetch.scale"),
	}
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg := types.FetchConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   viper.GetDuration("fetch.timeout"),
			UserAgent: "satfetch/" + version,
		},
		ImageryConfig:          imageryFromConfig(),
		DataPath:               viper.GetString("fetch.data"),
		ImageDir:               viper.GetString("fetch.image_dir"),
		Delay:                  viper.GetDuration("fetch.delay"),
		MaxConsecutiveFailures: viper.GetInt("fetch.max_consecutive_failures"),
		Verify:                 !viper.GetBool("fetch.no_verify"),
		Limit:                  viper.GetInt("fetch.limit"),
	}

	key, err := secrets.APIKey(loadedSecrets)
	if err != nil {
		return err
	}
	cfg.APIKey = key
	if err := types.Validate(cfg); err != nil {
		return err
	}

	log := logging.Component("fetch")

	props, err := dataset.Read(cfg.DataPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", cfg.DataPath, err)
	}
	if cfg.Limit > 0 && len(props) > cfg.Limit {
		props = props[:cfg.Limit]
	}
	ext := dataset.Extent(props)
	log.Info().
		Str("data", cfg.DataPath).
		Int("properties", len(props)).
		Floats64("extent", []float64{ext.Min.Lon(), ext.Min.Lat(), ext.Max.Lon(), ext.Max.Lat()}).
		Msg("dataset loaded")

	store, err := ledger.Open(cfg.ImageDir)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run, err := store.BeginRun(ctx, cfg.ImageryConfig)
	if err != nil {
		return err
	}
	log.Info().
		Str("run_id", run.ID).
		Str("manifest", filepath.Join(store.Dir(), ledger.DBFile)).
		Msg("run started")

	client := &http.Client{
		Timeout: cfg.Timeout,
	}
	fetcher := fetch.New(client, cfg,
		fetch.WithOutput(cmd.OutOrStdout()),
		fetch.WithRecorder(store, run.ID),
		fetch.WithLogger(log),
	)

	result, runErr := fetcher.FetchBatch(ctx, props)

	run = result.Summary(run)
	run.FinishedAt = time.Now().UTC()
	if err := store.FinishRun(context.Background(), run); err != nil {
		log.Error().Err(err).Str("run_id", run.ID).Msg("recording run failed")
	}

	if runErr != nil {
		return runErr
	}
	if result.HasFailures() {
		return fmt.Errorf("%d of %d properties failed; rerun to retry them", result.Failed, result.Total)
	}
	return nil
}
