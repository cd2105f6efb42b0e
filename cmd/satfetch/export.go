package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/satfetch/internal/ledger"
	"github.com/pdiddy/satfetch/pkg/types"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the fetch manifest as YAML or JSON",
	Long: `Export writes manifest.yaml (or manifest.json with --json) beside the
images. The manifest lists every property with its status, image
dimensions, blank flag, ground footprint and the redacted request URL, and
is what the feature extraction notebooks join against. Each run is listed
with the imagery settings it requested; the header repeats the settings of
the most recent run.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().String("image-dir", "", "image directory holding manifest.db (default from fetch.image_dir)")
	exportCmd.Flags().Bool("json", false, "write manifest.json instead of manifest.yaml")
	exportCmd.Flags().String("status", "", "only export entries with this status: downloaded, skipped, failed")
	exportCmd.Flags().Bool("blank-only", false, "only export images flagged blank")

	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	store, err := openLedger(imageDir(cmd))
	if err != nil {
		return err
	}
	defer store.Close()

	status, _ := cmd.Flags().GetString("status")
	switch types.FetchStatus(status) {
	case "", types.StatusDownloaded, types.StatusSkipped, types.StatusFailed:
	default:
		return fmt.Errorf("unknown status %q (want downloaded, skipped or failed)", status)
	}
	blankOnly, _ := cmd.Flags().GetBool("blank-only")
	q := ledger.Query{Status: types.FetchStatus(status), BlankOnly: blankOnly}

	asJSON, _ := cmd.Flags().GetBool("json")
	export := store.ExportYAML
	if asJSON {
		export = store.ExportJSON
	}
	path, err := export(cmd.Context(), q)
	if err != nil {
		return fmt.Errorf("exporting manifest: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
