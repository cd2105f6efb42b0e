package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/satfetch/internal/dataset"
	"github.com/pdiddy/satfetch/internal/ledger"
	"github.com/pdiddy/satfetch/internal/report"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize the fetch manifest",
	Long: `Status reads the manifest recorded by fetch and prints image counts by
status, the number of blank images, and the most recent run. With
--failures it also lists the properties whose last attempt failed. With
--id it prints the manifest entry of a single property instead.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().String("image-dir", "", "image directory holding manifest.db (default from fetch.image_dir)")
	statusCmd.Flags().Int("failures", 0, "list up to N failed properties")
	statusCmd.Flags().String("id", "", "print the manifest entry for one property")

	rootCmd.AddCommand(statusCmd)
}

// imageDir returns --image-dir when given, else the configured fetch directory.
func imageDir(cmd *cobra.Command) string {
	if dir, _ := cmd.Flags().GetString("image-dir"); dir != "" {
		return dir
	}
	if dir := viper.GetString("fetch.image_dir"); dir != "" {
		return dir
	}
	return defaultImageDir
}

// openLedger opens the manifest in dir without creating one.
func openLedger(dir string) (*ledger.Store, error) {
	if _, err := os.Stat(filepath.Join(dir, ledger.DBFile)); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no manifest in %s; run satfetch fetch first", dir)
		}
		return nil, err
	}
	return ledger.Open(dir)
}

func runStatus(cmd *cobra.Command, args []string) error {
	store, err := openLedger(imageDir(cmd))
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	if id, _ := cmd.Flags().GetString("id"); id != "" {
		rec, err := store.Get(cmd.Context(), dataset.NormalizeID(id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("property %s is not in the manifest", id)
		}
		if err != nil {
			return err
		}
		report.Record(out, rec)
		return nil
	}

	sum, err := store.Summary(cmd.Context())
	if err != nil {
		return err
	}
	report.Status(out, sum)

	if n, _ := cmd.Flags().GetInt("failures"); n > 0 {
		recs, err := store.Failures(cmd.Context(), n)
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		report.Failures(out, recs)
	}
	return nil
}
