package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/satfetch/internal/inspect"
	"github.com/pdiddy/satfetch/internal/logging"
	"github.com/pdiddy/satfetch/internal/report"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Re-inspect downloaded images",
	Long: `Verify decodes every .png in the image directory and reports files that
are corrupt or blank (uniform "no imagery" tiles). With --remove-corrupt the
corrupt files are deleted so the next fetch downloads them again.

Exits non-zero when corrupt files remain.`,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().String("image-dir", "", "image directory (default from fetch.image_dir)")
	verifyCmd.Flags().Bool("remove-corrupt", false, "delete images that fail to decode")

	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	dir := imageDir(cmd)
	log := logging.Component("verify")

	reports, err := inspect.ScanDir(dir)
	if err != nil {
		return err
	}
	counts := report.Verify(cmd.OutOrStdout(), reports)

	if counts.Corrupt == 0 {
		return nil
	}
	if remove, _ := cmd.Flags().GetBool("remove-corrupt"); !remove {
		return fmt.Errorf("%d corrupt image(s) in %s", counts.Corrupt, dir)
	}
	for _, r := range reports {
		if r.Err == nil {
			continue
		}
		if err := os.Remove(r.Path); err != nil {
			return fmt.Errorf("removing %s: %w", r.Path, err)
		}
		log.Info().Str("path", r.Path).Msg("removed corrupt image")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d corrupt image(s); run fetch to download them again.\n", counts.Corrupt)
	return nil
}
