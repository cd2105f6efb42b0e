package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/satfetch/internal/logging"
	"github.com/pdiddy/satfetch/internal/prepare"
	"github.com/pdiddy/satfetch/internal/report"
	"github.com/pdiddy/satfetch/pkg/types"
)

var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Clean the raw dataset before feature engineering",
	Long: `Prepare reads the raw dataset (CSV or XLSX), drops rows with an empty or
duplicate id, unusable coordinates, or a non-positive price, and writes a
CSV with the original columns plus log_price.`,
	RunE: runPrepare,
}

func init() {
	f := prepareCmd.Flags()
	f.String("in", defaultDataPath, "raw dataset (.csv or .xlsx)")
	f.String("out", "data/processed/train_clean.csv", "cleaned CSV output")
	f.String("price-column", prepare.DefaultPriceColumn, "target column to log-transform")

	viper.BindPFlag("prepare.in", f.Lookup("in"))
	viper.BindPFlag("prepare.out", f.Lookup("out"))
	viper.BindPFlag("prepare.price_column", f.Lookup("price-column"))

	rootCmd.AddCommand(prepareCmd)
}

func runPrepare(cmd *cobra.Command, args []string) error {
	cfg := types.PrepareConfig{
		InputPath:  viper.GetString("prepare.in"),
		OutputPath: viper.GetString("prepare.out"),
	}
	if err := types.Validate(cfg); err != nil {
		return err
	}

	rep, err := prepare.Clean(cfg.InputPath, cfg.OutputPath, prepare.Options{
		PriceColumn: viper.GetString("prepare.price_column"),
		Logger:      logging.Component("prepare"),
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	report.Prepare(out, rep)
	fmt.Fprintf(out, "\nWrote %d rows to %s\n", rep.Kept, cfg.OutputPath)
	return nil
}
