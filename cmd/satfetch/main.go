// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the satfetch CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/satfetch/internal/logging"
	"github.com/pdiddy/satfetch/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds keys read from .secrets/ at startup.
var loadedSecrets map[string]string

// rootCmd is the base command for the satfetch CLI.
var rootCmd = &cobra.Command{
	Use:   "satfetch",
	Short: "Fetch satellite imagery for property price prediction",
	Long: `satfetch builds the image half of a multimodal property price dataset.
For every property in a tabular dataset (id, lat, long) it downloads one
static satellite image centred on the property and stores it as {id}.png.

Existing images are never fetched again, so an interrupted run can simply
be restarted. Every outcome is recorded in a manifest next to the images.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(logging.Config{
			Level:  viper.GetString("log.level"),
			Format: viper.GetString("log.format"),
			Output: os.Stderr,
		})
		log := logging.Component("cli")

		envFiles, err := secrets.LoadEnv(secrets.DefaultEnvFile)
		if err != nil {
			return err
		}
		for _, f := range envFiles {
			log.Debug().Str("file", f).Msg("loaded environment file")
		}

		s, err := secrets.Load(secrets.DefaultDir, log)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			log.Debug().Strs("keys", keys).Msg("loaded secrets")
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./satfetch.yaml or ~/.config/satfetch/satfetch.yaml)")
	pf.String("log-level", "info", "log level: trace, debug, info, warn, error")
	pf.String("log-format", "console", "log format: console or json")

	viper.BindPFlag("log.level", pf.Lookup("log-level"))
	viper.BindPFlag("log.format", pf.Lookup("log-format"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("satfetch")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "satfetch"))
		}
	}

	viper.SetEnvPrefix("SATFETCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
