package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "phasewatch",
		Short: "Circular z-score anomaly detection for angular sensor channels",
		Long: `phasewatch scores angle readings against the circular mean and
standard deviation of each channel's trailing window.

Commands:
  serve           HTTP ingestion and on-demand scoring
  batch           Load history, score it and write scores back
  encrypt-config  Encrypt a YAML config with the key in CONFIG_KEY
  keygen          Print a new config encryption key`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (.yaml, or .enc decrypted with CONFIG_KEY)")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newBatchCommand())
	rootCmd.AddCommand(newEncryptCommand())
	rootCmd.AddCommand(newKeygenCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
