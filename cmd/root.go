package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ingest/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Batch image ingestion with address extraction",
	Long: `ingest accepts small batches of base64 encoded images, stores the originals,
optionally runs text detection, extracts a postal address from the detected
text, archives a compressed copy and records one summary per batch.

Run "ingest serve" to start the HTTP endpoint, or use the other commands to
test address rules, inspect OCR output and export stored batches.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Info().
			Str("version", version).
			Msg("ingest CLI executed")

		_ = cmd.Help()
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}
