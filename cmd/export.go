package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"ingest/internal/config"
	"ingest/internal/export"
	"ingest/internal/logger"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored batch summaries to an XLSX workbook",
	Long: `Read the most recent batch summaries from the configured record store and
write them to an XLSX workbook with one row per submitted image.`,
	Example: `  # Export the latest 100 batches
  ingest export -o batches.xlsx

  # Export from a local SQLite store
  RECORD_BACKEND=sqlite SQLITE_PATH=batches.db ingest export -o batches.xlsx --limit 500`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringP("output", "o", "batches.xlsx", "Output file path")
	exportCmd.Flags().Int("limit", 100, "Maximum number of batches to export")
	exportCmd.Flags().Int("timeout", 60, "Timeout in seconds")
}

func runExport(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("export")

	outputPath, _ := cmd.Flags().GetString("output")
	limit, _ := cmd.Flags().GetInt("limit")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(time.Duration(timeoutSecs)*time.Second, log)
	defer cancel()

	records, err := createRecordStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	defer records.Close(context.Background())

	data, n, err := export.BatchesXLSX(ctx, records, limit)
	if err != nil {
		return err
	}

	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		log.Error().
			Err(err).
			Str("output_file", outputPath).
			Msg("Failed to write output file")
		return fmt.Errorf("failed to write output file: %w", err)
	}

	log.Info().
		Str("output_file", outputPath).
		Int("batches", n).
		Int("bytes", len(data)).
		Msg("Export written to file")
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d batches to %s\n", n, outputPath)
	return nil
}
