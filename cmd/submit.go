package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ingest/internal/client"
	"ingest/internal/config"
	"ingest/internal/logger"
	"ingest/pkg/models"
)

var submitCmd = &cobra.Command{
	Use:   "submit [image-or-folder...]",
	Short: "Send local images to a batch endpoint",
	Long: `Encode local images as base64 and POST them to a running batch endpoint in
batches of --batch-size. Folders are searched recursively for image files.

Each batch is sent once; a rejected batch is reported and the remaining
batches are still sent.`,
	Example: `  # Send two images with OCR enabled
  ingest submit background3.jpg ocrtext.png --url http://localhost:8080/

  # Send a folder without OCR
  ingest submit ./site-photos --no-ocr`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().String("url", "http://localhost:8080/", "Batch endpoint URL")
	submitCmd.Flags().Int("batch-size", config.DefaultBatchSize, "Images per request")
	submitCmd.Flags().Bool("no-ocr", false, "Skip text detection for submitted images")
	submitCmd.Flags().Int("timeout", 120, "Per-request timeout in seconds")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("submit")

	url, _ := cmd.Flags().GetString("url")
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	noOCR, _ := cmd.Flags().GetBool("no-ocr")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	paths, err := client.FindImages(args)
	if err != nil {
		return fmt.Errorf("failed to find images: %w", err)
	}
	if len(paths) == 0 {
		return fmt.Errorf("no image files found in %s", strings.Join(args, ", "))
	}

	items := make([]models.BatchItem, 0, len(paths))
	for _, p := range paths {
		item, err := client.LoadItem(p, !noOCR)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}
		items = append(items, item)
	}

	batches := client.Chunk(items, batchSize)
	log.Info().
		Str("url", url).
		Int("images", len(items)).
		Int("batches", len(batches)).
		Msg("Submitting images")

	ctx, cancel := createContextWithTimeout(time.Duration(timeoutSecs*len(batches))*time.Second, log)
	defer cancel()

	c := client.New(url, nil)
	out := cmd.OutOrStdout()
	failed := 0
	for i, batch := range batches {
		summary, err := c.Submit(ctx, batch)
		if err != nil {
			failed++
			fmt.Fprintf(out, "[%d/%d] failed: %v\n", i+1, len(batches), err)
			continue
		}

		fmt.Fprintf(out, "[%d/%d] %s (%s)\n", i+1, len(batches), summary.BatchName, summary.ID)
		for j, addr := range summary.Addresses {
			name := fmt.Sprintf("#%d", j+1)
			if j < len(batch) {
				name = batch[j].FileName
			}
			fmt.Fprintf(out, "  %s: %s\n", name, addr)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d batches failed", failed, len(batches))
	}
	return nil
}
