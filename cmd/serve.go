package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ingest/internal/config"
	"ingest/internal/logger"
	"ingest/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP batch endpoint",
	Long: `Start an HTTP server that accepts POST requests with a JSON body of the form
{"batch": [{"fileName": "...", "file": "<base64>", "ocr": true}]}.

Each batch is stored, optionally run through text detection, archived and
recorded. The response is the stored batch summary.

Required environment variables:
  RAW_BUCKET - Bucket for original uploads
  ARCHIVE_BUCKET - Bucket for compressed copies
  MONGODB_URI - MongoDB connection string (RECORD_BACKEND=mongo)

Optional environment variables:
  BLOB_BACKEND - gcs or memory (default: gcs)
  OCR_PROVIDER - vision, documentai or none (default: vision)
  RECORD_BACKEND - mongo, postgres, sqlite, sheets or memory (default: mongo)
  BATCH_SIZE - Maximum items per batch (default: 2)
  BATCH_WORKERS - Items processed concurrently (default: 1)
  ADDRESS_RULES_FILE - YAML file with address rules`,
	Example: `  # Serve on the configured address
  ingest serve

  # Local run without cloud services
  BLOB_BACKEND=memory OCR_PROVIDER=none RECORD_BACKEND=sqlite ingest serve --addr :9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (default: HTTP_ADDR or :8080)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTPAddr = addr
	}

	ctx, cancel := createContextWithTimeout(0, log)
	defer cancel()

	svc, err := buildServices(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		svc.Close(closeCtx, log)
	}()

	orchestrator, err := createOrchestrator(cfg, svc)
	if err != nil {
		return err
	}

	srv, err := server.New(orchestrator, server.Options{
		MaxBodyBytes:   cfg.MaxBodyBytes,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("addr", cfg.HTTPAddr).
		Str("raw_bucket", cfg.RawBucket).
		Str("archive_bucket", cfg.ArchiveBucket).
		Int("batch_size", cfg.BatchSize).
		Int("workers", cfg.BatchWorkers).
		Msg("Starting batch endpoint")

	if err := srv.ListenAndServe(ctx, cfg.HTTPAddr); err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	stats := orchestrator.Stats()
	log.Info().
		Int64("batches", stats.Batches).
		Int64("items", stats.Items).
		Int64("addresses_found", stats.AddressesHit).
		Msg("Batch endpoint stopped")
	return nil
}
