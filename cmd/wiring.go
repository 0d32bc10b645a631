package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"ingest/internal/address"
	"ingest/internal/blob"
	"ingest/internal/config"
	"ingest/internal/imaging"
	"ingest/internal/ocr"
	"ingest/internal/pipeline"
	"ingest/internal/record"
)

// services holds the collaborators built from configuration.
type services struct {
	blobs    blob.Store
	detector ocr.TextDetector
	records  record.Store
	closers  []func(context.Context) error
}

func (s *services) Close(ctx context.Context, log zerolog.Logger) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to close client")
		}
	}
}

// buildServices creates the blob store, text detector and record store
// selected by cfg. On error everything created so far is closed.
func buildServices(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*services, error) {
	s := &services{}
	ok := false
	defer func() {
		if !ok {
			s.Close(context.Background(), log)
		}
	}()

	blobs, closeBlobs, err := createBlobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.blobs = blobs
	s.closers = append(s.closers, closeBlobs)

	detector, closeDetector, err := createTextDetector(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.detector = detector
	s.closers = append(s.closers, closeDetector)

	records, err := createRecordStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.records = records
	s.closers = append(s.closers, records.Close)

	log.Debug().
		Str("blob_backend", cfg.BlobBackend).
		Str("ocr_provider", cfg.OCRProvider).
		Str("record_backend", cfg.RecordBackend).
		Msg("Services created")
	ok = true
	return s, nil
}

func createBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, func(context.Context) error, error) {
	switch cfg.BlobBackend {
	case config.BlobMemory:
		return blob.NewMemoryStore(), noopClose, nil
	default:
		gcs, err := blob.NewGCSStore(ctx, ocr.ClientOptions()...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create GCS client: %w", err)
		}
		gcs.SetStorageClass(cfg.ArchiveBucket, cfg.ArchiveStorageClass)
		return gcs, func(context.Context) error { return gcs.Close() }, nil
	}
}

func createTextDetector(ctx context.Context, cfg *config.Config) (ocr.TextDetector, func(context.Context) error, error) {
	switch cfg.OCRProvider {
	case config.OCRNone:
		return nil, noopClose, nil
	case config.OCRDocumentAI:
		d, err := ocr.NewDocumentAIDetector(ctx, ocr.DocumentAIConfig{
			ProjectID:   cfg.GoogleCloudProject,
			Location:    cfg.GoogleCloudLocation,
			ProcessorID: cfg.DocumentAIProcessorID,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Document AI detector: %w", err)
		}
		return d, func(context.Context) error { return d.Close() }, nil
	default:
		v, err := ocr.NewVisionDetector(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Vision detector: %w", err)
		}
		return v, func(context.Context) error { return v.Close() }, nil
	}
}

func createRecordStore(ctx context.Context, cfg *config.Config) (record.Store, error) {
	switch cfg.RecordBackend {
	case config.RecordPostgres:
		return record.OpenPostgres(ctx, cfg.DatabaseURL)
	case config.RecordSQLite:
		return record.OpenSQLite(ctx, cfg.SQLitePath)
	case config.RecordSheets:
		return record.OpenSheets(ctx, cfg.GoogleSheetURL, cfg.GoogleSheetWorksheet)
	case config.RecordMemory:
		return record.NewMemoryStore(), nil
	default:
		return record.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
	}
}

// createExtractor builds the extractor from a rules file, or the built-in
// rules when path is empty.
func createExtractor(path string) (*address.Extractor, error) {
	if path == "" {
		return address.Default(), nil
	}
	rules, err := address.LoadRules(path)
	if err != nil {
		return nil, err
	}
	return rules.Build()
}

func createOrchestrator(cfg *config.Config, svc *services) (*pipeline.Orchestrator, error) {
	extractor, err := createExtractor(cfg.AddressRulesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load address rules: %w", err)
	}
	return pipeline.New(pipeline.Config{
		RawBucket:     cfg.RawBucket,
		ArchiveBucket: cfg.ArchiveBucket,
		MaxBatchSize:  cfg.BatchSize,
		Workers:       cfg.BatchWorkers,
	}, svc.blobs, svc.detector, extractor, imaging.NewJPEGCompressor(cfg.JPEGQuality), svc.records)
}

// createContextWithTimeout creates a context canceled by timeout or by
// SIGINT/SIGTERM. A zero timeout means no deadline.
func createContextWithTimeout(timeout time.Duration, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	log.Debug().Dur("timeout", timeout).Msg("Context created")
	return tctx, func() {
		cancel()
		stop()
	}
}

func noopClose(context.Context) error { return nil }
