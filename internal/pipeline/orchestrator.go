// Package pipeline runs one batch of submitted images through raw upload,
// optional text detection, address extraction, archival and cleanup, and
// records a single summary per batch.
package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"ingest/internal/address"
	"ingest/internal/blob"
	"ingest/internal/imaging"
	"ingest/internal/logger"
	"ingest/internal/ocr"
	"ingest/internal/record"
	"ingest/pkg/models"
)

// DefaultMaxBatchSize is the item limit when Config.MaxBatchSize is unset.
const DefaultMaxBatchSize = 2

// Config holds the orchestrator's bucket names and limits.
type Config struct {
	RawBucket     string
	ArchiveBucket string
	MaxBatchSize  int
	Workers       int // Items processed concurrently; 1 means sequential
}

// Orchestrator processes batches. It is safe for concurrent use.
type Orchestrator struct {
	cfg        Config
	blobs      blob.Store
	detector   ocr.TextDetector
	extractor  *address.Extractor
	compressor imaging.Compressor
	records    record.Store
	metrics    *Metrics
	log        zerolog.Logger

	now   func() time.Time
	newID func() string
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithClock sets the time source used for batch names and timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator sets the source of batch identifiers.
func WithIDGenerator(newID func() string) Option {
	return func(o *Orchestrator) { o.newID = newID }
}

// WithMeter reports metrics through meter instead of the global provider.
func WithMeter(meter metric.Meter) Option {
	return func(o *Orchestrator) {
		if m, err := NewMetrics(meter); err == nil {
			o.metrics = m
		}
	}
}

// New creates an Orchestrator. detector may be nil, in which case OCR
// requests yield no address.
func New(cfg Config, blobs blob.Store, detector ocr.TextDetector, extractor *address.Extractor,
	compressor imaging.Compressor, records record.Store, opts ...Option) (*Orchestrator, error) {
	const op = "New"

	if blobs == nil || records == nil {
		return nil, &BatchError{Op: op, Err: errors.New("blob and record stores are required")}
	}
	if cfg.RawBucket == "" || cfg.ArchiveBucket == "" {
		return nil, &BatchError{Op: op, Err: errors.New("raw and archive buckets are required")}
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if extractor == nil {
		extractor = address.Default()
	}
	if compressor == nil {
		compressor = imaging.NewJPEGCompressor(imaging.DefaultQuality)
	}

	o := &Orchestrator{
		cfg:        cfg,
		blobs:      blobs,
		detector:   detector,
		extractor:  extractor,
		compressor: compressor,
		records:    records,
		log:        logger.WithComponent("pipeline"),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		m, err := NewMetrics(nil)
		if err != nil {
			return nil, &BatchError{Op: op, Err: err}
		}
		o.metrics = m
	}
	return o, nil
}

// Stats returns the orchestrator's counters.
func (o *Orchestrator) Stats() Stats {
	return o.metrics.Snapshot()
}

// MaxBatchSize returns the configured item limit.
func (o *Orchestrator) MaxBatchSize() int {
	return o.cfg.MaxBatchSize
}

// Process runs items as one batch and returns the stored summary. The
// summary holds exactly one address per item, in input order. Individual
// item failures produce the "null" address; only validation and record
// store failures abort the batch.
func (o *Orchestrator) Process(ctx context.Context, items []models.BatchItem) (*models.BatchSummary, error) {
	const op = "Process"

	if len(items) == 0 {
		return nil, &BatchError{Op: op, Err: ErrEmptyBatch}
	}
	if len(items) > o.cfg.MaxBatchSize {
		return nil, &BatchError{Op: op, Limit: o.cfg.MaxBatchSize, Err: ErrBatchTooLarge}
	}

	start := o.now()
	batchName := BatchName(o.newID(), start)
	log := o.log.With().Str("batch_name", batchName).Logger()
	o.metrics.batch()

	log.Info().Int("items", len(items)).Int("workers", o.cfg.Workers).Msg("Processing batch")

	addrs := o.processItems(ctx, batchName, items, log)

	// Raw copies are working files; they go whether or not the summary is stored.
	defer o.cleanup(ctx, batchName, log)

	summary := models.BatchSummary{
		BatchName: batchName,
		Addresses: address.Strings(addrs),
		CreatedAt: start.UTC(),
	}
	stored, err := o.records.Insert(ctx, summary)
	if err != nil {
		log.Error().Err(err).Msg("Failed to store batch summary")
		return nil, WrapBatchError(op, batchName, err)
	}

	log.Info().
		Str("id", stored.ID).
		Dur("duration", o.now().Sub(start)).
		Msg("Batch processed")
	return stored, nil
}

// processItems returns one address per item, indexed like items.
func (o *Orchestrator) processItems(ctx context.Context, batchName string, items []models.BatchItem, log zerolog.Logger) []address.Address {
	addrs := make([]address.Address, len(items))

	if o.cfg.Workers == 1 || len(items) == 1 {
		for i, item := range items {
			addrs[i] = o.processItem(ctx, batchName, i, item, log)
		}
		return addrs
	}

	var g errgroup.Group
	g.SetLimit(o.cfg.Workers)
	for i, item := range items {
		g.Go(func() error {
			// Store result in its input position
			addrs[i] = o.processItem(ctx, batchName, i, item, log)
			return nil
		})
	}
	_ = g.Wait()
	return addrs
}

func (o *Orchestrator) processItem(ctx context.Context, batchName string, index int, item models.BatchItem, log zerolog.Logger) address.Address {
	log = log.With().Int("item", index).Str("file", item.FileName).Logger()

	addr := o.extractItem(ctx, batchName, index, item, log)
	o.metrics.item(ctx, addr.IsFound())
	return addr
}

func (o *Orchestrator) extractItem(ctx context.Context, batchName string, index int, item models.BatchItem, log zerolog.Logger) address.Address {
	if !item.HasPayload() {
		o.swallow(ctx, log, StageMissingFields, nil, "Item is missing fileName or file")
		return address.None
	}

	data, err := base64.StdEncoding.DecodeString(item.File)
	if err != nil {
		o.swallow(ctx, log, StageDecode, err, "Item payload is not valid base64")
		return address.None
	}

	rawKey := RawPrefix(batchName) + item.FileName
	if err := o.blobs.Put(ctx, o.cfg.RawBucket, rawKey, data); err != nil {
		o.swallow(ctx, log, StageUpload, err, "Raw upload failed")
		return address.None
	}

	addr := address.None
	if item.OCR {
		addr = o.detectAddress(ctx, rawKey, log)
	}

	o.archive(ctx, batchName, item.FileName, data, log)
	return addr
}

func (o *Orchestrator) detectAddress(ctx context.Context, rawKey string, log zerolog.Logger) address.Address {
	if o.detector == nil {
		o.swallow(ctx, log, StageOCR, nil, "OCR requested but no text detector is configured")
		return address.None
	}

	blocks, err := o.detector.DetectText(ctx, o.cfg.RawBucket, rawKey)
	if err != nil {
		o.swallow(ctx, log, StageOCR, err, "Text detection failed")
		return address.None
	}

	addr, rule := o.extractor.ExtractWithRule(ocr.JoinLines(blocks))
	log.Debug().
		Int("blocks", len(blocks)).
		Str("rule", rule).
		Bool("found", addr.IsFound()).
		Msg("Address extraction finished")
	return addr
}

func (o *Orchestrator) archive(ctx context.Context, batchName, fileName string, data []byte, log zerolog.Logger) {
	compressed, err := o.compressor.Compress(data)
	if err != nil {
		o.swallow(ctx, log, StageArchive, err, "Compression failed")
		return
	}

	key := CompressedPrefix(batchName) + fileName
	if err := o.blobs.Put(ctx, o.cfg.ArchiveBucket, key, compressed); err != nil {
		o.swallow(ctx, log, StageArchive, err, "Archive upload failed")
		return
	}

	log.Debug().
		Int("original_bytes", len(data)).
		Int("compressed_bytes", len(compressed)).
		Msg("Archived compressed copy")
}

func (o *Orchestrator) cleanup(ctx context.Context, batchName string, log zerolog.Logger) {
	// Cleanup also runs after a canceled request.
	ctx = context.WithoutCancel(ctx)

	n, err := blob.DeletePrefix(ctx, o.blobs, o.cfg.RawBucket, RawPrefix(batchName))
	if err != nil {
		o.swallow(ctx, log, StageCleanup, err, "Raw cleanup incomplete")
	}
	log.Debug().Int("deleted", n).Msg("Raw copies removed")
}

func (o *Orchestrator) swallow(ctx context.Context, log zerolog.Logger, stage Stage, err error, msg string) {
	o.metrics.failure(ctx, stage)
	event := log.Warn().Str("stage", string(stage))
	if err != nil {
		event = event.Err(err)
	}
	event.Msg(msg)
}
