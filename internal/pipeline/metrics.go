package pipeline

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Stage names a point in item processing where a failure can be swallowed.
type Stage string

const (
	StageMissingFields Stage = "missing_fields"
	StageDecode        Stage = "decode"
	StageUpload        Stage = "upload"
	StageOCR           Stage = "ocr"
	StageArchive       Stage = "archive"
	StageCleanup       Stage = "cleanup"
)

const meterName = "ingest/internal/pipeline"

// Stats is a point-in-time copy of the orchestrator's counters.
type Stats struct {
	Batches       int64
	Items         int64
	AddressesHit  int64
	MissingFields int64
	Decode        int64
	Upload        int64
	OCR           int64
	Archive       int64
	Cleanup       int64
}

// Metrics counts processed items and swallowed failures. Counts are kept
// in process and also reported through the OpenTelemetry meter.
type Metrics struct {
	batches  atomic.Int64
	items    atomic.Int64
	hits     atomic.Int64
	failures map[Stage]*atomic.Int64

	itemCounter    metric.Int64Counter
	failureCounter metric.Int64Counter
}

// NewMetrics registers counters on meter. A nil meter uses the global
// provider, which is a no-op until one is installed.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	itemCounter, err := meter.Int64Counter("ingest.items",
		metric.WithDescription("Batch items processed"))
	if err != nil {
		return nil, err
	}
	failureCounter, err := meter.Int64Counter("ingest.item_failures",
		metric.WithDescription("Swallowed item failures by stage"))
	if err != nil {
		return nil, err
	}

	m := &Metrics{
		failures:       make(map[Stage]*atomic.Int64),
		itemCounter:    itemCounter,
		failureCounter: failureCounter,
	}
	for _, s := range []Stage{StageMissingFields, StageDecode, StageUpload, StageOCR, StageArchive, StageCleanup} {
		m.failures[s] = new(atomic.Int64)
	}
	return m, nil
}

func (m *Metrics) batch() {
	m.batches.Add(1)
}

func (m *Metrics) item(ctx context.Context, found bool) {
	m.items.Add(1)
	if found {
		m.hits.Add(1)
	}
	m.itemCounter.Add(ctx, 1, metric.WithAttributes(attribute.Bool("address_found", found)))
}

func (m *Metrics) failure(ctx context.Context, stage Stage) {
	m.failures[stage].Add(1)
	m.failureCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", string(stage))))
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Stats {
	return Stats{
		Batches:       m.batches.Load(),
		Items:         m.items.Load(),
		AddressesHit:  m.hits.Load(),
		MissingFields: m.failures[StageMissingFields].Load(),
		Decode:        m.failures[StageDecode].Load(),
		Upload:        m.failures[StageUpload].Load(),
		OCR:           m.failures[StageOCR].Load(),
		Archive:       m.failures[StageArchive].Load(),
		Cleanup:       m.failures[StageCleanup].Load(),
	}
}
