package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"ingest/internal/address"
	"ingest/internal/blob"
	"ingest/internal/ocr"
	"ingest/internal/record"
	"ingest/pkg/models"
)

var fixedNow = time.Date(2024, 7, 4, 9, 30, 15, 0, time.UTC)

// fakeDetector returns the text registered for a file name.
type fakeDetector struct {
	texts map[string]string
	errs  map[string]error
	delay map[string]time.Duration
	calls atomic.Int64
}

func (f *fakeDetector) DetectText(ctx context.Context, bucket, key string) ([]ocr.Block, error) {
	f.calls.Add(1)
	name := key[strings.LastIndex(key, "/")+1:]
	if d := f.delay[name]; d > 0 {
		time.Sleep(d)
	}
	if err := f.errs[name]; err != nil {
		return nil, err
	}
	text, ok := f.texts[name]
	if !ok {
		return nil, ocr.WrapOCRError("DetectText", ocr.ErrEmptyDocument, key)
	}
	return []ocr.Block{{Type: ocr.BlockPage, Text: text}, {Type: ocr.BlockLine, Text: text}}, nil
}

// countingRecords wraps a record store and counts inserts.
type countingRecords struct {
	record.Store
	inserts atomic.Int64
	err     error
}

func (c *countingRecords) Insert(ctx context.Context, s models.BatchSummary) (*models.BatchSummary, error) {
	c.inserts.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.Store.Insert(ctx, s)
}

// failingBlobs fails Put for the given bucket and Delete for every key.
type failingBlobs struct {
	*blob.MemoryStore
	putBucket   string
	failDeletes bool
	puts        atomic.Int64
}

func (f *failingBlobs) Put(ctx context.Context, bucket, key string, data []byte) error {
	f.puts.Add(1)
	if bucket == f.putBucket {
		return errors.New("bucket unavailable")
	}
	return f.MemoryStore.Put(ctx, bucket, key, data)
}

func (f *failingBlobs) Delete(ctx context.Context, bucket, key string) error {
	if f.failDeletes {
		return errors.New("delete denied")
	}
	return f.MemoryStore.Delete(ctx, bucket, key)
}

func pngBase64(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 10), G: uint8(y * 10), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func newTestOrchestrator(t *testing.T, cfg Config, blobs blob.Store, detector ocr.TextDetector, records record.Store) *Orchestrator {
	t.Helper()
	if cfg.RawBucket == "" {
		cfg.RawBucket = "raw"
	}
	if cfg.ArchiveBucket == "" {
		cfg.ArchiveBucket = "archive"
	}
	o, err := New(cfg, blobs, detector, address.Default(), nil, records,
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { return "0123456789abcdef" }),
	)
	require.NoError(t, err)
	return o
}

func TestBatchName(t *testing.T) {
	name := BatchName("0123456789abcdef", time.Date(2024, 7, 4, 9, 30, 15, 0, time.FixedZone("x", 2*3600)))
	assert.Equal(t, "Batch 01234567 - 07/04/24-07-30-15", name)
	assert.Equal(t, name+"/raw/", RawPrefix(name))
	assert.Equal(t, name+"/compressed/", CompressedPrefix(name))
}

func TestProcessExtractsAddresses(t *testing.T) {
	ctx := context.Background()
	blobs := blob.NewMemoryStore()
	records := record.NewMemoryStore()
	detector := &fakeDetector{texts: map[string]string{
		"a.png": "Site Address 123 Main St, Springfield, IL 62704 Coordinates 39.80,-89.64",
		"b.png": "Visit us at 456 Oak Ave, Metropolis, NY 10001 for details",
	}}
	o := newTestOrchestrator(t, Config{MaxBatchSize: 3}, blobs, detector, records)

	img := pngBase64(t, 8, 6)
	summary, err := o.Process(ctx, []models.BatchItem{
		{FileName: "a.png", File: img, OCR: true},
		{FileName: "b.png", File: img, OCR: true},
		{FileName: "c.png", File: img, OCR: false},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, summary.ID)
	assert.Equal(t, "Batch 01234567 - 07/04/24-09-30-15", summary.BatchName)
	assert.Equal(t, []string{
		"123 Main St, Springfield, IL 62704",
		"456 Oak Ave, Metropolis, NY 10001",
		address.Sentinel,
	}, summary.Addresses)
	assert.Equal(t, fixedNow, summary.CreatedAt)
	assert.EqualValues(t, 2, detector.calls.Load())

	// Raw copies are removed, compressed copies remain.
	raw, err := blobs.List(ctx, "raw", "")
	require.NoError(t, err)
	assert.Empty(t, raw)

	archived, err := blobs.List(ctx, "archive", CompressedPrefix(summary.BatchName))
	require.NoError(t, err)
	assert.Len(t, archived, 3)

	stats := o.Stats()
	assert.EqualValues(t, 1, stats.Batches)
	assert.EqualValues(t, 3, stats.Items)
	assert.EqualValues(t, 2, stats.AddressesHit)
	assert.Equal(t, 1, records.Len())
}

func TestProcessEmptyDetectionAndMissingFile(t *testing.T) {
	ctx := context.Background()
	blobs := &failingBlobs{MemoryStore: blob.NewMemoryStore()}
	records := &countingRecords{Store: record.NewMemoryStore()}
	detector := &fakeDetector{}
	o := newTestOrchestrator(t, Config{MaxBatchSize: 2}, blobs, detector, records)

	summary, err := o.Process(ctx, []models.BatchItem{
		{FileName: "scan.png", File: pngBase64(t, 4, 4), OCR: true},
		{FileName: "empty.png", OCR: true},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{address.Sentinel, address.Sentinel}, summary.Addresses)
	assert.EqualValues(t, 1, detector.calls.Load())
	assert.EqualValues(t, 1, records.inserts.Load())
	// One raw upload and one archive upload for the valid item only.
	assert.EqualValues(t, 2, blobs.puts.Load())

	stats := o.Stats()
	assert.EqualValues(t, 1, stats.OCR)
	assert.EqualValues(t, 1, stats.MissingFields)
}

func TestProcessRejectsBatchBeforeSideEffects(t *testing.T) {
	tests := []struct {
		name    string
		items   []models.BatchItem
		wantErr error
	}{
		{name: "empty", items: nil, wantErr: ErrEmptyBatch},
		{name: "too large", items: make([]models.BatchItem, 3), wantErr: ErrBatchTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blobs := &failingBlobs{MemoryStore: blob.NewMemoryStore()}
			records := &countingRecords{Store: record.NewMemoryStore()}
			o := newTestOrchestrator(t, Config{MaxBatchSize: 2}, blobs, nil, records)

			_, err := o.Process(context.Background(), tt.items)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, blobs.puts.Load())
			assert.Zero(t, records.inserts.Load())
			assert.Zero(t, o.Stats().Batches)
		})
	}
}

func TestProcessBatchTooLargeCarriesLimit(t *testing.T) {
	o := newTestOrchestrator(t, Config{MaxBatchSize: 2}, blob.NewMemoryStore(), nil, record.NewMemoryStore())

	_, err := o.Process(context.Background(), make([]models.BatchItem, 5))

	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, 2, batchErr.Limit)
	assert.Contains(t, batchErr.Error(), "max 2")
}

func TestProcessItemFailuresAreIsolated(t *testing.T) {
	ctx := context.Background()
	blobs := &failingBlobs{MemoryStore: blob.NewMemoryStore(), putBucket: "archive"}
	detector := &fakeDetector{
		texts: map[string]string{"ok.png": "1 Infinite Loop, Cupertino, CA 95014"},
		errs:  map[string]error{"broken.png": ocr.WrapOCRError("DetectText", ocr.ErrOCRFailed, "quota")},
	}
	o := newTestOrchestrator(t, Config{MaxBatchSize: 4}, blobs, detector, record.NewMemoryStore())

	summary, err := o.Process(ctx, []models.BatchItem{
		{FileName: "bad.png", File: "not base64!", OCR: true},
		{FileName: "ok.png", File: pngBase64(t, 4, 4), OCR: true},
		{FileName: "broken.png", File: pngBase64(t, 4, 4), OCR: true},
		{FileName: "tiny.png", File: base64.StdEncoding.EncodeToString([]byte("not an image")), OCR: false},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{address.Sentinel, "1 Infinite Loop, Cupertino, CA 95014", address.Sentinel, address.Sentinel}, summary.Addresses)

	stats := o.Stats()
	assert.EqualValues(t, 1, stats.Decode)
	assert.EqualValues(t, 1, stats.OCR)
	// Two archive uploads failed and one compression failed.
	assert.EqualValues(t, 3, stats.Archive)
}

func TestProcessRawUploadFailure(t *testing.T) {
	blobs := &failingBlobs{MemoryStore: blob.NewMemoryStore(), putBucket: "raw"}
	detector := &fakeDetector{texts: map[string]string{"a.png": "1 Infinite Loop, Cupertino, CA 95014"}}
	o := newTestOrchestrator(t, Config{}, blobs, detector, record.NewMemoryStore())

	summary, err := o.Process(context.Background(), []models.BatchItem{
		{FileName: "a.png", File: pngBase64(t, 4, 4), OCR: true},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{address.Sentinel}, summary.Addresses)

	// No detection and no archive copy after the raw upload fails.
	assert.Zero(t, detector.calls.Load())
	assert.EqualValues(t, 1, blobs.puts.Load())

	stats := o.Stats()
	assert.EqualValues(t, 1, stats.Upload)
	assert.Zero(t, stats.Archive)
}

func TestProcessOCRWithoutDetector(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, blob.NewMemoryStore(), nil, record.NewMemoryStore())

	summary, err := o.Process(context.Background(), []models.BatchItem{
		{FileName: "a.png", File: pngBase64(t, 2, 2), OCR: true},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{address.Sentinel}, summary.Addresses)
	assert.EqualValues(t, 1, o.Stats().OCR)
}

func TestProcessInsertFailureStillCleansUp(t *testing.T) {
	ctx := context.Background()
	blobs := blob.NewMemoryStore()
	records := &countingRecords{Store: record.NewMemoryStore(), err: fmt.Errorf("%w: mongo: timeout", record.ErrInsertFailed)}
	o := newTestOrchestrator(t, Config{}, blobs, nil, records)

	_, err := o.Process(ctx, []models.BatchItem{{FileName: "a.png", File: pngBase64(t, 2, 2)}})
	require.ErrorIs(t, err, record.ErrInsertFailed)

	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, "Batch 01234567 - 07/04/24-09-30-15", batchErr.BatchName)

	raw, err := blobs.List(ctx, "raw", "")
	require.NoError(t, err)
	assert.Empty(t, raw)
}

func TestProcessCleanupFailureIsCounted(t *testing.T) {
	blobs := &failingBlobs{MemoryStore: blob.NewMemoryStore(), failDeletes: true}
	o := newTestOrchestrator(t, Config{}, blobs, nil, record.NewMemoryStore())

	summary, err := o.Process(context.Background(), []models.BatchItem{{FileName: "a.png", File: pngBase64(t, 2, 2)}})
	require.NoError(t, err)
	assert.Equal(t, []string{address.Sentinel}, summary.Addresses)
	assert.EqualValues(t, 1, o.Stats().Cleanup)
}

func TestProcessWorkersPreserveInputOrder(t *testing.T) {
	const n = 8
	detector := &fakeDetector{texts: map[string]string{}, delay: map[string]time.Duration{}}
	items := make([]models.BatchItem, n)
	want := make([]string, n)
	img := pngBase64(t, 2, 2)
	for i := range items {
		name := fmt.Sprintf("img%d.png", i)
		detector.texts[name] = fmt.Sprintf("Address %d Elm St, Town %d, TX 7500%d Coordinates", i+1, i, i)
		// Earlier items finish later.
		detector.delay[name] = time.Duration(n-i) * 5 * time.Millisecond
		items[i] = models.BatchItem{FileName: name, File: img, OCR: true}
		want[i] = fmt.Sprintf("%d Elm St, Town %d, TX 7500%d", i+1, i, i)
	}

	o := newTestOrchestrator(t, Config{MaxBatchSize: n, Workers: 4}, blob.NewMemoryStore(), detector, record.NewMemoryStore())
	summary, err := o.Process(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, want, summary.Addresses)
}

func TestNewValidatesCollaborators(t *testing.T) {
	_, err := New(Config{RawBucket: "raw", ArchiveBucket: "archive"}, nil, nil, nil, nil, record.NewMemoryStore())
	assert.Error(t, err)

	_, err = New(Config{RawBucket: "raw"}, blob.NewMemoryStore(), nil, nil, nil, record.NewMemoryStore())
	assert.Error(t, err)

	o, err := New(Config{RawBucket: "raw", ArchiveBucket: "archive"}, blob.NewMemoryStore(), nil, nil, nil, record.NewMemoryStore())
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxBatchSize, o.MaxBatchSize())
}

func TestWrapBatchErrorDoesNotDoubleWrap(t *testing.T) {
	inner := WrapBatchError("Process", "b", record.ErrInsertFailed)
	assert.Same(t, inner, WrapBatchError("Outer", "b", inner))
	assert.Nil(t, WrapBatchError("Process", "b", nil))
}

func TestWithMeter(t *testing.T) {
	o, err := New(Config{RawBucket: "raw", ArchiveBucket: "archive"}, blob.NewMemoryStore(), nil, nil, nil,
		record.NewMemoryStore(), WithMeter(noop.NewMeterProvider().Meter("test")))
	require.NoError(t, err)

	_, err = o.Process(context.Background(), []models.BatchItem{{FileName: "a.png"}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, o.Stats().MissingFields)
}
