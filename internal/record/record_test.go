package record

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingest/pkg/models"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "batches.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close(context.Background()) })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStoreInsertAndList(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first, err := store.Insert(ctx, models.BatchSummary{
				BatchName: "Batch aaaaaaaa - 03/01/24-12-00-00",
				Addresses: []string{"1 Main St, Springfield, IL 62701", "null"},
				CreatedAt: base,
			})
			require.NoError(t, err)
			assert.NotEmpty(t, first.ID)
			assert.Equal(t, []string{"1 Main St, Springfield, IL 62701", "null"}, first.Addresses)
			assert.True(t, base.Equal(first.CreatedAt))

			second, err := store.Insert(ctx, models.BatchSummary{
				BatchName: "Batch bbbbbbbb - 03/01/24-12-05-00",
				CreatedAt: base.Add(5 * time.Minute),
			})
			require.NoError(t, err)
			assert.NotEqual(t, first.ID, second.ID)
			assert.Equal(t, []string{}, second.Addresses)

			listed, err := store.List(ctx, 0)
			require.NoError(t, err)
			require.Len(t, listed, 2)
			assert.Equal(t, second.BatchName, listed[0].BatchName)
			assert.Equal(t, first.BatchName, listed[1].BatchName)
			assert.Equal(t, first.Addresses, listed[1].Addresses)

			limited, err := store.List(ctx, 1)
			require.NoError(t, err)
			require.Len(t, limited, 1)
			assert.Equal(t, second.ID, limited[0].ID)
		})
	}
}

func TestStoreRejectsMissingBatchName(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Insert(context.Background(), models.BatchSummary{Addresses: []string{"null"}})
			assert.ErrorIs(t, err, ErrInvalidSummary)
		})
	}
}

func TestSQLiteDuplicateBatchName(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "dup.db"))
	require.NoError(t, err)
	defer store.Close(ctx)

	summary := models.BatchSummary{BatchName: "Batch 12345678 - 01/01/24-00-00-00"}
	_, err = store.Insert(ctx, summary)
	require.NoError(t, err)

	_, err = store.Insert(ctx, summary)
	assert.ErrorIs(t, err, ErrInsertFailed)
}

func TestMemoryStoreCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewMemoryStore()
	_, err := store.Insert(ctx, models.BatchSummary{BatchName: "b"})
	assert.ErrorIs(t, err, ErrInsertFailed)
	assert.Zero(t, store.Len())
}

func TestSheetRowRoundTrip(t *testing.T) {
	created := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	rec := models.BatchSummary{
		ID:        "6f1c",
		BatchName: "Batch 6f1c0000 - 05/06/24-07-08-09",
		Addresses: []string{"null", "12 Elm St, Austin, TX 73301"},
		CreatedAt: created,
	}

	row, err := summaryToRow(rec)
	require.NoError(t, err)
	assert.Equal(t, `["null","12 Elm St, Austin, TX 73301"]`, row[3])

	got, err := rowToSummary(row)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = rowToSummary([]interface{}{"id", "name"})
	assert.Error(t, err)
}

func TestExtractSpreadsheetID(t *testing.T) {
	id, err := extractSpreadsheetID("https://docs.google.com/spreadsheets/d/1AbC-d_9/edit#gid=0")
	require.NoError(t, err)
	assert.Equal(t, "1AbC-d_9", id)

	_, err = extractSpreadsheetID("https://example.com/sheet")
	assert.Error(t, err)
}
