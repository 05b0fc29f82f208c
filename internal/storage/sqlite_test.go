package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rec := &Record{
		ID:          "doc-1",
		RequestID:   "req-1",
		PatientName: "Jeanne Martin",
		Diagnosis:   "Bronchite aiguë",
		HasConflict: true,
		CreatedAt:   time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		Document:    json.RawMessage(`{"id":"doc-1"}`),
		Report:      json.RawMessage(`{"version":"v1"}`),
	}
	require.NoError(t, store.SaveDocument(ctx, rec))

	got, err := store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Jeanne Martin", got.PatientName)
	assert.True(t, got.HasConflict)
	assert.False(t, got.UsedFallback)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
	assert.JSONEq(t, `{"id":"doc-1"}`, string(got.Document))

	// Upsert replaces the previous row.
	rec.UsedFallback = true
	require.NoError(t, store.SaveDocument(ctx, rec))
	got, err = store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.True(t, got.UsedFallback)
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	store := openTestStore(t)
	_, err := store.GetDocument(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ListNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.SaveDocument(ctx, &Record{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Minute)}))
	}

	list, err := store.ListDocuments(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
	assert.Nil(t, list[0].Document)
}

func TestSQLiteStore_RejectsEmptyID(t *testing.T) {
	store := openTestStore(t)
	require.Error(t, store.SaveDocument(context.Background(), &Record{}))
}
