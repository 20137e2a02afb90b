package database

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	db, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, path, db.Path())
	assert.NoError(t, db.IsHealthy())

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
	require.NoError(t, db.Close())

	// Reopening runs migrations against an existing schema.
	db, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestDocumentStore_RecordAndGet(t *testing.T) {
	db := setupTestDB(t)

	doc := &Document{
		Path:           "/labels/a.pdf",
		Filename:       "a.pdf",
		ContentHash:    "abc",
		Status:         StatusFulfilled,
		OrderNumber:    "EJR123456-1",
		OrderPattern:   "long_prefix",
		TrackingNumber: "9205123456789012345678",
		TrackingSource: "text",
		Diagnostics:    json.RawMessage(`{"order":{"attempts":[]}}`),
		RunID:          "run-1",
		Carrier:        "usps",
		Pages:          1,
		DurationMS:     1200,
	}
	require.NoError(t, db.Documents.Record(doc))

	got, err := db.Documents.Get("/labels/a.pdf")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "a.pdf", got.Filename)
	assert.Equal(t, StatusFulfilled, got.Status)
	assert.Equal(t, "EJR123456-1", got.OrderNumber)
	assert.Equal(t, "9205123456789012345678", got.TrackingNumber)
	assert.Equal(t, "usps", got.Carrier)
	assert.Empty(t, got.Missing)
	assert.JSONEq(t, `{"order":{"attempts":[]}}`, string(got.Diagnostics))
	assert.False(t, got.ProcessedAt.IsZero())
}

func TestDocumentStore_GetMissing(t *testing.T) {
	db := setupTestDB(t)

	got, err := db.Documents.Get("/nope.pdf")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDocumentStore_RecordUpserts(t *testing.T) {
	db := setupTestDB(t)

	first := &Document{Path: "/l/b.pdf", Filename: "b.pdf", ContentHash: "h1", Status: StatusError, ErrorMessage: "ocr failed"}
	require.NoError(t, db.Documents.Record(first))

	second := &Document{
		Path:        "/l/b.pdf",
		Filename:    "b.pdf",
		ContentHash: "h1",
		Status:      StatusFailed,
		Missing:     []string{"tracking_number"},
	}
	require.NoError(t, db.Documents.Record(second))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM documents").Scan(&count))
	assert.Equal(t, 1, count)

	got, err := db.Documents.Get("/l/b.pdf")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Empty(t, got.ErrorMessage)
	assert.Equal(t, []string{"tracking_number"}, got.Missing)
}

func TestDocumentStore_RecordRequiresKey(t *testing.T) {
	db := setupTestDB(t)
	assert.Error(t, db.Documents.Record(&Document{Path: "/x.pdf"}))
	assert.Error(t, db.Documents.Record(&Document{ContentHash: "h"}))
}

func TestDocumentStore_IsProcessed(t *testing.T) {
	db := setupTestDB(t)

	tests := []struct {
		status    string
		processed bool
	}{
		{StatusFulfilled, true},
		{StatusFailed, true},
		{StatusSkipped, true},
		{StatusExtracted, false},
		{StatusError, false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			path := "/labels/" + tt.status + ".pdf"
			require.NoError(t, db.Documents.Record(&Document{Path: path, Filename: "f.pdf", ContentHash: "h", Status: tt.status}))

			processed, err := db.Documents.IsProcessed(path, "h")
			require.NoError(t, err)
			assert.Equal(t, tt.processed, processed)

			// Changed content is a new document.
			processed, err = db.Documents.IsProcessed(path, "other")
			require.NoError(t, err)
			assert.False(t, processed)
		})
	}
}

func TestDocumentStore_RecentAndFailures(t *testing.T) {
	db := setupTestDB(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	docs := []Document{
		{Path: "/1.pdf", Status: StatusFulfilled},
		{Path: "/2.pdf", Status: StatusFailed},
		{Path: "/3.pdf", Status: StatusError},
		{Path: "/4.pdf", Status: StatusExtracted},
	}
	for i := range docs {
		docs[i].Filename = filepath.Base(docs[i].Path)
		docs[i].ContentHash = "h"
		docs[i].RunID = "run-a"
		docs[i].ProcessedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, db.Documents.Record(&docs[i]))
	}

	recent, err := db.Documents.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "/4.pdf", recent[0].Path)
	assert.Equal(t, "/3.pdf", recent[1].Path)

	failures, err := db.Documents.Failures(10)
	require.NoError(t, err)
	require.Len(t, failures, 2)
	assert.Equal(t, "/3.pdf", failures[0].Path)
	assert.Equal(t, "/2.pdf", failures[1].Path)

	byRun, err := db.Documents.ByRun("run-a")
	require.NoError(t, err)
	assert.Len(t, byRun, 4)
	assert.Equal(t, "/1.pdf", byRun[0].Path)
}

func TestDocumentStore_Stats(t *testing.T) {
	db := setupTestDB(t)

	stats, err := db.Documents.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.Nil(t, stats.LastProcessed)

	for i, status := range []string{StatusFulfilled, StatusFulfilled, StatusFailed, StatusError, StatusSkipped} {
		require.NoError(t, db.Documents.Record(&Document{
			Path:        filepath.Join("/s", string(rune('a'+i))+".pdf"),
			Filename:    "x.pdf",
			ContentHash: "h",
			Status:      status,
		}))
	}

	stats, err = db.Documents.Stats()
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 2, stats.Fulfilled)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 1, stats.Skipped)
	assert.Zero(t, stats.Extracted)
	require.NotNil(t, stats.LastProcessed)
	assert.WithinDuration(t, time.Now(), *stats.LastProcessed, time.Minute)
}

func TestDocumentStore_Cleanup(t *testing.T) {
	db := setupTestDB(t)
	now := time.Now().UTC()

	require.NoError(t, db.Documents.Record(&Document{Path: "/old.pdf", Filename: "old.pdf", ContentHash: "h", Status: StatusFulfilled, ProcessedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, db.Documents.Record(&Document{Path: "/new.pdf", Filename: "new.pdf", ContentHash: "h", Status: StatusFulfilled, ProcessedAt: now}))

	removed, err := db.Documents.Cleanup(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	old, err := db.Documents.Get("/old.pdf")
	require.NoError(t, err)
	assert.Nil(t, old)

	kept, err := db.Documents.Get("/new.pdf")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}
