package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-playlist-download/internal/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "downloads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPutGetDownload(t *testing.T) {
	db := openTestDB(t)

	entry := models.DatabaseEntry{
		ID:        "abc123",
		Title:     "Clocks",
		Artist:    "Coldplay",
		VideoRef:  "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		Filename:  "Coldplay - Clocks.m4a",
		FilePath:  "/downloads/Coldplay - Clocks.m4a",
		Extension: ".m4a",
		SizeBytes: 4096,
		Source:    models.SourcePrimary,
		Timestamp: 1700000000,
		Status:    models.StatusDownloaded,
	}
	require.NoError(t, db.PutDownload(entry))

	got, err := db.GetDownload("abc123")
	require.NoError(t, err)
	assert.Equal(t, entry, got)

	assert.True(t, db.HasDownload("abc123"))
	assert.False(t, db.HasDownload("other"))
}

func TestGetDownloadNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetDownload("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutDownloadEmptyID(t *testing.T) {
	db := openTestDB(t)
	err := db.PutDownload(models.DatabaseEntry{Title: "no id"})
	assert.Error(t, err)
}

func TestDeleteDownload(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.PutDownload(models.DatabaseEntry{ID: "gone"}))
	require.NoError(t, db.DeleteDownload("gone"))
	_, err := db.GetDownload("gone")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListDownloadsNewestFirst(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.PutDownload(models.DatabaseEntry{ID: "old", Timestamp: 100}))
	require.NoError(t, db.PutDownload(models.DatabaseEntry{ID: "new", Timestamp: 300}))
	require.NoError(t, db.PutDownload(models.DatabaseEntry{ID: "mid", Timestamp: 200}))
	// Keys outside the download namespace must not leak into the listing.
	require.NoError(t, db.Put([]byte("unrelated_key"), []byte("value")))

	entries, err := db.ListDownloads()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "new", entries[0].ID)
	assert.Equal(t, "mid", entries[1].ID)
	assert.Equal(t, "old", entries[2].ID)
}

func TestValueCompressionRoundTrip(t *testing.T) {
	db := openTestDB(t)

	// Large repetitive value compresses well; Get must transparently restore it.
	big := make([]byte, 64*1024)
	for i := range big {
		big[i] = byte('a' + i%4)
	}
	require.NoError(t, db.Put([]byte("big"), big))

	got, err := db.Get([]byte("big"))
	require.NoError(t, err)
	assert.Equal(t, big, got)
}
