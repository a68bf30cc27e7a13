package downloader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-playlist-download/internal/fetcher"
	"go-playlist-download/internal/models"
)

// stubFetcher returns a fixed result or error and counts its calls.
type stubFetcher struct {
	result *fetcher.Result
	err    error
	calls  int
	refs   []string
}

func (s *stubFetcher) Fetch(_ context.Context, videoRef, _ string) (*fetcher.Result, error) {
	s.calls++
	s.refs = append(s.refs, videoRef)
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

// memoryRecorder captures recorded entries.
type memoryRecorder struct {
	entries []models.DatabaseEntry
}

func (m *memoryRecorder) Record(entry models.DatabaseEntry) {
	m.entries = append(m.entries, entry)
}

func TestDownloadOnePrimarySuccess(t *testing.T) {
	primary := &stubFetcher{result: &fetcher.Result{FilePath: "/dl/Coldplay - Clocks.m4a", Extension: ".m4a", DurationSec: 307, Source: "primary"}}
	fallback := &stubFetcher{err: errors.New("must not be called")}
	rec := &memoryRecorder{}
	o := NewOrchestrator(primary, fallback, rec, 0)

	result := o.DownloadOne(context.Background(), models.Song{
		Title: "Clocks", Artist: "Coldplay", URL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
	})

	assert.True(t, result.Success)
	assert.Equal(t, "/dl/Coldplay - Clocks.m4a", result.FilePath)
	assert.Equal(t, 307, result.DurationSec)
	assert.Empty(t, result.Error)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, fallback.calls, "fallback must not run when primary succeeds")
	require.Len(t, rec.entries, 1)
	assert.Equal(t, models.StatusDownloaded, rec.entries[0].Status)
	assert.Equal(t, "Clocks", rec.entries[0].Title)
}

func TestDownloadOneFallsBack(t *testing.T) {
	primary := &stubFetcher{err: errors.New("extraction blocked")}
	fallback := &stubFetcher{result: &fetcher.Result{FilePath: "/dl/stem.mp3", Extension: ".mp3", Source: "fallback"}}
	o := NewOrchestrator(primary, fallback, nil, 0)

	result := o.DownloadOne(context.Background(), models.Song{Title: "T", Artist: "A", URL: "dQw4w9WgXcQ"})

	assert.True(t, result.Success)
	assert.Equal(t, "/dl/stem.mp3", result.FilePath)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestDownloadOneBothFail(t *testing.T) {
	primary := &stubFetcher{err: errors.New("extraction blocked")}
	fallback := &stubFetcher{err: fetcher.ErrAllEndpointsFailed}
	o := NewOrchestrator(primary, fallback, nil, 0)

	result := o.DownloadOne(context.Background(), models.Song{Title: "T", Artist: "A", URL: "dQw4w9WgXcQ"})

	assert.False(t, result.Success)
	assert.Empty(t, result.FilePath, "file_path must be unset on failure")
	assert.Equal(t, "Download failed", result.Error, "provider errors must not leak into the result")
}

func TestDownloadOneMissingURL(t *testing.T) {
	primary := &stubFetcher{err: errors.New("must not be called")}
	fallback := &stubFetcher{err: errors.New("must not be called")}
	o := NewOrchestrator(primary, fallback, nil, 0)

	result := o.DownloadOne(context.Background(), models.Song{Title: "T", Artist: "A"})

	assert.False(t, result.Success)
	assert.Equal(t, "No YouTube URL provided", result.Error)
	assert.Equal(t, 0, primary.calls)
	assert.Equal(t, 0, fallback.calls)
}

func TestDownloadBatchOrderAndIsolation(t *testing.T) {
	primary := &stubFetcher{result: &fetcher.Result{FilePath: "/dl/file.m4a", Extension: ".m4a", Source: "primary"}}
	fallback := &stubFetcher{err: errors.New("unused")}
	o := NewOrchestrator(primary, fallback, nil, 0)

	songs := []models.Song{
		{Title: "First", Artist: "A", URL: "dQw4w9WgXcQ"},
		{Title: "Second", Artist: "B"}, // no URL, must fail without a fetch
		{Title: "Third", Artist: "C", URL: "dQw4w9WgXcQ"},
	}
	results := o.DownloadBatch(context.Background(), songs)

	require.Len(t, results, 3)
	assert.Equal(t, "First", results[0].Title)
	assert.Equal(t, "Second", results[1].Title)
	assert.Equal(t, "Third", results[2].Title)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Equal(t, "No YouTube URL provided", results[1].Error)
	assert.True(t, results[2].Success)
	assert.Equal(t, 2, primary.calls, "only items with a URL may hit the network")
}

func TestDownloadBatchPacing(t *testing.T) {
	primary := &stubFetcher{result: &fetcher.Result{FilePath: "/dl/file.m4a", Source: "primary"}}
	o := NewOrchestrator(primary, &stubFetcher{}, nil, 20)

	songs := []models.Song{
		{Title: "1", Artist: "A", URL: "dQw4w9WgXcQ"},
		{Title: "2", Artist: "A", URL: "dQw4w9WgXcQ"},
		{Title: "3", Artist: "A", URL: "dQw4w9WgXcQ"},
	}
	start := time.Now()
	results := o.DownloadBatch(context.Background(), songs)
	elapsed := time.Since(start)

	require.Len(t, results, 3)
	// Two inter-item delays of 20ms each.
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
}

func TestFailureRecordedWithoutFilePath(t *testing.T) {
	primary := &stubFetcher{err: errors.New("nope")}
	fallback := &stubFetcher{err: errors.New("nope")}
	rec := &memoryRecorder{}
	o := NewOrchestrator(primary, fallback, rec, 0)

	_ = o.DownloadOne(context.Background(), models.Song{Title: "T", Artist: "A", URL: "dQw4w9WgXcQ"})
	require.Len(t, rec.entries, 1)
	assert.Equal(t, models.StatusError, rec.entries[0].Status)
	assert.Empty(t, rec.entries[0].FilePath)
	assert.Contains(t, rec.entries[0].ErrorDetails, "nope")
}

func TestMissingURLNotRecorded(t *testing.T) {
	rec := &memoryRecorder{}
	o := NewOrchestrator(&stubFetcher{}, &stubFetcher{}, rec, 0)

	_ = o.DownloadOne(context.Background(), models.Song{Title: "T", Artist: "A"})
	assert.Empty(t, rec.entries)
}

func TestRecordUsesFetchedTitleWhenMissing(t *testing.T) {
	primary := &stubFetcher{result: &fetcher.Result{FilePath: "/dl/x.m4a", Title: "Resolved Title", Source: "primary"}}
	rec := &memoryRecorder{}
	o := NewOrchestrator(primary, &stubFetcher{}, rec, 0)

	_ = o.DownloadOne(context.Background(), models.Song{Artist: "A", URL: "dQw4w9WgXcQ"})
	require.Len(t, rec.entries, 1)
	assert.Equal(t, "Resolved Title", rec.entries[0].Title)
}
