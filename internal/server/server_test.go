package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-playlist-download/index"
	"go-playlist-download/internal/models"
	"go-playlist-download/internal/search"
)

type stubExtractor struct {
	resp models.ExtractResponse
	err  error
}

func (s *stubExtractor) Extract(context.Context, string) (models.ExtractResponse, error) {
	return s.resp, s.err
}

type stubSearcher struct {
	url string
	err error
}

func (s *stubSearcher) FindVideo(context.Context, models.Song) (string, error) {
	return s.url, s.err
}

type stubDownloader struct {
	results []models.DownloadResult
	got     []models.Song
}

func (s *stubDownloader) DownloadBatch(_ context.Context, songs []models.Song) []models.DownloadResult {
	s.got = songs
	return s.results
}

func newTestServer(t *testing.T, saveDir string) (*Server, *stubDownloader) {
	t.Helper()
	dl := &stubDownloader{}
	s := New(
		models.Config{SavePath: saveDir, ListenAddr: ":0"},
		&stubExtractor{resp: models.ExtractResponse{Intent: "download", Songs: []models.Song{{Title: "Clocks", Artist: "Coldplay"}}}},
		&stubSearcher{url: "https://www.youtube.com/watch?v=dQw4w9WgXcQ"},
		dl,
		nil,
	)
	return s, dl
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}
	req := httptest.NewRequest(method, path, &reqBody)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleExtract(t *testing.T) {
	s, _ := newTestServer(t, t.TempDir())

	rec := doJSON(t, s.Handler(), http.MethodPost, "/extract", models.ExtractRequest{Query: "download clocks"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.ExtractResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "download", resp.Intent)
	assert.Equal(t, "Ready to download 1 song(s)", resp.Message)
	require.Len(t, resp.Songs, 1)
	assert.Equal(t, "Clocks", resp.Songs[0].Title)
}

func TestHandleExtractEmptyQuery(t *testing.T) {
	s, _ := newTestServer(t, t.TempDir())
	rec := doJSON(t, s.Handler(), http.MethodPost, "/extract", models.ExtractRequest{Query: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSearch(t *testing.T) {
	s, _ := newTestServer(t, t.TempDir())

	rec := doJSON(t, s.Handler(), http.MethodPost, "/search", []models.Song{{Title: "Clocks", Artist: "Coldplay"}})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Songs, 1)
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", resp.Songs[0].URL)
	assert.Equal(t, models.SongStatusReady, resp.Songs[0].DownloadStatus)
	assert.Equal(t, "Found YouTube links for 1/1 song(s)", resp.Message)
}

func TestHandleSearchNoResults(t *testing.T) {
	dl := &stubDownloader{}
	s := New(models.Config{SavePath: t.TempDir()}, &stubExtractor{}, &stubSearcher{err: search.ErrNoResults}, dl, nil)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/search", []models.Song{{Title: "x", Artist: "y"}})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Songs, 1)
	assert.Empty(t, resp.Songs[0].URL)
	assert.Equal(t, models.SongStatusNotFound, resp.Songs[0].DownloadStatus)
	assert.Equal(t, "Found YouTube links for 0/1 song(s)", resp.Message)
}

func TestHandleDownload(t *testing.T) {
	s, dl := newTestServer(t, t.TempDir())
	dl.results = []models.DownloadResult{
		{Title: "Clocks", Artist: "Coldplay", Success: true, FilePath: "/dl/Coldplay - Clocks.m4a"},
		{Title: "Broken", Artist: "Nobody", Success: false, Error: "No YouTube URL provided"},
	}

	rec := doJSON(t, s.Handler(), http.MethodPost, "/download", models.DownloadRequest{Songs: []models.Song{
		{Title: "Clocks", Artist: "Coldplay", URL: "dQw4w9WgXcQ"},
		{Title: "Broken", Artist: "Nobody"},
	}})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.DownloadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Songs, 2)
	assert.Equal(t, models.SongStatusCompleted, resp.Songs[0].DownloadStatus)
	assert.Equal(t, "/dl/Coldplay - Clocks.m4a", resp.Songs[0].FilePath)
	assert.Equal(t, models.SongStatusFailed, resp.Songs[1].DownloadStatus)
	assert.Empty(t, resp.Songs[1].FilePath)
	assert.Equal(t, 1, resp.SuccessCount)
	assert.Equal(t, 1, resp.FailedCount)
	assert.Equal(t, "Downloaded 1 song(s), 1 failed", resp.Message)
	assert.Len(t, dl.got, 2)
}

func TestHandleDownloadNoUsableURLs(t *testing.T) {
	s, dl := newTestServer(t, t.TempDir())
	dl.results = []models.DownloadResult{
		{Title: "Broken", Artist: "Nobody", Success: false, Error: "No YouTube URL provided"},
	}

	rec := doJSON(t, s.Handler(), http.MethodPost, "/download", models.DownloadRequest{Songs: []models.Song{
		{Title: "Broken", Artist: "Nobody"},
	}})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.DownloadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.SuccessCount)
	assert.Equal(t, 1, resp.FailedCount)
	assert.Equal(t, "No valid YouTube URLs to download", resp.Message)
}

func TestHandleDownloadEmptyBatch(t *testing.T) {
	s, _ := newTestServer(t, t.TempDir())
	rec := doJSON(t, s.Handler(), http.MethodPost, "/download", models.DownloadRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleStream(t *testing.T) {
	saveDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(saveDir, "Coldplay - Clocks.m4a"), []byte("audio-bytes"), 0644))
	s, _ := newTestServer(t, saveDir)

	req := httptest.NewRequest(http.MethodGet, "/stream/Coldplay%20-%20Clocks.m4a", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mp4", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "inline")
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "audio-bytes", rec.Body.String())
}

func TestHandleStreamRangeRequest(t *testing.T) {
	saveDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(saveDir, "a.mp3"), []byte("0123456789"), 0644))
	s, _ := newTestServer(t, saveDir)

	req := httptest.NewRequest(http.MethodGet, "/stream/a.mp3", nil)
	req.Header.Set("Range", "bytes=2-5")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "2345", rec.Body.String())
}

func TestHandleDownloadFile(t *testing.T) {
	saveDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(saveDir, "track.mp3"), []byte("mp3-bytes"), 0644))
	s, _ := newTestServer(t, saveDir)

	req := httptest.NewRequest(http.MethodGet, "/download-file/track.mp3", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
}

func TestServeUnknownFile(t *testing.T) {
	s, _ := newTestServer(t, t.TempDir())

	for _, path := range []string{"/stream/missing.mp3", "/download-file/missing.mp3"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code, "path: %s", path)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "File not found", resp["detail"])
	}
}

func TestHandleListDownloads(t *testing.T) {
	saveDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(saveDir, "a.mp3"), []byte("123"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(saveDir, "b.m4a"), []byte("12345"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(saveDir, "notes.txt"), []byte("skip me"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(saveDir, "partial.tmp"), []byte("skip me"), 0644))
	s, _ := newTestServer(t, saveDir)

	req := httptest.NewRequest(http.MethodGet, "/list-downloads", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.ListDownloadsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Files, 2)
	names := []string{resp.Files[0].Filename, resp.Files[1].Filename}
	assert.ElementsMatch(t, []string{"a.mp3", "b.m4a"}, names)
	for _, f := range resp.Files {
		assert.Greater(t, f.Size, int64(0))
		assert.NotEmpty(t, f.Modified)
	}
}

func TestHandleLibrarySearch(t *testing.T) {
	indexPath := filepath.Join(t.TempDir(), "library.bleve")
	idx, err := index.OpenOrCreateIndex(indexPath)
	require.NoError(t, err)
	defer idx.Close()
	require.NoError(t, index.IndexTrack(idx, index.Track{ID: "t1", Title: "Clocks", Artist: "Coldplay"}))

	dl := &stubDownloader{}
	s := New(models.Config{SavePath: t.TempDir()}, &stubExtractor{}, &stubSearcher{}, dl, idx)

	req := httptest.NewRequest(http.MethodGet, "/library/search?q=clocks", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Query   string           `json:"query"`
		Total   uint64           `json:"total"`
		Results []map[string]any `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(1), resp.Total)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "t1", resp.Results[0]["id"])
}

func TestHandleLibrarySearchUnavailable(t *testing.T) {
	s, _ := newTestServer(t, t.TempDir())
	req := httptest.NewRequest(http.MethodGet, "/library/search?q=x", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORSAndRequestID(t *testing.T) {
	s, _ := newTestServer(t, t.TempDir())

	req := httptest.NewRequest(http.MethodOptions, "/extract", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/list-downloads", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRootEndpointDirectory(t *testing.T) {
	s, _ := newTestServer(t, t.TempDir())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "playlist-downloader", resp["service"])
}
