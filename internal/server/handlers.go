package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"go-playlist-download/index"
	"go-playlist-download/internal/extract"
	"go-playlist-download/internal/fetcher"
	"go-playlist-download/internal/models"
	"go-playlist-download/internal/search"
)

// mimeTypes maps media extensions to the Content-Type served for them.
// Anything unknown is served as audio/mpeg.
var mimeTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".webm": "audio/webm",
	".opus": "audio/opus",
	".ogg":  "audio/ogg",
}

const defaultMimeType = "audio/mpeg"

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.WithError(err).Error("Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// handleRoot lists the available endpoints.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "playlist-downloader",
		"endpoints": map[string]string{
			"POST /extract":                 "extract intent and songs from a natural-language query",
			"POST /search":                  "resolve a list of songs to watch URLs",
			"POST /download":                "download a batch of songs",
			"GET /stream/{filename}":        "stream a downloaded file inline",
			"GET /download-file/{filename}": "download a file as an attachment",
			"GET /list-downloads":           "list downloaded media files",
			"GET /library/search":           "full-text search over the download library",
		},
	})
}

// handleExtract runs intent/entity extraction over the query.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req models.ExtractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "Query is required")
		return
	}

	resp, err := s.extractor.Extract(r.Context(), req.Query)
	if err != nil {
		log.WithError(err).Error("Extraction failed")
		writeError(w, http.StatusBadGateway, "Extraction failed")
		return
	}
	resp.Message = extractionMessage(resp)
	writeJSON(w, http.StatusOK, resp)
}

// extractionMessage summarizes an extraction result for the caller.
func extractionMessage(resp models.ExtractResponse) string {
	switch {
	case len(resp.Songs) == 0:
		return "No songs could be extracted. Try: 'list songs by [artist]' or 'download [song]'"
	case resp.Intent == extract.IntentDownload:
		return fmt.Sprintf("Ready to download %d song(s)", len(resp.Songs))
	default:
		return fmt.Sprintf("Found %d song(s) for you!", len(resp.Songs))
	}
}

// handleSearch resolves each song in the batch to a watch URL, annotating
// the songs in place with the outcome.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var songs []models.Song
	if err := json.NewDecoder(r.Body).Decode(&songs); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	found := 0
	for i := range songs {
		url, err := s.searcher.FindVideo(r.Context(), songs[i])
		if err != nil {
			if !errors.Is(err, search.ErrNoResults) {
				log.WithError(err).Errorf("Video search failed for %q", songs[i].Title)
			}
			songs[i].DownloadStatus = models.SongStatusNotFound
			continue
		}
		songs[i].URL = url
		songs[i].DownloadStatus = models.SongStatusReady
		found++
	}

	writeJSON(w, http.StatusOK, models.SearchResponse{
		Songs:   songs,
		Message: fmt.Sprintf("Found YouTube links for %d/%d song(s)", found, len(songs)),
	})
}

// handleDownload runs a batch download. Per-song failures annotate the
// returned songs; the response itself is always 200.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req models.DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if len(req.Songs) == 0 {
		writeError(w, http.StatusBadRequest, "No songs provided")
		return
	}

	results := s.dl.DownloadBatch(r.Context(), req.Songs)

	songs := req.Songs
	var successCount, failedCount int
	for i, result := range results {
		if result.Success {
			songs[i].DownloadStatus = models.SongStatusCompleted
			songs[i].FilePath = result.FilePath
			successCount++
		} else {
			songs[i].DownloadStatus = models.SongStatusFailed
			failedCount++
		}
	}

	message := fmt.Sprintf("Downloaded %d song(s), %d failed", successCount, failedCount)
	if !anyHasURL(songs) {
		message = "No valid YouTube URLs to download"
	}

	writeJSON(w, http.StatusOK, models.DownloadResponse{
		Songs:        songs,
		SuccessCount: successCount,
		FailedCount:  failedCount,
		Message:      message,
	})
}

func anyHasURL(songs []models.Song) bool {
	for _, song := range songs {
		if song.URL != "" {
			return true
		}
	}
	return false
}

// resolveMediaPath maps a request filename to a file inside the downloads
// directory, refusing anything that is not a plain base name.
func (s *Server) resolveMediaPath(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") {
		return "", os.ErrNotExist
	}
	path := filepath.Join(s.cfg.SavePath, filename)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", os.ErrNotExist
	}
	return path, nil
}

func mimeTypeFor(filename string) string {
	if mt, ok := mimeTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return mt
	}
	return defaultMimeType
}

// handleStream serves a file for in-browser playback with range support.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	path, err := s.resolveMediaPath(filename)
	if err != nil {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}

	w.Header().Set("Content-Type", mimeTypeFor(filename))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeFile(w, r, path)
}

// handleDownloadFile serves a file as an attachment.
func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	path, err := s.resolveMediaPath(filename)
	if err != nil {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}

	w.Header().Set("Content-Type", mimeTypeFor(filename))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeFile(w, r, path)
}

// handleListDownloads lists the media files in the downloads directory,
// newest first.
func (s *Server) handleListDownloads(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.cfg.SavePath)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusOK, models.ListDownloadsResponse{Files: []models.FileInfo{}})
			return
		}
		log.WithError(err).Errorf("Could not read downloads directory %s", s.cfg.SavePath)
		writeError(w, http.StatusInternalServerError, "Could not read downloads directory")
		return
	}

	files := []models.FileInfo{}
	for _, entry := range entries {
		if entry.IsDir() || !fetcher.IsAudioFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, models.FileInfo{
			Filename: entry.Name(),
			Size:     info.Size(),
			Modified: info.ModTime().UTC().Format(time.RFC3339),
		})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].Modified > files[j].Modified
	})
	writeJSON(w, http.StatusOK, models.ListDownloadsResponse{Files: files})
}

// handleLibrarySearch runs a query-string search over the bleve index.
func (s *Server) handleLibrarySearch(w http.ResponseWriter, r *http.Request) {
	if s.idx == nil {
		writeError(w, http.StatusServiceUnavailable, "Library index not available")
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "Query parameter q is required")
		return
	}

	results, err := index.SearchIndex(s.idx, query)
	if err != nil {
		log.WithError(err).Errorf("Library search failed for %q", query)
		writeError(w, http.StatusInternalServerError, "Search failed")
		return
	}

	hits := make([]map[string]any, 0, len(results.Hits))
	for _, hit := range results.Hits {
		fields := hit.Fields
		if fields == nil {
			fields = map[string]any{}
		}
		fields["id"] = hit.ID
		hits = append(hits, fields)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"total":   results.Total,
		"results": hits,
	})
}
