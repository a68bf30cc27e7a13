// Package server exposes the HTTP API: intent extraction, video search,
// batch downloads and a file-serving gateway over the downloads directory.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"go-playlist-download/internal/models"
)

// Extractor classifies a natural-language query into intent and songs.
type Extractor interface {
	Extract(ctx context.Context, query string) (models.ExtractResponse, error)
}

// Searcher resolves a song to a watch URL.
type Searcher interface {
	FindVideo(ctx context.Context, song models.Song) (string, error)
}

// Downloader runs a batch of song downloads.
type Downloader interface {
	DownloadBatch(ctx context.Context, songs []models.Song) []models.DownloadResult
}

// Server wires the API handlers to their collaborators.
type Server struct {
	cfg       models.Config
	extractor Extractor
	searcher  Searcher
	dl        Downloader
	idx       bleve.Index
	handler   http.Handler
}

// New builds the server. idx may be nil, in which case library search
// reports unavailable.
func New(cfg models.Config, extractor Extractor, searcher Searcher, dl Downloader, idx bleve.Index) *Server {
	s := &Server{
		cfg:       cfg,
		extractor: extractor,
		searcher:  searcher,
		dl:        dl,
		idx:       idx,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("POST /extract", s.handleExtract)
	mux.HandleFunc("POST /search", s.handleSearch)
	mux.HandleFunc("POST /download", s.handleDownload)
	mux.HandleFunc("GET /stream/{filename}", s.handleStream)
	mux.HandleFunc("GET /download-file/{filename}", s.handleDownloadFile)
	mux.HandleFunc("GET /list-downloads", s.handleListDownloads)
	mux.HandleFunc("GET /library/search", s.handleLibrarySearch)

	s.handler = requestIDMiddleware(recoveryMiddleware(corsMiddleware(mux)))
	return s
}

// Handler returns the fully wrapped handler (used directly by tests).
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Infof("HTTP API listening on %s", s.cfg.ListenAddr)
		errChan <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("Shutting down HTTP API...")
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// requestIDMiddleware tags every request with a correlation id, echoed in
// the response and attached to the request context logs.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		log.WithFields(log.Fields{
			"requestId": requestID,
			"method":    r.Method,
			"path":      r.URL.Path,
		}).Debug("Handling request")
		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware converts handler panics into generic 500s.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.WithField("panic", rec).Errorf("Panic handling %s %s", r.Method, r.URL.Path)
				writeError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware allows any origin; the API serves local web frontends.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
