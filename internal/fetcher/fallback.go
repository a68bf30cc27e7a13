package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"go-playlist-download/internal/helpers"
	"go-playlist-download/internal/models"
)

// browserUserAgent is sent on every fallback request; the conversion
// endpoints refuse obvious non-browser clients.
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// linkKeys are the JSON fields, in probe order, under which conversion
// endpoints report the media link.
var linkKeys = []string{"dlink", "url", "download_url"}

// FallbackFetcher asks third-party conversion endpoints for a ready-made
// audio file. Endpoints are tried in order; the video id is appended to each
// endpoint URL. One endpoint failing in any way just moves on to the next.
type FallbackFetcher struct {
	endpoints     []string
	saveDir       string
	metaClient    *http.Client
	contentClient *http.Client
}

// NewFallbackFetcher builds a fetcher over the given endpoints. Metadata
// requests and content fetches use separate timeouts since a conversion
// payload takes far longer to stream than a JSON lookup.
func NewFallbackFetcher(endpoints []string, saveDir string, metaTimeoutSec, contentTimeoutSec int, transport http.RoundTripper) *FallbackFetcher {
	return &FallbackFetcher{
		endpoints: endpoints,
		saveDir:   saveDir,
		metaClient: &http.Client{
			Timeout:   time.Duration(metaTimeoutSec) * time.Second,
			Transport: transport,
		},
		contentClient: &http.Client{
			Timeout:   time.Duration(contentTimeoutSec) * time.Second,
			Transport: transport,
		},
	}
}

// Fetch tries each endpoint until one yields a payload. Returns
// ErrInvalidURL when no video id can be extracted and ErrAllEndpointsFailed
// when every endpoint has been exhausted.
func (f *FallbackFetcher) Fetch(ctx context.Context, videoRef, stem string) (*Result, error) {
	videoID, err := ExtractVideoID(videoRef)
	if err != nil {
		return nil, err
	}

	for _, endpoint := range f.endpoints {
		result, err := f.fetchFromEndpoint(ctx, endpoint, videoID, stem)
		if err != nil {
			log.WithError(err).WithField("endpoint", endpoint).Debug("Conversion endpoint failed, trying next")
			continue
		}
		return result, nil
	}

	return nil, ErrAllEndpointsFailed
}

// fetchFromEndpoint performs one endpoint's metadata lookup and, if a link
// comes back, streams the payload to disk.
func (f *FallbackFetcher) fetchFromEndpoint(ctx context.Context, endpoint, videoID, stem string) (*Result, error) {
	link, err := f.resolveLink(ctx, endpoint+videoID)
	if err != nil {
		return nil, err
	}
	return f.fetchContent(ctx, link, stem)
}

// resolveLink asks a conversion endpoint for the media link.
func (f *FallbackFetcher) resolveLink(ctx context.Context, metaURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metaURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating metadata request for %s: %w", metaURL, err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := f.metaClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting %s: %w", metaURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d from %s", resp.StatusCode, metaURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading metadata response from %s: %w", metaURL, err)
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("non-JSON metadata response from %s: %w", metaURL, err)
	}

	for _, key := range linkKeys {
		if link, ok := payload[key].(string); ok && link != "" {
			return link, nil
		}
	}
	return "", fmt.Errorf("no media link in response from %s", metaURL)
}

// fetchContent downloads the converted payload, sniffs its real extension
// and moves it into place atomically.
func (f *FallbackFetcher) fetchContent(ctx context.Context, link, stem string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("creating content request for %s: %w", link, err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := f.contentClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching media from %s: %w", link, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching media from %s", resp.StatusCode, link)
	}

	if !helpers.CheckAndMakeDir(f.saveDir) {
		return nil, fmt.Errorf("creating download directory %s", f.saveDir)
	}

	// Sniff the container from the first bytes before anything hits disk.
	header := make([]byte, 16)
	n, err := io.ReadFull(resp.Body, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("reading media payload from %s: %w", link, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("empty media payload from %s", link)
	}
	ext := SniffAudioExtension(header[:n])

	tempFile, err := os.CreateTemp(f.saveDir, stem+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("creating temporary file for %s: %w", stem, err)
	}
	shouldCleanupTemp := true
	defer func() {
		if shouldCleanupTemp {
			if removeErr := os.Remove(tempFile.Name()); removeErr != nil {
				log.WithError(removeErr).Warnf("Failed to remove temporary file %s", tempFile.Name())
			}
		}
	}()

	counter := &helpers.CounterWriter{Writer: tempFile}
	if _, err := io.Copy(counter, io.MultiReader(bytes.NewReader(header[:n]), resp.Body)); err != nil {
		tempFile.Close()
		return nil, fmt.Errorf("writing media payload to %s: %w", tempFile.Name(), err)
	}
	if err := tempFile.Close(); err != nil {
		return nil, fmt.Errorf("closing temporary file %s: %w", tempFile.Name(), err)
	}

	finalPath := filepath.Join(f.saveDir, stem+ext)
	if err := os.Rename(tempFile.Name(), finalPath); err != nil {
		return nil, fmt.Errorf("renaming %s to %s: %w", tempFile.Name(), finalPath, err)
	}
	shouldCleanupTemp = false

	log.Infof("Fetched %s via conversion endpoint (%s)", finalPath, helpers.BytesToSize(counter.Total))
	return &Result{
		FilePath:  finalPath,
		Extension: ext,
		Source:    models.SourceFallback,
	}, nil
}
