// Package search resolves a song to a watch URL by scraping the public
// results page. No API key is needed; the first video id embedded in the
// page's initial data is taken as the match.
package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"go-playlist-download/internal/models"
)

// ErrNoResults is returned when the results page contains no video ids.
var ErrNoResults = errors.New("no search results")

const (
	resultsURL       = "https://www.youtube.com/results?search_query="
	watchURL         = "https://www.youtube.com/watch?v="
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

var videoIDPattern = regexp.MustCompile(`"videoId":"([0-9A-Za-z_-]{11})"`)

// Client scrapes the results page.
type Client struct {
	httpClient *http.Client
}

// NewClient builds a search client. transport may be nil; pass the logging
// transport to capture traffic in api.log.
func NewClient(transport http.RoundTripper) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout:   15 * time.Second,
			Transport: transport,
		},
	}
}

// BuildQuery turns a song into a search query. "official audio" biases the
// results toward clean uploads over live takes and covers.
func BuildQuery(song models.Song) string {
	parts := []string{}
	if song.Title != "" {
		parts = append(parts, song.Title)
	}
	if song.Artist != "" {
		parts = append(parts, song.Artist)
	}
	if len(parts) == 0 {
		return "popular music official audio"
	}
	return strings.Join(parts, " ") + " official audio"
}

// FindVideo resolves a song to a canonical watch URL.
func (c *Client) FindVideo(ctx context.Context, song models.Song) (string, error) {
	query := BuildQuery(song)
	pageURL := resultsURL + url.QueryEscape(query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating search request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting search results for %q: %w", query, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d from results page", resp.StatusCode)
	}

	// Results pages run to a few MB of embedded JSON; cap the read.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", fmt.Errorf("reading results page: %w", err)
	}

	videoID, ok := FirstVideoID(string(body))
	if !ok {
		log.WithField("query", query).Warn("Results page contained no video ids")
		return "", ErrNoResults
	}
	return watchURL + videoID, nil
}

// FirstVideoID extracts the first embedded video id from results-page HTML.
func FirstVideoID(page string) (string, bool) {
	if m := videoIDPattern.FindStringSubmatch(page); m != nil {
		return m[1], true
	}
	return "", false
}
