// Package fetcher retrieves audio for a single video reference and places it
// in the downloads directory under a caller-supplied stem. Two
// implementations exist: PrimaryFetcher extracts a native audio stream, and
// FallbackFetcher goes through third-party conversion endpoints.
package fetcher

import (
	"context"
	"errors"
)

// Sentinel errors surfaced to callers. The messages are part of the API
// contract (they appear verbatim in download results).
var (
	ErrInvalidURL         = errors.New("Invalid URL")
	ErrAllEndpointsFailed = errors.New("All APIs failed")
	ErrNoAudioFormat      = errors.New("no audio-only format available")
	ErrFileNotFound       = errors.New("download completed but no media file found")
)

// Result describes a successfully fetched media file.
type Result struct {
	FilePath    string
	Extension   string
	Title       string
	DurationSec int
	Source      string
}

// Fetcher downloads the audio for one video reference into the configured
// directory, naming the file after stem. Implementations must not leave
// partial files behind on failure.
type Fetcher interface {
	Fetch(ctx context.Context, videoRef string, stem string) (*Result, error)
}
