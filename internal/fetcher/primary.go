package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kkdai/youtube/v2"
	log "github.com/sirupsen/logrus"

	"go-playlist-download/internal/helpers"
	"go-playlist-download/internal/models"
)

// PrimaryFetcher extracts the best audio-only stream directly from the video
// page and writes it unchanged (no transcoding).
type PrimaryFetcher struct {
	client  *youtube.Client
	saveDir string
}

// NewPrimaryFetcher builds a fetcher writing into saveDir. The transport may
// be nil; pass the logging transport to capture traffic in api.log.
func NewPrimaryFetcher(saveDir string, timeoutSec int, transport http.RoundTripper) *PrimaryFetcher {
	httpClient := &http.Client{
		Timeout:   time.Duration(timeoutSec) * time.Second,
		Transport: transport,
	}
	return &PrimaryFetcher{
		client:  &youtube.Client{HTTPClient: httpClient},
		saveDir: saveDir,
	}
}

// Fetch resolves the video, picks the best audio-only format and streams it
// to <saveDir>/<stem>.<ext> via a temp file. The finished file is re-located
// before reporting success; an extraction that leaves nothing discoverable is
// an error, not a silent success.
func (p *PrimaryFetcher) Fetch(ctx context.Context, videoRef, stem string) (*Result, error) {
	video, err := p.client.GetVideoContext(ctx, videoRef)
	if err != nil {
		return nil, fmt.Errorf("fetching video metadata: %w", err)
	}

	format, err := selectAudioFormat(video)
	if err != nil {
		return nil, err
	}
	ext := extensionForMime(format.MimeType)

	stream, size, err := p.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, fmt.Errorf("starting audio stream: %w", err)
	}
	defer stream.Close()

	if !helpers.CheckAndMakeDir(p.saveDir) {
		return nil, fmt.Errorf("creating download directory %s", p.saveDir)
	}

	tempFile, err := os.CreateTemp(p.saveDir, stem+".*.tmp")
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

	log.Infof("Downloading audio stream for %q (%s, %s)", video.Title, format.MimeType, helpers.BytesToSize(uint64(size)))
	counter := &helpers.CounterWriter{Writer: tempFile}
	if _, err := io.Copy(counter, stream); err != nil {
		tempFile.Close()
		return nil, fmt.Errorf("writing audio stream to %s: %w", tempFile.Name(), err)
	}
	if err := tempFile.Close(); err != nil {
		return nil, fmt.Errorf("closing temporary file %s: %w", tempFile.Name(), err)
	}

	finalPath := filepath.Join(p.saveDir, stem+ext)
	if err := os.Rename(tempFile.Name(), finalPath); err != nil {
		return nil, fmt.Errorf("renaming %s to %s: %w", tempFile.Name(), finalPath, err)
	}
	shouldCleanupTemp = false

	located, found := LocateMedia(p.saveDir, stem)
	if !found {
		return nil, ErrFileNotFound
	}

	return &Result{
		FilePath:    located,
		Extension:   strings.ToLower(filepath.Ext(located)),
		Title:       video.Title,
		DurationSec: int(video.Duration.Seconds()),
		Source:      models.SourcePrimary,
	}, nil
}

// selectAudioFormat picks the best audio-only format: no video track,
// audio/mp4 preferred over other containers, highest bitrate wins.
func selectAudioFormat(video *youtube.Video) (*youtube.Format, error) {
	var best *youtube.Format
	for i := range video.Formats {
		format := &video.Formats[i]
		if format.AudioChannels == 0 || format.Width > 0 || format.Height > 0 {
			continue
		}
		if best == nil || audioFormatLess(best, format) {
			best = format
		}
	}
	if best == nil {
		return nil, ErrNoAudioFormat
	}
	return best, nil
}

// audioFormatLess reports whether b is a better pick than a.
func audioFormatLess(a, b *youtube.Format) bool {
	aMp4 := strings.HasPrefix(a.MimeType, "audio/mp4")
	bMp4 := strings.HasPrefix(b.MimeType, "audio/mp4")
	if aMp4 != bMp4 {
		return bMp4
	}
	return b.Bitrate > a.Bitrate
}

// extensionForMime maps a stream MIME type to the on-disk extension.
func extensionForMime(mime string) string {
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	switch strings.TrimSpace(mime) {
	case "audio/mp4":
		return ".m4a"
	case "audio/webm":
		return ".webm"
	case "audio/ogg":
		return ".ogg"
	default:
		return ".m4a"
	}
}
