// Package downloader coordinates the per-song download pipeline: primary
// extraction first, conversion-endpoint fallback second, with batch pacing
// and uniform result reporting.
package downloader

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"go-playlist-download/internal/fetcher"
	"go-playlist-download/internal/helpers"
	"go-playlist-download/internal/models"
)

// msgNoVideoRef is reported for items that arrive without a resolved video
// URL. The message is part of the API contract.
const msgNoVideoRef = "No YouTube URL provided"

// msgDownloadFailed is reported when both fetch stages fail. Deliberately
// generic: the provider errors are logged and recorded, not surfaced.
const msgDownloadFailed = "Download failed"

// Recorder persists a finished download (database entry, search index).
// Recording failures are logged, never propagated; the file on disk is the
// source of truth.
type Recorder interface {
	Record(entry models.DatabaseEntry)
}

// Orchestrator runs downloads through the primary fetcher and falls back to
// the conversion endpoints when it fails.
type Orchestrator struct {
	primary  fetcher.Fetcher
	fallback fetcher.Fetcher
	recorder Recorder
	delay    time.Duration
}

// NewOrchestrator wires the two fetch stages. recorder may be nil; delayMs
// is the pause between successive batch items.
func NewOrchestrator(primary, fallback fetcher.Fetcher, recorder Recorder, delayMs int) *Orchestrator {
	return &Orchestrator{
		primary:  primary,
		fallback: fallback,
		recorder: recorder,
		delay:    time.Duration(delayMs) * time.Millisecond,
	}
}

// DownloadOne fetches a single song. Every failure mode is folded into the
// returned result; it never panics or returns an error value, so one bad
// song cannot take down a batch.
func (o *Orchestrator) DownloadOne(ctx context.Context, song models.Song) models.DownloadResult {
	result := models.DownloadResult{Title: song.Title, Artist: song.Artist}
	if song.URL == "" {
		result.Error = msgNoVideoRef
		return result
	}

	stem := helpers.SongStem(song.Title, song.Artist)
	itemLog := log.WithField("song", stem)

	fetched, primaryErr := o.primary.Fetch(ctx, song.URL, stem)
	if primaryErr == nil {
		itemLog.Infof("Primary extraction succeeded: %s", fetched.FilePath)
		o.record(song, fetched)
		result.Success = true
		result.FilePath = fetched.FilePath
		result.DurationSec = fetched.DurationSec
		return result
	}
	logFetchFailure(itemLog, "primary extraction", primaryErr)

	fetched, fallbackErr := o.fallback.Fetch(ctx, song.URL, stem)
	if fallbackErr == nil {
		itemLog.Infof("Fallback conversion succeeded: %s", fetched.FilePath)
		o.record(song, fetched)
		result.Success = true
		result.FilePath = fetched.FilePath
		result.DurationSec = fetched.DurationSec
		return result
	}
	logFetchFailure(itemLog, "fallback conversion", fallbackErr)

	// The detailed provider errors stay in the logs and the database entry;
	// callers only get a generic failure.
	result.Error = msgDownloadFailed
	o.recordFailure(song, fmt.Sprintf("%v; %v", primaryErr, fallbackErr))
	return result
}

// DownloadBatch processes songs sequentially, pacing requests with the
// configured delay. Results come back in input order, one per song. Items
// without a URL fail immediately without touching the network.
func (o *Orchestrator) DownloadBatch(ctx context.Context, songs []models.Song) []models.DownloadResult {
	results := make([]models.DownloadResult, 0, len(songs))
	for i, song := range songs {
		if i > 0 && o.delay > 0 {
			select {
			case <-time.After(o.delay):
			case <-ctx.Done():
			}
		}
		results = append(results, o.DownloadOne(ctx, song))
	}
	return results
}

// record hands a finished download to the recorder, if one is configured.
func (o *Orchestrator) record(song models.Song, fetched *fetcher.Result) {
	if o.recorder == nil {
		return
	}
	title := song.Title
	if title == "" {
		title = fetched.Title
	}
	o.recorder.Record(models.DatabaseEntry{
		ID:          helpers.HashStringBlake3(song.URL)[:16],
		Title:       title,
		Artist:      song.Artist,
		VideoRef:    song.URL,
		FilePath:    fetched.FilePath,
		Extension:   fetched.Extension,
		DurationSec: fetched.DurationSec,
		Source:      fetched.Source,
		Timestamp:   time.Now().Unix(),
		Status:      models.StatusDownloaded,
	})
}

// recordFailure keeps a trace of downloads that failed both stages, so they
// show up in `db view` and can be retried later.
func (o *Orchestrator) recordFailure(song models.Song, errorDetails string) {
	if o.recorder == nil {
		return
	}
	o.recorder.Record(models.DatabaseEntry{
		ID:           helpers.HashStringBlake3(song.URL)[:16],
		Title:        song.Title,
		Artist:       song.Artist,
		VideoRef:     song.URL,
		Timestamp:    time.Now().Unix(),
		Status:       models.StatusError,
		ErrorDetails: errorDetails,
	})
}

// logFetchFailure logs a stage failure. Errors mentioning ffmpeg/ffprobe are
// demoted to debug: they come from missing post-processing binaries and the
// fallback path handles those cases, so a warning would only cause noise.
func logFetchFailure(itemLog *log.Entry, stage string, err error) {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "ffmpeg") || strings.Contains(msg, "ffprobe") {
		itemLog.WithError(err).Debugf("%s failed", stage)
		return
	}
	itemLog.WithError(err).Warnf("%s failed", stage)
}
