package downloader

import (
	"os"
	"path/filepath"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"

	"go-playlist-download/index"
	"go-playlist-download/internal/database"
	"go-playlist-download/internal/helpers"
	"go-playlist-download/internal/models"
)

// LibraryRecorder persists finished downloads to the bitcask database and
// the bleve library index. Either backend may be nil, in which case that
// half is skipped.
type LibraryRecorder struct {
	db  *database.DB
	idx bleve.Index
}

// NewLibraryRecorder wires the two persistence backends.
func NewLibraryRecorder(db *database.DB, idx bleve.Index) *LibraryRecorder {
	return &LibraryRecorder{db: db, idx: idx}
}

// Record fills in the on-disk facts (size, content hash, base filename) and
// writes the entry to both backends. Failures are logged and swallowed: the
// downloaded file is already in place and remains usable either way.
func (r *LibraryRecorder) Record(entry models.DatabaseEntry) {
	// Failure entries have no file behind them; store the record and skip
	// the filesystem facts and the search index.
	if entry.FilePath == "" {
		if r.db != nil {
			if err := r.db.PutDownload(entry); err != nil {
				log.WithError(err).Errorf("Failed to store download entry %s", entry.ID)
			}
		}
		return
	}

	entry.Filename = filepath.Base(entry.FilePath)

	if info, err := os.Stat(entry.FilePath); err == nil {
		entry.SizeBytes = info.Size()
	} else {
		log.WithError(err).Warnf("Could not stat %s while recording download", entry.FilePath)
	}

	if hash, err := helpers.HashFileBlake3(entry.FilePath); err == nil {
		entry.ContentHash = hash
	} else {
		log.WithError(err).Warnf("Could not hash %s while recording download", entry.FilePath)
	}

	if r.db != nil {
		if err := r.db.PutDownload(entry); err != nil {
			log.WithError(err).Errorf("Failed to store download entry %s", entry.ID)
		}
	}

	if r.idx != nil {
		track := index.Track{
			ID:          entry.ID,
			Title:       entry.Title,
			Artist:      entry.Artist,
			Filename:    entry.Filename,
			FilePath:    entry.FilePath,
			Extension:   entry.Extension,
			VideoRef:    entry.VideoRef,
			Source:      entry.Source,
			DurationSec: entry.DurationSec,
			SizeBytes:   entry.SizeBytes,
			Timestamp:   entry.Timestamp,
		}
		if err := index.IndexTrack(r.idx, track); err != nil {
			log.WithError(err).Errorf("Failed to index track %s", entry.ID)
		}
	}
}
