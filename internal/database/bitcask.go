package database

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"git.mills.io/prologic/bitcask"
	log "github.com/sirupsen/logrus"

	"go-playlist-download/internal/models"
)

// ErrNotFound is returned when a key is not found in the database.
var ErrNotFound = errors.New("key not found")

// gzipMagicBytes are the first two bytes of a gzip file.
var gzipMagicBytes = []byte{0x1f, 0x8b}

// downloadKeyPrefix namespaces download entries within the keyspace.
const downloadKeyPrefix = "download_"

// DB wraps the bitcask database instance and provides helper methods.
// Values are stored gzip-compressed.
type DB struct {
	db           *bitcask.Bitcask
	sync.RWMutex // Embed mutex for concurrent access control
}

// Open initializes and returns a DB instance.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	dbInstance, err := bitcask.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bitcask database at %s: %w", path, err)
	}
	log.Infof("Database opened successfully at %s", path)
	return &DB{db: dbInstance}, nil
}

// Close safely closes the database connection.
func (d *DB) Close() error {
	log.Info("Closing database...")
	d.Lock()
	defer d.Unlock()
	return d.db.Close()
}

// Has checks if a key exists in the database.
func (d *DB) Has(key []byte) bool {
	d.RLock()
	defer d.RUnlock()
	return d.db.Has(key)
}

// Get retrieves the value associated with a key and decompresses it if necessary.
func (d *DB) Get(key []byte) ([]byte, error) {
	d.RLock()
	value, err := d.db.Get(key)
	d.RUnlock()

	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error getting key %s: %w", string(key), err)
	}

	return decompressIfGzipped(value)
}

// Put compresses and stores a key-value pair in the database.
func (d *DB) Put(key []byte, value []byte) error {
	compressedValue, err := compressGzip(value, gzip.BestCompression)
	if err != nil {
		return fmt.Errorf("error compressing value for key %s: %w", string(key), err)
	}

	d.Lock()
	err = d.db.Put(key, compressedValue)
	d.Unlock()
	if err != nil {
		return fmt.Errorf("error putting compressed key %s: %w", string(key), err)
	}
	return nil
}

// Delete removes a key from the database.
func (d *DB) Delete(key []byte) error {
	d.Lock()
	err := d.db.Delete(key)
	d.Unlock()
	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("error deleting key %s: %w", string(key), err)
	}
	return nil
}

// Fold iterates over all key-value pairs, decompresses the value,
// and calls the provided function.
func (d *DB) Fold(fn func(key []byte, value []byte) error) error {
	d.RLock()
	defer d.RUnlock()

	return d.db.Fold(func(key []byte) error {
		// Keep the main read lock for the duration of Fold.
		rawValue, err := d.db.Get(key)
		if err != nil {
			log.WithError(err).Warnf("Fold: Error getting value for key %s", string(key))
			return nil
		}

		value, err := decompressIfGzipped(rawValue)
		if err != nil {
			log.WithError(err).Warnf("Fold: Error decompressing value for key %s", string(key))
			return nil
		}

		return fn(key, value)
	})
}

// --- Download Entry Helpers ---

func downloadKey(id string) []byte {
	return []byte(downloadKeyPrefix + id)
}

// PutDownload serializes and stores a download entry under its id.
func (d *DB) PutDownload(entry models.DatabaseEntry) error {
	if entry.ID == "" {
		return errors.New("cannot store download entry: empty id")
	}
	dataBytes, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("error marshalling download entry %s: %w", entry.ID, err)
	}
	log.WithField("id", entry.ID).Debugf("Storing download entry for %s", entry.Filename)
	return d.Put(downloadKey(entry.ID), dataBytes)
}

// HasDownload reports whether a download entry exists for id.
func (d *DB) HasDownload(id string) bool {
	return d.Has(downloadKey(id))
}

// GetDownload retrieves a download entry by id. Returns ErrNotFound when the
// id has never been recorded.
func (d *DB) GetDownload(id string) (models.DatabaseEntry, error) {
	value, err := d.Get(downloadKey(id))
	if err != nil {
		return models.DatabaseEntry{}, err
	}
	var entry models.DatabaseEntry
	if err := json.Unmarshal(value, &entry); err != nil {
		return models.DatabaseEntry{}, fmt.Errorf("error unmarshalling download entry %s: %w", id, err)
	}
	return entry, nil
}

// DeleteDownload removes a download entry by id.
func (d *DB) DeleteDownload(id string) error {
	return d.Delete(downloadKey(id))
}

// ListDownloads returns all stored download entries, newest first.
func (d *DB) ListDownloads() ([]models.DatabaseEntry, error) {
	var entries []models.DatabaseEntry
	err := d.Fold(func(key []byte, value []byte) error {
		if !bytes.HasPrefix(key, []byte(downloadKeyPrefix)) {
			return nil
		}
		var entry models.DatabaseEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			log.WithError(err).Warnf("Skipping malformed download entry %s", string(key))
			return nil
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error listing download entries: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp > entries[j].Timestamp
	})
	return entries, nil
}

// --- Compression Helpers ---

// decompressIfGzipped decompresses the value if it is gzipped.
func decompressIfGzipped(value []byte) ([]byte, error) {
	if bytes.HasPrefix(value, gzipMagicBytes) {
		bReader := bytes.NewReader(value)
		gReader, err := gzip.NewReader(bReader)
		if err != nil {
			log.WithError(err).Warnf("Error creating gzip reader for value, returning raw data.")
			return value, nil
		}
		defer gReader.Close()

		decompressedValue, err := io.ReadAll(gReader)
		if err != nil {
			log.WithError(err).Warnf("Error decompressing value, returning raw data.")
			return value, nil
		}
		return decompressedValue, nil
	}

	return value, nil
}

// compressGzip compresses the value using gzip with the specified compression level.
func compressGzip(value []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	gWriter, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("error creating gzip writer for value: %w", err)
	}
	if _, err = gWriter.Write(value); err != nil {
		_ = gWriter.Close()
		return nil, fmt.Errorf("error writing compressed data for value: %w", err)
	}
	// Close must be called to flush buffers.
	if err = gWriter.Close(); err != nil {
		return nil, fmt.Errorf("error closing gzip writer for value: %w", err)
	}

	return buf.Bytes(), nil
}
