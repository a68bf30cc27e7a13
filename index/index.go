package index

import (
	"os"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
)

const defaultIndexPath = "library.bleve"

// Track is the indexed representation of a downloaded song. All fields are
// searchable by their lowercase JSON tag names (e.g. query '+artist:coldplay').
type Track struct {
	ID          string `json:"id"`                    // Download id (hash of the video reference)
	Title       string `json:"title"`                 // Song title
	Artist      string `json:"artist"`                // Artist name
	Filename    string `json:"filename"`              // Base filename in the downloads directory
	FilePath    string `json:"filePath"`              // Absolute path of the media file
	Extension   string `json:"extension,omitempty"`   // Verified extension (".m4a", ".mp3", ...)
	VideoRef    string `json:"videoRef,omitempty"`    // Source video URL or id
	Source      string `json:"source,omitempty"`      // "primary" or "fallback"
	DurationSec int    `json:"durationSec,omitempty"` // Track length, when the extractor reports one
	SizeBytes   int64  `json:"sizeBytes,omitempty"`   // File size
	Timestamp   int64  `json:"timestamp,omitempty"`   // Unix time of the download
}

// OpenOrCreateIndex opens an existing Bleve index or creates a new one if it doesn't exist.
func OpenOrCreateIndex(indexPath string) (bleve.Index, error) {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}

	idx, err := bleve.Open(indexPath)
	if err == bleve.ErrorIndexPathDoesNotExist {
		log.Infof("Creating new library index at: %s", indexPath)
		mapping := bleve.NewIndexMapping()
		idx, err = bleve.New(indexPath, mapping)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	} else {
		log.Infof("Opened existing library index at: %s", indexPath)
	}
	return idx, nil
}

// IndexTrack adds or updates a track in the index.
func IndexTrack(idx bleve.Index, track Track) error {
	return idx.Index(track.ID, track)
}

// SearchIndex runs a query-string search against the index.
func SearchIndex(idx bleve.Index, query string) (*bleve.SearchResult, error) {
	searchQuery := bleve.NewQueryStringQuery(query)
	searchRequest := bleve.NewSearchRequest(searchQuery)
	searchRequest.Fields = []string{"*"} // Request all stored fields
	return idx.Search(searchRequest)
}

// DeleteIndex removes the index directory. Use with caution!
func DeleteIndex(indexPath string) error {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}
	log.Infof("Attempting to delete index at: %s", indexPath)
	return os.RemoveAll(indexPath)
}
