package fetcher

import (
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// probeExtensions is the order in which exact stem+extension paths are
// checked when locating a finished download.
var probeExtensions = []string{".m4a", ".webm", ".opus", ".ogg", ".mp4"}

// KnownAudioExtensions is the whitelist of extensions treated as playable
// media, used both when scanning for a finished download and when listing
// the downloads directory.
var KnownAudioExtensions = []string{".mp3", ".m4a", ".webm", ".opus", ".ogg", ".mp4"}

// IsAudioFile reports whether the filename carries a whitelisted extension.
func IsAudioFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, known := range KnownAudioExtensions {
		if ext == known {
			return true
		}
	}
	return false
}

// LocateMedia finds the media file for a stem in dir. Exact stem+extension
// candidates are probed first, in a fixed order; failing that, the directory
// is scanned for any whitelisted file whose name starts with the stem (an
// extractor may decorate the name it writes). Returns the path and whether
// anything was found.
func LocateMedia(dir, stem string) (string, bool) {
	for _, ext := range probeExtensions {
		candidate := filepath.Join(dir, stem+ext)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Warnf("Could not scan directory %s while locating media", dir)
		}
		return "", false
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, stem) && IsAudioFile(name) {
			return filepath.Join(dir, name), true
		}
	}

	return "", false
}
