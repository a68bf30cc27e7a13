package helpers

import (
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"
)

// filesystemUnsafe are the characters stripped from filenames. Covers the
// reserved sets of both Windows and POSIX filesystems.
const filesystemUnsafe = `<>:"/\|?*`

// SanitizeFilename strips filesystem-unsafe characters from a name and trims
// surrounding whitespace. It never fails; unusual input yields an unusual but
// safe name.
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, ch := range name {
		if !strings.ContainsRune(filesystemUnsafe, ch) {
			b.WriteRune(ch)
		}
	}
	return strings.TrimSpace(b.String())
}

// SongStem builds the canonical base filename (no extension) for a track:
// "Artist - Title", both parts sanitized. Every component that touches the
// downloads directory derives names through this one function.
func SongStem(title, artist string) string {
	return SanitizeFilename(artist) + " - " + SanitizeFilename(title)
}

// HashFileBlake3 returns the uppercase hex BLAKE3 digest of a file's contents.
func HashFileBlake3(filepath string) (string, error) {
	f, err := os.Open(filepath)
	if err != nil {
		return "", fmt.Errorf("opening %s for hashing: %w", filepath, err)
	}
	defer f.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", filepath, err)
	}
	return strings.ToUpper(hex.EncodeToString(hasher.Sum(nil))), nil
}

// HashStringBlake3 returns the uppercase hex BLAKE3 digest of a string.
// Used to derive stable database keys from video references.
func HashStringBlake3(s string) string {
	sum := blake3.Sum256([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// CounterWriter tracks the number of bytes written to the underlying writer.
// It's used to display download progress.
type CounterWriter struct {
	Total  uint64
	Writer io.Writer
}

// Write implements the io.Writer interface for CounterWriter.
func (cw *CounterWriter) Write(p []byte) (int, error) {
	n, err := cw.Writer.Write(p)
	cw.Total += uint64(n)
	return n, err
}

// BytesToSize converts a byte count into a human-readable string (KB, MB, GB, etc.).
func BytesToSize(bytes uint64) string {
	sizes := []string{"B", "KB", "MB", "GB", "TB"}
	if bytes == 0 {
		return "0B"
	}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizes) {
		i = len(sizes) - 1 // Handle very large sizes
	}
	return fmt.Sprintf("%.2f%s", float64(bytes)/math.Pow(1024, float64(i)), sizes[i])
}

// CheckAndMakeDir ensures a directory exists, creating it if necessary.
// Uses standard directory permissions (0700).
func CheckAndMakeDir(dir string) bool {
	// Use MkdirAll to create parent directories if they don't exist
	err := os.MkdirAll(dir, 0700)
	if err != nil {
		log.WithError(err).Errorf("Error creating directory %s", dir)
		return false
	}
	return true
}
