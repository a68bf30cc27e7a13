package fetcher

import (
	"regexp"
	"strings"
)

// Accepted video reference shapes. Ids are always 11 characters of the
// YouTube alphabet.
var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:v=|/)([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`(?:embed/)([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`^([0-9A-Za-z_-]{11})$`),
}

// ExtractVideoID pulls the 11-character video id out of a watch URL, short
// URL, embed URL or bare id. Returns ErrInvalidURL when no id can be found.
func ExtractVideoID(videoRef string) (string, error) {
	ref := strings.TrimSpace(videoRef)
	if ref == "" {
		return "", ErrInvalidURL
	}
	for _, pattern := range videoIDPatterns {
		if m := pattern.FindStringSubmatch(ref); m != nil {
			return m[1], nil
		}
	}
	return "", ErrInvalidURL
}
