package fetcher

import "bytes"

// SniffAudioExtension guesses a file extension from the first bytes of a
// payload. Conversion endpoints advertise mp3 but occasionally hand back
// other containers, so the stored extension comes from the bytes, not the
// endpoint. Unrecognized payloads default to ".mp3".
func SniffAudioExtension(header []byte) string {
	switch {
	case len(header) >= 3 && bytes.Equal(header[:3], []byte("ID3")):
		return ".mp3"
	case len(header) >= 2 && header[0] == 0xFF && header[1]&0xE0 == 0xE0:
		// Raw MPEG audio frame sync.
		return ".mp3"
	case len(header) >= 4 && bytes.Equal(header[:4], []byte("OggS")):
		return ".ogg"
	case len(header) >= 8 && bytes.Equal(header[4:8], []byte("ftyp")):
		return ".m4a"
	case len(header) >= 4 && bytes.Equal(header[:4], []byte{0x1A, 0x45, 0xDF, 0xA3}):
		// EBML, i.e. webm/mkv.
		return ".webm"
	default:
		return ".mp3"
	}
}
