package decode

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/farcloser/tropism/internal/mpeg"
	"github.com/farcloser/tropism/internal/tag/id3"
)

// Kind is the container family of an input, as far as this tool cares.
type Kind int

const (
	Unknown Kind = iota
	MP3
	MP4
	WAV
	Ogg
	FLAC
)

func (k Kind) String() string {
	switch k {
	case MP3:
		return "mp3"
	case MP4:
		return "mp4"
	case WAV:
		return "wav"
	case Ogg:
		return "ogg"
	case FLAC:
		return "flac"
	case Unknown:
	}

	return "unknown"
}

//nolint:gochecknoglobals // lookup table
var extensions = map[string]Kind{
	".mp3":  MP3,
	".mp2":  MP3,
	".m4a":  MP4,
	".m4b":  MP4,
	".mp4":  MP4,
	".aac":  MP4,
	".wav":  WAV,
	".wave": WAV,
	".ogg":  Ogg,
	".oga":  Ogg,
	".flac": FLAC,
}

// Detect identifies data from its leading bytes, falling back to the extension of path.
func Detect(data []byte, path string) Kind {
	switch {
	case len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")):
		return MP4
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return WAV
	case bytes.HasPrefix(data, []byte("OggS")):
		return Ogg
	case bytes.HasPrefix(data, []byte("fLaC")):
		return FLAC
	}

	// ID3v2 is not specific to MP3: look at what follows it.
	if lead := id3.LeadingSize(data); lead > 0 && lead < len(data) {
		if kind := Detect(data[lead:], ""); kind != Unknown {
			return kind
		}

		return MP3
	}

	if _, err := mpeg.ParseHeader(data); err == nil {
		return MP3
	}

	if kind, ok := extensions[strings.ToLower(filepath.Ext(path))]; ok {
		return kind
	}

	return Unknown
}

// KnownExtension reports whether path is named like a supported audio file.
func KnownExtension(path string) bool {
	_, ok := extensions[strings.ToLower(filepath.Ext(path))]

	return ok
}
