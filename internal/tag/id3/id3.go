// Package id3 locates ID3 tags around an MPEG stream and reads ReplayGain frames written by other tools.
package id3

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/bogem/id3v2/v2"
)

const (
	v2HeaderSize = 10
	// V1Size is the fixed size of an ID3v1 tag.
	V1Size = 128

	lyrics3End     = "LYRICS200"
	lyrics3SizeLen = 6
)

// V2Size returns the byte length of the ID3v2 tag starting at data[0], footer included, or 0.
func V2Size(data []byte) int {
	if len(data) < v2HeaderSize || !bytes.Equal(data[:3], []byte("ID3")) {
		return 0
	}

	// Syncsafe integer, seven bits per byte.
	size := 0

	for _, b := range data[6:10] {
		if b&0x80 != 0 {
			return 0
		}

		size = size<<7 | int(b)
	}

	size += v2HeaderSize
	if data[5]&0x10 != 0 {
		size += v2HeaderSize
	}

	return min(size, len(data))
}

// LeadingSize skips every ID3v2 tag stacked at the start of data.
func LeadingSize(data []byte) int {
	offset := 0

	for {
		size := V2Size(data[offset:])
		if size == 0 {
			return offset
		}

		offset += size
	}
}

// HasV1 reports whether data[:end] finishes with an ID3v1 tag.
func HasV1(data []byte, end int) bool {
	return end >= V1Size && bytes.Equal(data[end-V1Size:end-V1Size+3], []byte("TAG"))
}

// Lyrics3Size returns the byte length of a Lyrics3v2 block ending at data[:end], or 0.
func Lyrics3Size(data []byte, end int) int {
	trailer := lyrics3SizeLen + len(lyrics3End)
	if end < trailer || string(data[end-len(lyrics3End):end]) != lyrics3End {
		return 0
	}

	size, err := strconv.Atoi(string(data[end-trailer : end-len(lyrics3End)]))
	if err != nil || size+trailer > end {
		return 0
	}

	return size + trailer
}

// ForeignReplayGain lists ReplayGain TXXX frames found in a leading ID3v2 tag.
func ForeignReplayGain(data []byte) ([]string, error) {
	size := V2Size(data)
	if size == 0 {
		return nil, nil
	}

	tag, err := id3v2.ParseReader(bytes.NewReader(data[:size]), id3v2.Options{Parse: true})
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	defer tag.Close()

	var found []string

	for _, frame := range tag.GetFrames("TXXX") {
		udtf, ok := frame.(id3v2.UserDefinedTextFrame)
		if !ok {
			continue
		}

		if strings.HasPrefix(strings.ToUpper(udtf.Description), "REPLAYGAIN_") {
			found = append(found, udtf.Description+"="+udtf.Value)
		}
	}

	return found, nil
}
