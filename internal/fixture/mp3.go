// Package fixture synthesizes small media files for tests.
package fixture

import (
	"encoding/binary"

	"github.com/farcloser/tropism/internal/mpeg"
)

// Layout selects the kind of frames generated.
type Layout int

const (
	// MPEG-1, 128 kbps, 44100 Hz: 417 bytes per frame, 418 when padded.
	MPEG1 Layout = iota
	// MPEG-2, 64 kbps, 22050 Hz: 208 bytes per frame.
	MPEG2
	// MPEG-2.5, 32 kbps, 11025 Hz: 208 bytes per frame.
	MPEG25
)

// MP3 describes a synthetic stream. Frames are silent; only the side information is meaningful.
type MP3 struct {
	Layout  Layout
	Frames  int
	Mono    bool
	Joint   bool
	CRC     bool
	Padding bool
	// Gain gives the initial global_gain of every field. Defaults to Uniform(150).
	Gain func(frame, granule, channel int) uint8
	// XingFirst prepends an Info frame.
	XingFirst bool
	ID3v2     bool
	ID3v1     bool
	// Trailer is appended after the frames and before any ID3v1 tag.
	Trailer []byte
}

// Uniform gives every field the same value.
func Uniform(value uint8) func(int, int, int) uint8 {
	return func(int, int, int) uint8 { return value }
}

// Bytes renders the stream.
func (m MP3) Bytes() []byte {
	gain := m.Gain
	if gain == nil {
		gain = Uniform(150)
	}

	var out []byte

	if m.ID3v2 {
		out = append(out, ID3v2Tag("tropism fixture")...)
	}

	if m.XingFirst {
		start := len(out)
		out = append(out, m.frame(0)...)

		hdr, _ := mpeg.ParseHeader(out[start:])
		tagAt := start + mpeg.HeaderSize + hdr.SideInfoSize()

		if m.CRC {
			tagAt += 2
		}

		copy(out[tagAt:], "Info")
	}

	for index := range m.Frames {
		start := len(out)
		out = append(out, m.frame(index)...)

		hdr, err := mpeg.ParseHeader(out[start:])
		if err != nil {
			panic(err)
		}

		frame := mpeg.Frame{Header: hdr, Offset: start, Length: hdr.FrameLength()}
		for _, loc := range mpeg.GainLocations(frame) {
			mpeg.WriteGain(out, loc, gain(index, loc.Granule, loc.Channel))
		}
	}

	out = append(out, m.Trailer...)

	if m.ID3v1 {
		out = append(out, ID3v1Tag("tropism fixture")...)
	}

	return out
}

func (m MP3) frame(index int) []byte {
	header := []byte{0xFF, 0, 0, 0}

	switch m.Layout {
	case MPEG2:
		header[1], header[2] = 0xF3, 0x80
	case MPEG25:
		header[1], header[2] = 0xE3, 0x40
	default:
		header[1], header[2] = 0xFB, 0x90
	}

	if m.CRC {
		header[1] &^= 0x01
	}

	padded := m.Padding && index%2 == 1
	if padded {
		header[2] |= 0x02
	}

	switch {
	case m.Mono:
		header[3] = 0xC0
	case m.Joint:
		// Mid/side coding.
		header[3] = 0x60
	default:
		header[3] = 0x00
	}

	hdr, err := mpeg.ParseHeader(header)
	if err != nil {
		panic(err)
	}

	frame := make([]byte, hdr.FrameLength())
	copy(frame, header)

	return frame
}

// ID3v2Tag builds an ID3v2.3 tag holding a single title frame.
func ID3v2Tag(title string) []byte {
	body := make([]byte, 0, 11+len(title)+16)
	body = append(body, "TIT2"...)
	body = binary.BigEndian.AppendUint32(body, uint32(len(title)+1)) //nolint:gosec // test data
	body = append(body, 0, 0, 0)
	body = append(body, title...)
	// Padding.
	body = append(body, make([]byte, 16)...)

	size := len(body)
	tag := []byte{'I', 'D', '3', 3, 0, 0,
		byte(size >> 21 & 0x7F), byte(size >> 14 & 0x7F), byte(size >> 7 & 0x7F), byte(size & 0x7F)}

	return append(tag, body...)
}

// ID3v1Tag builds a 128 byte ID3v1 tag.
func ID3v1Tag(title string) []byte {
	tag := make([]byte, 128)
	copy(tag, "TAG")
	copy(tag[3:33], title)
	tag[127] = 0xFF

	return tag
}
