package mpeg

import (
	"bytes"
	"fmt"
	"iter"
	"log/slog"

	"github.com/farcloser/tropism/internal/tag/ape"
	"github.com/farcloser/tropism/internal/tag/id3"
	"github.com/farcloser/tropism/internal/types"
)

// Frame is a located Layer III frame.
type Frame struct {
	Header
	// Offset of the frame header from the start of the file.
	Offset int
	// Length of the frame in bytes. A truncated final frame is shorter than Header.FrameLength.
	Length int
	// Truncated is set on a final frame cut short by the end of the stream.
	Truncated bool
	// Info is set on Xing, Info and VBRI frames, which carry no audio.
	Info bool
}

// Region is the span of a file holding MPEG frames, between leading and trailing tags.
type Region struct {
	Start int
	End   int
}

type Option func(*Scanner)

// WithResync lets the scanner skip over corrupt data to the next valid frame instead of failing.
func WithResync(enabled bool) Option {
	return func(s *Scanner) {
		s.resync = enabled
	}
}

// Scanner walks the frames of an in-memory MPEG file. It never modifies the data.
type Scanner struct {
	data   []byte
	region Region
	resync bool
}

func NewScanner(data []byte, opts ...Option) *Scanner {
	scanner := &Scanner{
		data:   data,
		region: FindRegion(data),
	}

	for _, opt := range opts {
		opt(scanner)
	}

	return scanner
}

// FindRegion excludes ID3v2 tags at the start, and APEv2, Lyrics3v2 and ID3v1 tags at the end.
func FindRegion(data []byte) Region {
	region := Region{Start: id3.LeadingSize(data), End: len(data)}

	if id3.HasV1(data, region.End) {
		region.End -= id3.V1Size
	}

	for {
		_, loc, err := ape.Locate(data[:region.End])
		if err == nil && loc.Found() {
			region.End = loc.Start

			continue
		}

		if lyrics := id3.Lyrics3Size(data, region.End); lyrics > 0 {
			region.End -= lyrics

			continue
		}

		break
	}

	region.End = max(region.End, region.Start)

	return region
}

func (s *Scanner) Region() Region {
	return s.region
}

// Frames yields every frame in file order. Each call restarts from the beginning of the region.
// Errors are yielded once and end the iteration.
func (s *Scanner) Frames() iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		pos, ok := s.find(s.region.Start)
		if !ok {
			yield(Frame{}, fmt.Errorf("%w in %d bytes", types.ErrNoFrames, s.region.End-s.region.Start))

			return
		}

		var previous Header

		first := true

		for pos < s.region.End {
			hdr, err := ParseHeader(s.data[pos:s.region.End])
			if err == nil && !first && !hdr.compatible(previous) {
				err = fmt.Errorf("%w: stream parameters changed", ErrInvalidHeader)
			}

			if err != nil {
				next, found := s.find(pos + 1)
				if !found {
					slog.Debug("mpeg.Scanner", "stage", "trailing data", "offset", pos, "bytes", s.region.End-pos)

					return
				}

				if !s.resync {
					yield(Frame{}, fmt.Errorf("%w: at offset %d: %w", types.ErrMalformedStream, pos, err))

					return
				}

				slog.Warn("skipping corrupt data", "offset", pos, "bytes", next-pos)

				pos = next

				continue
			}

			frame := Frame{Header: hdr, Offset: pos, Length: hdr.FrameLength()}

			if pos+frame.Length > s.region.End {
				frame.Length = s.region.End - pos
				frame.Truncated = true

				if frame.Length < hdr.SideInfoOffset()+hdr.SideInfoSize() {
					slog.Debug("mpeg.Scanner", "stage", "truncated frame dropped", "offset", pos)

					return
				}
			}

			if first {
				frame.Info = isInfoFrame(s.data[pos:pos+frame.Length], hdr)
			}

			if !yield(frame, nil) {
				return
			}

			previous = hdr
			first = false
			pos += frame.Length
		}
	}
}

// Collect gathers every frame, failing on the first error.
func (s *Scanner) Collect() ([]Frame, error) {
	var frames []Frame

	for frame, err := range s.Frames() {
		if err != nil {
			return nil, err
		}

		frames = append(frames, frame)
	}

	return frames, nil
}

// find returns the first offset at or after pos holding a frame confirmed by its successor.
func (s *Scanner) find(pos int) (int, bool) {
	for ; pos+HeaderSize <= s.region.End; pos++ {
		idx := bytes.IndexByte(s.data[pos:s.region.End], 0xFF)
		if idx < 0 {
			return 0, false
		}

		pos += idx

		hdr, err := ParseHeader(s.data[pos:s.region.End])
		if err != nil {
			continue
		}

		next := pos + hdr.FrameLength()
		if next == s.region.End {
			return pos, true
		}

		if next+HeaderSize > s.region.End {
			// Last frame of the region, possibly truncated, possibly followed by a few stray bytes.
			if next <= s.region.End || s.region.End-pos >= hdr.SideInfoOffset()+hdr.SideInfoSize() {
				return pos, true
			}

			continue
		}

		successor, err := ParseHeader(s.data[next:s.region.End])
		if err == nil && successor.compatible(hdr) {
			return pos, true
		}
	}

	return 0, false
}

// isInfoFrame detects Xing, Info and VBRI headers, which sit in the first frame.
func isInfoFrame(frame []byte, hdr Header) bool {
	xing := HeaderSize + hdr.SideInfoSize()
	if hdr.CRC {
		xing += 2
	}

	if len(frame) >= xing+4 {
		tag := string(frame[xing : xing+4])
		if tag == "Xing" || tag == "Info" {
			return true
		}
	}

	const vbriOffset = HeaderSize + 32

	return len(frame) >= vbriOffset+4 && string(frame[vbriOffset:vbriOffset+4]) == "VBRI"
}
