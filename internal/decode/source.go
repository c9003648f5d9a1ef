package decode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	pbx "github.com/ik5/audpbx/audio"

	"github.com/farcloser/tropism/internal/audit/shared"
	"github.com/farcloser/tropism/internal/types"
)

const (
	bytesPerSample = 2
	bufSize        = 4096
)

var errWAVLayout = errors.New("unsupported wav layout")

// pcm16 reads the interleaved little-endian signed 16-bit samples ffmpeg produces.
type pcm16 struct {
	r          io.Reader
	sampleRate int
	channels   int
	buf        []byte
	done       bool
}

func (s *pcm16) SampleRate() int { return s.sampleRate }
func (s *pcm16) Channels() int   { return s.channels }
func (s *pcm16) BufSize() int    { return bufSize }
func (s *pcm16) Close() error    { return nil }

func (s *pcm16) ReadSamples(dst []float32) (int, error) {
	if s.done {
		return 0, io.EOF
	}

	need := len(dst) * bytesPerSample
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}

	n, err := io.ReadFull(s.r, s.buf[:need])

	switch {
	case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
		s.done = true
	case err != nil:
		return 0, fmt.Errorf("%w: %w", types.ErrDecodeFailure, err)
	}

	samples := n / bytesPerSample
	for i := range samples {
		dst[i] = float32(int16(binary.LittleEndian.Uint16(s.buf[bytesPerSample*i:]))) / shared.FullScale16 //nolint:gosec
	}

	if samples == 0 {
		return 0, io.EOF
	}

	return samples, nil
}

// wavSource converts go-audio integer buffers to floats according to the stored bit depth.
type wavSource struct {
	dec        *wav.Decoder
	sampleRate int
	channels   int
	scale      float64
	offset     float64
	buf        *audio.IntBuffer
}

func (s *wavSource) SampleRate() int { return s.sampleRate }
func (s *wavSource) Channels() int   { return s.channels }
func (s *wavSource) BufSize() int    { return bufSize }
func (s *wavSource) Close() error    { return nil }

func (s *wavSource) ReadSamples(dst []float32) (int, error) {
	if cap(s.buf.Data) < len(dst) {
		s.buf.Data = make([]int, len(dst))
	}

	s.buf.Data = s.buf.Data[:len(dst)]

	n, err := s.dec.PCMBuffer(s.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("%w: %w", types.ErrDecodeFailure, err)
	}

	if n == 0 {
		return 0, io.EOF
	}

	for i, value := range s.buf.Data[:n] {
		dst[i] = float32((float64(value) - s.offset) / s.scale)
	}

	return n, nil
}

type wavDecoder struct{}

// Decode needs random access: the reader is buffered when it cannot seek.
func (wavDecoder) Decode(r io.Reader) (pbx.Source, error) {
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrDecodeFailure, err)
		}

		rs = bytes.NewReader(data)
	}

	dec := wav.NewDecoder(rs)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid wav file", types.ErrDecodeFailure)
	}

	const pcmFormat = 1
	if dec.WavAudioFormat != pcmFormat {
		return nil, fmt.Errorf("%w: format %d", errWAVLayout, dec.WavAudioFormat)
	}

	source := &wavSource{
		dec:        dec,
		sampleRate: int(dec.SampleRate),
		channels:   int(dec.NumChans),
		buf:        &audio.IntBuffer{Format: dec.Format()},
	}

	var fits bool

	source.scale, source.offset, fits = shared.FullScale(int(dec.BitDepth))
	if !fits {
		return nil, fmt.Errorf("%w: %d bits", errWAVLayout, dec.BitDepth)
	}

	if source.channels == 0 || source.sampleRate == 0 {
		return nil, fmt.Errorf("%w: empty format", errWAVLayout)
	}

	return source, nil
}
