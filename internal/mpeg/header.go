package mpeg

import (
	"fmt"
)

// HeaderSize is the fixed size of an MPEG audio frame header.
const HeaderSize = 4

type Version uint8

const (
	Version25 Version = iota
	versionReserved
	Version2
	Version1
)

func (v Version) String() string {
	switch v {
	case Version1:
		return "MPEG-1"
	case Version2:
		return "MPEG-2"
	case Version25:
		return "MPEG-2.5"
	default:
		return "reserved"
	}
}

type ChannelMode uint8

const (
	Stereo ChannelMode = iota
	JointStereo
	DualChannel
	Mono
)

func (m ChannelMode) String() string {
	switch m {
	case Stereo:
		return "stereo"
	case JointStereo:
		return "joint stereo"
	case DualChannel:
		return "dual channel"
	default:
		return "mono"
	}
}

// Channels is the number of coded channels, as seen by the side information.
func (m ChannelMode) Channels() int {
	if m == Mono {
		return 1
	}

	return 2
}

const layer3 = 0x01

// Kilobits per second, indexed by bitrate index. Index 0 (free format) and 15 are not supported.
//
//nolint:gochecknoglobals // lookup tables
var (
	bitratesV1 = [15]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320}
	bitratesV2 = [15]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160}

	sampleRates = map[Version][3]int{
		Version1:  {44100, 48000, 32000},
		Version2:  {22050, 24000, 16000},
		Version25: {11025, 12000, 8000},
	}
)

// Header is a decoded Layer III frame header.
type Header struct {
	Version       Version
	CRC           bool
	BitrateIndex  int
	Bitrate       int
	SampleRate    int
	Padding       bool
	ChannelMode   ChannelMode
	ModeExtension uint8
}

// ParseHeader decodes the four bytes at the start of b. Headers of other layers, free format and reserved
// values are rejected.
func ParseHeader(b []byte) (Header, error) {
	var hdr Header

	if len(b) < HeaderSize {
		return hdr, fmt.Errorf("%w: short header", ErrInvalidHeader)
	}

	if b[0] != 0xFF || b[1]&0xE0 != 0xE0 {
		return hdr, fmt.Errorf("%w: no sync", ErrInvalidHeader)
	}

	hdr.Version = Version((b[1] >> 3) & 0x03)
	if hdr.Version == versionReserved {
		return hdr, fmt.Errorf("%w: reserved version", ErrInvalidHeader)
	}

	if (b[1]>>1)&0x03 != layer3 {
		return hdr, fmt.Errorf("%w: not layer III", ErrInvalidHeader)
	}

	hdr.CRC = b[1]&0x01 == 0

	hdr.BitrateIndex = int(b[2] >> 4)
	if hdr.BitrateIndex == 0 || hdr.BitrateIndex == 15 {
		return hdr, fmt.Errorf("%w: bitrate index %d", ErrInvalidHeader, hdr.BitrateIndex)
	}

	if hdr.Version == Version1 {
		hdr.Bitrate = bitratesV1[hdr.BitrateIndex]
	} else {
		hdr.Bitrate = bitratesV2[hdr.BitrateIndex]
	}

	rateIndex := int((b[2] >> 2) & 0x03)
	if rateIndex == 3 {
		return hdr, fmt.Errorf("%w: reserved sample rate", ErrInvalidHeader)
	}

	hdr.SampleRate = sampleRates[hdr.Version][rateIndex]
	hdr.Padding = (b[2]>>1)&0x01 == 1
	hdr.ChannelMode = ChannelMode(b[3] >> 6)
	hdr.ModeExtension = (b[3] >> 4) & 0x03

	return hdr, nil
}

// SamplesPerFrame is the number of PCM samples per channel a frame decodes to.
func (h Header) SamplesPerFrame() int {
	if h.Version == Version1 {
		return 1152
	}

	return 576
}

// Granules is the number of granules a frame carries.
func (h Header) Granules() int {
	if h.Version == Version1 {
		return 2
	}

	return 1
}

// FrameLength is the byte length of the frame, header included.
func (h Header) FrameLength() int {
	length := h.SamplesPerFrame() / 8 * h.Bitrate * 1000 / h.SampleRate
	if h.Padding {
		length++
	}

	return length
}

// SideInfoOffset is where the side information starts, relative to the frame.
func (h Header) SideInfoOffset() int {
	if h.CRC {
		return HeaderSize + 2
	}

	return HeaderSize
}

// SideInfoSize is the byte length of the side information block.
func (h Header) SideInfoSize() int {
	switch {
	case h.Version == Version1 && h.ChannelMode == Mono:
		return 17
	case h.Version == Version1:
		return 32
	case h.ChannelMode == Mono:
		return 9
	default:
		return 17
	}
}

// MidSide reports whether joint stereo frames code the channels as mid and side.
func (h Header) MidSide() bool {
	return h.ChannelMode == JointStereo && h.ModeExtension&0x02 != 0
}

// compatible reports whether two headers may belong to the same stream.
func (h Header) compatible(other Header) bool {
	return h.Version == other.Version && h.SampleRate == other.SampleRate
}
