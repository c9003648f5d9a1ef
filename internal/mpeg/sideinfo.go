package mpeg

// Layout of the Layer III side information, in bits.
const (
	prefixV1Mono   = 18 // main_data_begin(9) private(5) scfsi(4)
	prefixV1Stereo = 20 // main_data_begin(9) private(3) scfsi(8)
	prefixV2Mono   = 9  // main_data_begin(8) private(1)
	prefixV2Stereo = 10 // main_data_begin(8) private(2)

	granuleChannelV1 = 59
	granuleChannelV2 = 63

	// part2_3_length(12) big_values(9) precede global_gain.
	globalGainOffset = 21
)

// GainLocation addresses one global_gain field: eight bits starting at bit Bit (0 is the most significant) of
// byte Byte, relative to the start of the file.
type GainLocation struct {
	Byte    int
	Bit     uint8
	Granule int
	Channel int
}

// GainLocations lists the global_gain fields of a frame, granule by granule, channel by channel.
func GainLocations(frame Frame) []GainLocation {
	channels := frame.ChannelMode.Channels()

	var prefix, width int

	switch {
	case frame.Version == Version1 && channels == 1:
		prefix, width = prefixV1Mono, granuleChannelV1
	case frame.Version == Version1:
		prefix, width = prefixV1Stereo, granuleChannelV1
	case channels == 1:
		prefix, width = prefixV2Mono, granuleChannelV2
	default:
		prefix, width = prefixV2Stereo, granuleChannelV2
	}

	start := frame.Offset + frame.SideInfoOffset()
	locations := make([]GainLocation, 0, frame.Granules()*channels)

	for granule := range frame.Granules() {
		for channel := range channels {
			bit := prefix + (granule*channels+channel)*width + globalGainOffset
			locations = append(locations, GainLocation{
				Byte:    start + bit/8,
				Bit:     uint8(bit % 8), //nolint:gosec // always below 8
				Granule: granule,
				Channel: channel,
			})
		}
	}

	return locations
}

// ReadGain extracts the eight bits at loc.
func ReadGain(data []byte, loc GainLocation) uint8 {
	if loc.Bit == 0 {
		return data[loc.Byte]
	}

	word := uint16(data[loc.Byte])<<8 | uint16(data[loc.Byte+1])

	return uint8(word >> (8 - loc.Bit)) //nolint:gosec // truncation intended
}

// WriteGain stores value at loc, leaving every neighbouring bit untouched.
func WriteGain(data []byte, loc GainLocation, value uint8) {
	if loc.Bit == 0 {
		data[loc.Byte] = value

		return
	}

	shift := 8 - loc.Bit
	mask := uint16(0xFF) << shift
	word := uint16(data[loc.Byte])<<8 | uint16(data[loc.Byte+1])
	word = word&^mask | uint16(value)<<shift

	data[loc.Byte] = byte(word >> 8)
	data[loc.Byte+1] = byte(word)
}
