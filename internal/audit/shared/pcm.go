// Package shared holds the sample scaling every analyzer agrees on.
package shared

// FullScale16 maps 16-bit integer samples to [-1, 1). ReplayGain filters run at this scale.
const FullScale16 = 1 << 15

// FullScale returns the divisor and bias turning integer samples of the given width into [-1, 1).
// Only 8-bit PCM is unsigned.
func FullScale(bitDepth int) (scale, bias float64, ok bool) {
	switch bitDepth {
	case 8:
		return 1 << 7, 1 << 7, true
	case 16:
		return FullScale16, 0, true
	case 24:
		return 1 << 23, 0, true
	case 32:
		return 1 << 31, 0, true
	default:
		return 0, 0, false
	}
}
