// Package gain applies step adjustments to the global_gain fields of MPEG Layer III frames.
package gain

import (
	"fmt"
	"math"
	"strings"

	"github.com/farcloser/tropism/internal/types"
)

const (
	// StepDB is the loudness change of one global_gain unit.
	StepDB = 1.5

	minField = 0
	maxField = 255
)

// FromDB converts decibels to whole steps, rounding half away from zero.
func FromDB(db float64) int {
	return int(math.Round(db / StepDB))
}

// ToDB converts steps to decibels.
func ToDB(steps int) float64 {
	return float64(steps) * StepDB
}

// Policy decides what happens when an adjusted field leaves [0, 255].
type Policy int

const (
	// PolicyClamp saturates and reports the event.
	PolicyClamp Policy = iota
	// PolicyWrap wraps modulo 256, as mp3gain does with its wrap option.
	PolicyWrap
	// PolicyStrict refuses the whole adjustment.
	PolicyStrict
)

func (p Policy) String() string {
	switch p {
	case PolicyWrap:
		return "wrap"
	case PolicyStrict:
		return "strict"
	default:
		return "clamp"
	}
}

// ParsePolicy accepts clamp, wrap and strict.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "clamp":
		return PolicyClamp, nil
	case "wrap":
		return PolicyWrap, nil
	case "strict":
		return PolicyStrict, nil
	default:
		return PolicyClamp, fmt.Errorf("%w: %q (expected clamp, wrap or strict)", ErrInvalidPolicy, s)
	}
}

// Step applies delta to value under policy. clamped reports a saturation.
func Step(value uint8, delta int, policy Policy) (result uint8, clamped bool, err error) {
	target := int(value) + delta
	if target >= minField && target <= maxField {
		return uint8(target), false, nil //nolint:gosec // range checked
	}

	switch policy {
	case PolicyWrap:
		return uint8(((target % 256) + 256) % 256), false, nil //nolint:gosec // modulo 256
	case PolicyStrict:
		return value, false, fmt.Errorf("%w: %d %+d", types.ErrOutOfRangeGain, value, delta)
	default:
		if target < minField {
			return minField, true, nil
		}

		return maxField, true, nil
	}
}
