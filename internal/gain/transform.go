package gain

import (
	"fmt"
	"log/slog"

	"github.com/farcloser/tropism/internal/mpeg"
	"github.com/farcloser/tropism/internal/types"
)

// Adjustment is a change in steps for each side information channel. Left is used alone on mono streams.
type Adjustment struct {
	Left  int
	Right int
}

// Uniform adjusts every channel alike.
func Uniform(steps int) Adjustment {
	return Adjustment{Left: steps, Right: steps}
}

func (a Adjustment) IsZero() bool {
	return a.Left == 0 && a.Right == 0
}

func (a Adjustment) IsUniform() bool {
	return a.Left == a.Right
}

func (a Adjustment) Negate() Adjustment {
	return Adjustment{Left: -a.Left, Right: -a.Right}
}

func (a Adjustment) Add(other Adjustment) Adjustment {
	return Adjustment{Left: a.Left + other.Left, Right: a.Right + other.Right}
}

func (a Adjustment) channel(index int) int {
	if index == 0 {
		return a.Left
	}

	return a.Right
}

// Report describes what an adjustment did to the stream.
type Report struct {
	FramesModified int
	FieldsModified int
	ClampEvents    int
	MidSideFrames  int
}

// Stats summarizes the gain fields of every audio frame. Info frames are ignored.
func Stats(data []byte, frames []mpeg.Frame) types.GainStats {
	stats := types.GainStats{Min: 255}

	var sum int

	for _, frame := range frames {
		if frame.Info {
			continue
		}

		stats.Frames++

		for _, loc := range mpeg.GainLocations(frame) {
			value := mpeg.ReadGain(data, loc)
			stats.Min = min(stats.Min, value)
			stats.Max = max(stats.Max, value)
			stats.Granules++
			sum += int(value)
		}
	}

	if stats.Granules == 0 {
		stats.Min = 0

		return stats
	}

	stats.Average = float64(sum) / float64(stats.Granules)

	return stats
}

// Apply adjusts the gain fields of frames in data, in place. Nothing is written when the adjustment is refused.
func Apply(data []byte, frames []mpeg.Frame, adj Adjustment, policy Policy) (Report, error) {
	var report Report

	if adj.IsZero() {
		return report, nil
	}

	for _, frame := range frames {
		if frame.Info {
			continue
		}

		if frame.ChannelMode == mpeg.Mono && !adj.IsUniform() {
			return report, fmt.Errorf("%w: frame at offset %d", types.ErrMonoChannel, frame.Offset)
		}

		if policy != PolicyStrict {
			continue
		}

		for _, loc := range mpeg.GainLocations(frame) {
			if _, _, err := Step(mpeg.ReadGain(data, loc), adj.channel(loc.Channel), policy); err != nil {
				return report, fmt.Errorf("%w: frame at offset %d", err, frame.Offset)
			}
		}
	}

	for _, frame := range frames {
		if frame.Info {
			continue
		}

		modified := false

		for _, loc := range mpeg.GainLocations(frame) {
			delta := adj.channel(loc.Channel)
			if delta == 0 {
				continue
			}

			before := mpeg.ReadGain(data, loc)

			after, clamped, err := Step(before, delta, policy)
			if err != nil {
				return report, err
			}

			if clamped {
				report.ClampEvents++
			}

			if after != before {
				mpeg.WriteGain(data, loc, after)

				report.FieldsModified++
				modified = true
			}
		}

		if modified {
			report.FramesModified++

			if frame.MidSide() && !adj.IsUniform() {
				report.MidSideFrames++
			}
		}
	}

	if report.ClampEvents > 0 {
		slog.Warn("gain fields saturated", "fields", report.ClampEvents)
	}

	if report.MidSideFrames > 0 {
		slog.Warn("channel gain applied to mid/side coded frames", "frames", report.MidSideFrames)
	}

	return report, nil
}
