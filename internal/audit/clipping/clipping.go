package clipping

import (
	"github.com/farcloser/tropism/internal/types"
)

// Decoded samples at or beyond this magnitude sit on the 16-bit rails (32767/32768).
const fullScale = float32(32767.0 / 32768.0)

// Runs shorter than this are ordinary peaks, not clipping.
const minRun = 2

// Detector finds runs of consecutive full-scale samples per channel, fed incrementally.
type Detector struct {
	result      types.ClippingDetection
	consecutive []uint64
	sampleIndex int
}

func NewDetector(channels int) *Detector {
	return &Detector{
		result: types.ClippingDetection{
			Channels: make([]types.ChannelClipping, channels),
		},
		consecutive: make([]uint64, channels),
	}
}

// Process consumes interleaved samples in [-1, 1].
func (d *Detector) Process(samples []float32) {
	numChannels := len(d.consecutive)

	for _, sample := range samples {
		ch := d.sampleIndex % numChannels
		d.sampleIndex++
		d.result.Samples++

		if sample >= fullScale || sample <= -1 {
			d.consecutive[ch]++

			continue
		}

		d.flush(ch)
	}
}

func (d *Detector) flush(ch int) {
	run := d.consecutive[ch]
	d.consecutive[ch] = 0

	if run < minRun {
		return
	}

	d.result.Channels[ch].Events++

	d.result.Channels[ch].ClippedSamples += run
	if run > d.result.Channels[ch].LongestRun {
		d.result.Channels[ch].LongestRun = run
	}

	d.result.Events++

	d.result.ClippedSamples += run
	if run > d.result.LongestRun {
		d.result.LongestRun = run
	}
}

// Result flushes trailing runs and returns the totals. The detector may keep being fed afterwards.
func (d *Detector) Result() *types.ClippingDetection {
	for ch := range d.consecutive {
		d.flush(ch)
	}

	result := d.result
	result.Channels = append([]types.ChannelClipping(nil), d.result.Channels...)

	return &result
}
