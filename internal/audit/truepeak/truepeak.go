package truepeak

import (
	"math"

	"github.com/farcloser/tropism/internal/types"
)

const (
	oversample   = 4  // 4x oversampling per ITU-R BS.1770
	tapsPerPhase = 12 // filter taps per phase
	totalTaps    = oversample * tapsPerPhase

	silenceDb = -120.0
)

// Polyphase filter coefficients for 4x oversampling
// Generated from windowed sinc with Kaiser window (beta=5)
//
//nolint:gochecknoglobals // computed once
var polyphaseCoeffs [oversample][tapsPerPhase]float64

//nolint:gochecknoinits // fills the table above
func init() {
	// Lowpass at the Nyquist frequency of the original signal.
	const beta = 5.0

	center := float64(totalTaps-1) / 2.0

	for phase := range oversample {
		for tap := range tapsPerPhase {
			n := tap*oversample + phase
			x := float64(n) - center

			sinc := 1.0
			if math.Abs(x) >= 1e-10 {
				sinc = math.Sin(math.Pi*x/oversample) / (math.Pi * x / oversample)
			}

			alpha := x / center
			if math.Abs(alpha) <= 1.0 {
				window := bessel0(beta*math.Sqrt(1-alpha*alpha)) / bessel0(beta)
				polyphaseCoeffs[phase][tap] = sinc * window * oversample
			}
		}
	}

	// Unity gain on every phase.
	for phase := range oversample {
		var sum float64
		for _, coef := range polyphaseCoeffs[phase] {
			sum += coef
		}

		for tap := range tapsPerPhase {
			polyphaseCoeffs[phase][tap] /= sum
		}
	}
}

// Bessel function I0 (modified Bessel function of the first kind, order 0)
func bessel0(x float64) float64 {
	sum := 1.0
	term := 1.0

	for k := 1; k <= 25; k++ {
		term *= (x * x) / (4.0 * float64(k) * float64(k))
		sum += term

		if term < 1e-12 {
			break
		}
	}

	return sum
}

// Detector estimates the peak of the reconstructed waveform, fed incrementally with interleaved samples.
type Detector struct {
	history     [][tapsPerPhase]float64
	sampleIndex int

	samplePeak float64
	truePeak   float64
	ispCount   uint64
	ispMax     float64
}

func NewDetector(channels int) *Detector {
	return &Detector{history: make([][tapsPerPhase]float64, channels)}
}

// Process consumes interleaved samples in [-1, 1].
func (d *Detector) Process(samples []float32) {
	numChannels := len(d.history)

	for _, raw := range samples {
		ch := d.sampleIndex % numChannels
		d.sampleIndex++

		sample := float64(raw)
		d.samplePeak = max(d.samplePeak, math.Abs(sample))

		history := &d.history[ch]
		copy(history[0:], history[1:])
		history[tapsPerPhase-1] = sample

		for phase := range oversample {
			var interp float64
			for tap, value := range history {
				interp += value * polyphaseCoeffs[phase][tap]
			}

			absInterp := math.Abs(interp)
			d.truePeak = max(d.truePeak, absInterp)

			// Inter-sample peaks above full scale.
			if absInterp > 1.0 {
				d.ispCount++
				d.ispMax = max(d.ispMax, 20*math.Log10(absInterp))
			}
		}
	}
}

// TruePeak is the largest interpolated magnitude seen so far, never below the sample peak.
func (d *Detector) TruePeak() float64 {
	return max(d.truePeak, d.samplePeak)
}

func (d *Detector) Result() *types.TruePeakResult {
	truePeak := d.TruePeak()

	return &types.TruePeakResult{
		TruePeak:     truePeak,
		TruePeakDb:   toDb(truePeak),
		SamplePeakDb: toDb(d.samplePeak),
		ISPCount:     d.ispCount,
		ISPMaxDb:     d.ispMax,
		Frames:       uint64(d.sampleIndex / len(d.history)), //nolint:gosec // positive
	}
}

func toDb(linear float64) float64 {
	if linear <= 0 {
		return silenceDb
	}

	return 20 * math.Log10(linear)
}
