package fixture

import (
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Sine renders an interleaved tone, identical on every channel.
func Sine(rate, channels int, frequency, amplitude, seconds float64) []float32 {
	frames := int(float64(rate) * seconds)
	samples := make([]float32, 0, frames*channels)

	for i := range frames {
		value := float32(amplitude * math.Sin(2*math.Pi*frequency*float64(i)/float64(rate)))
		for range channels {
			samples = append(samples, value)
		}
	}

	return samples
}

// WriteWAV stores interleaved samples as 16-bit PCM.
func WriteWAV(path string, rate, channels int, samples []float32) error {
	out, err := os.Create(path)
	if err != nil {
		return err //nolint:wrapcheck
	}

	encoder := wav.NewEncoder(out, rate, 16, channels, 1)

	data := make([]int, len(samples))
	for i, sample := range samples {
		data[i] = int(math.Round(float64(sample) * 32767))
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}

	if err = encoder.Write(buf); err != nil {
		_ = out.Close()

		return err //nolint:wrapcheck
	}

	if err = encoder.Close(); err != nil {
		_ = out.Close()

		return err //nolint:wrapcheck
	}

	return out.Close() //nolint:wrapcheck
}
