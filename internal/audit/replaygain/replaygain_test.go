package replaygain_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farcloser/tropism/internal/audit/replaygain"
	"github.com/farcloser/tropism/internal/fixture"
	"github.com/farcloser/tropism/internal/types"
)

func analyze(t *testing.T, rate, channels int, samples []float32) *replaygain.Analyzer {
	t.Helper()

	analyzer, err := replaygain.NewAnalyzer(types.PCMFormat{SampleRate: rate, Channels: uint(channels)})
	require.NoError(t, err)

	analyzer.Process(samples)

	return analyzer
}

func TestCalibration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		rate      int
		channels  int
		frequency float64
		amplitude float64
		gain      float64
	}{
		{name: "1 kHz half scale 44100 stereo", rate: 44100, channels: 2, frequency: 1000, amplitude: 0.5, gain: -8.15},
		{name: "1 kHz quarter scale 48000 mono", rate: 48000, channels: 1, frequency: 1000, amplitude: 0.25, gain: -2.12},
		{name: "440 Hz half scale 8000 stereo", rate: 8000, channels: 2, frequency: 440, amplitude: 0.5, gain: -10.45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			samples := fixture.Sine(tt.rate, tt.channels, tt.frequency, tt.amplitude, 2)
			result, err := analyze(t, tt.rate, tt.channels, samples).Result()
			require.NoError(t, err)

			assert.InDelta(t, tt.gain, result.GainDB, 0.005)
			assert.InDelta(t, replaygain.ReferenceLevelDB-tt.gain, result.MeasuredDB, 0.005)
			assert.Equal(t, 40, result.Windows)
			assert.InDelta(t, tt.amplitude, result.Peak, 1e-3)
		})
	}
}

func TestEverySupportedRate(t *testing.T) {
	t.Parallel()

	var gains []float64

	for _, rate := range replaygain.SupportedRates {
		require.True(t, replaygain.Supported(rate))

		analyzer := analyze(t, rate, 2, fixture.Sine(rate, 2, 1000, 0.5, 1))
		assert.Equal(t, int(math.Ceil(float64(rate)*0.05)), analyzer.WindowSize())

		result, err := analyzer.Result()
		require.NoError(t, err, "%d Hz", rate)

		gains = append(gains, result.GainDB)
	}

	// The same tone measures alike whatever the rate, within the accuracy of the low rate fits.
	for i, gain := range gains {
		assert.InDelta(t, gains[0], gain, 1.5, "%d Hz", replaygain.SupportedRates[i])
	}
}

func TestUnsupportedRate(t *testing.T) {
	t.Parallel()

	for _, rate := range []int{0, 7999, 96000, 88200, 44000} {
		assert.False(t, replaygain.Supported(rate))

		_, err := replaygain.NewAnalyzer(types.PCMFormat{SampleRate: rate, Channels: 2})
		require.ErrorIs(t, err, types.ErrUnsupportedSampleRate)
	}
}

func TestNotEnoughSamples(t *testing.T) {
	t.Parallel()

	analyzer := analyze(t, 44100, 2, make([]float32, 2*2204))

	_, err := analyzer.Result()
	require.ErrorIs(t, err, types.ErrNotEnoughSamples)

	_, err = replaygain.Album(nil)
	require.ErrorIs(t, err, types.ErrNotEnoughSamples)
}

func TestSilence(t *testing.T) {
	t.Parallel()

	result, err := analyze(t, 44100, 2, make([]float32, 2*44100)).Result()
	require.NoError(t, err)

	assert.InDelta(t, replaygain.PinkReferenceDB, result.GainDB, 1e-9)
	assert.Zero(t, result.Peak)
}

func TestMonoMatchesDuplicatedStereo(t *testing.T) {
	t.Parallel()

	mono := fixture.Sine(22050, 1, 330, 0.3, 1)
	stereo := fixture.Sine(22050, 2, 330, 0.3, 1)

	monoResult, err := analyze(t, 22050, 1, mono).Result()
	require.NoError(t, err)

	stereoResult, err := analyze(t, 22050, 2, stereo).Result()
	require.NoError(t, err)

	assert.InDelta(t, stereoResult.GainDB, monoResult.GainDB, 1e-9)
}

func TestChunkingDoesNotMatter(t *testing.T) {
	t.Parallel()

	samples := fixture.Sine(16000, 2, 700, 0.4, 1)
	whole := analyze(t, 16000, 2, samples)

	chunked, err := replaygain.NewAnalyzer(types.PCMFormat{SampleRate: 16000, Channels: 2})
	require.NoError(t, err)

	for start := 0; start < len(samples); start += 578 {
		chunked.Process(samples[start:min(start+578, len(samples))])
	}

	assert.Equal(t, whole.Levels(), chunked.Levels())
}

func TestAlbumPooling(t *testing.T) {
	t.Parallel()

	loud := analyze(t, 44100, 2, fixture.Sine(44100, 2, 1000, 0.5, 1))
	quiet := analyze(t, 44100, 2, fixture.Sine(44100, 2, 1000, 0.1, 3))

	album, err := replaygain.Album([]*replaygain.Analyzer{loud, quiet})
	require.NoError(t, err)

	var pooled replaygain.Histogram

	pooled.Merge(loud.Histogram())
	pooled.Merge(quiet.Histogram())

	gain, ok := pooled.GainDB()
	require.True(t, ok)

	assert.InDelta(t, gain, album.GainDB, 1e-12)
	assert.Equal(t, loud.Histogram().Total()+quiet.Histogram().Total(), pooled.Total())
	assert.Equal(t, len(loud.Levels())+len(quiet.Levels()), album.Windows)
	assert.InDelta(t, 0.5, album.Peak, 1e-3)

	loudResult, err := loud.Result()
	require.NoError(t, err)

	quietResult, err := quiet.Result()
	require.NoError(t, err)

	assert.LessOrEqual(t, loudResult.GainDB, album.GainDB)
	assert.GreaterOrEqual(t, quietResult.GainDB, album.GainDB)
}

func TestAlbumOfIdenticalTracks(t *testing.T) {
	t.Parallel()

	samples := fixture.Sine(48000, 2, 1000, 0.5, 1)
	first := analyze(t, 48000, 2, samples)
	second := analyze(t, 48000, 2, samples)

	track, err := first.Result()
	require.NoError(t, err)

	album, err := replaygain.Album([]*replaygain.Analyzer{first, second})
	require.NoError(t, err)

	assert.InDelta(t, track.GainDB, album.GainDB, 1e-12)
}

func TestHistogramPercentile(t *testing.T) {
	t.Parallel()

	// 100 windows: ceil(100 * (1 - 0.95)) evaluates to 6 in float64, so the 6th loudest window is selected.
	var histogram replaygain.Histogram

	for i := range 100 {
		fillBucket(&histogram, math.Pow(10, (float64(5000+i)+0.5)/1000))
	}

	bucket, ok := histogram.Loudest()
	require.True(t, ok)
	assert.Equal(t, 5094, bucket)
}

func fillBucket(histogram *replaygain.Histogram, meanSquare float64) {
	var single replaygain.Histogram

	single.Observe(replaygain.Bucket(meanSquare))
	histogram.Merge(&single)
}

func TestBucketClamps(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, replaygain.Bucket(0))
	assert.Equal(t, 0, replaygain.Bucket(0.5))
	assert.Equal(t, replaygain.Buckets-1, replaygain.Bucket(1e20))
	assert.Equal(t, 6000, replaygain.Bucket(1e6+1))
}

func TestClippingRuns(t *testing.T) {
	t.Parallel()

	samples := make([]float32, 0, 40)
	for i := range 20 {
		left, right := float32(0.1), float32(-0.1)
		if i >= 5 && i < 9 {
			left = 1
		}

		samples = append(samples, left, right)
	}

	clip := analyze(t, 8000, 2, samples).Clipping()
	assert.Equal(t, uint64(1), clip.Events)
	assert.Equal(t, uint64(4), clip.LongestRun)
	assert.Equal(t, uint64(4), clip.Channels[0].ClippedSamples)
	assert.Zero(t, clip.Channels[1].Events)
}

func TestTruePeakAboveSamplePeak(t *testing.T) {
	t.Parallel()

	// A quarter rate tone sampled between its crests.
	samples := make([]float32, 0, 2*44100)
	for i := range 44100 {
		value := float32(0.9 * math.Sin(math.Pi/2*float64(i)+math.Pi/4))
		samples = append(samples, value, value)
	}

	analyzer := analyze(t, 44100, 2, samples)

	result, err := analyzer.Result()
	require.NoError(t, err)

	assert.InDelta(t, 0.9/math.Sqrt2, result.Peak, 1e-3)
	assert.InDelta(t, 0.9, result.TruePeak, 0.05)
	assert.InDelta(t, analyzer.TruePeak(), result.TruePeak, 1e-12)
	assert.Zero(t, analyzer.InterSamplePeaks().ISPCount)
}
