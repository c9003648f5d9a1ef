package replaygain

import (
	"math"
)

const (
	stepsPerDB = 100
	maxDB      = 120
	// Buckets is the histogram resolution: 0.01 dB over 120 dB.
	Buckets = stepsPerDB * maxDB

	// PinkReferenceDB is the filtered level of the pink noise calibration signal.
	PinkReferenceDB = 64.82
	// ReferenceLevelDB is the SPL the calibration signal is played back at.
	ReferenceLevelDB = 89.0
)

// Computed at run time in float64 to match the reference rounding of ceil(n * (1 - 0.95)).
//
//nolint:gochecknoglobals // see above
var rmsPercentile = 0.95

// Histogram counts window levels in 0.01 dB buckets.
type Histogram struct {
	buckets [Buckets]uint32
	total   uint64
}

// Bucket maps a window's mean square energy, on the 16-bit scale, to its bucket.
func Bucket(meanSquare float64) int {
	level := int(stepsPerDB * 10. * math.Log10(meanSquare+1e-37))

	return min(max(level, 0), Buckets-1)
}

// Observe counts one window.
func (h *Histogram) Observe(bucket int) {
	h.buckets[bucket]++
	h.total++
}

// Merge pools other into h.
func (h *Histogram) Merge(other *Histogram) {
	for i, count := range other.buckets {
		h.buckets[i] += count
	}

	h.total += other.total
}

// Total is the number of windows counted.
func (h *Histogram) Total() uint64 {
	return h.total
}

// Count is the number of windows in bucket.
func (h *Histogram) Count(bucket int) uint32 {
	return h.buckets[bucket]
}

// Loudest returns the bucket holding the 95th percentile, counting down from the loudest window.
func (h *Histogram) Loudest() (int, bool) {
	if h.total == 0 {
		return 0, false
	}

	upper := int64(math.Ceil(float64(h.total) * (1. - rmsPercentile)))

	bucket := Buckets - 1
	for ; bucket > 0; bucket-- {
		upper -= int64(h.buckets[bucket])
		if upper <= 0 {
			break
		}
	}

	return bucket, true
}

// GainDB returns the adjustment reaching the reference level, or false without any window.
func (h *Histogram) GainDB() (float64, bool) {
	bucket, ok := h.Loudest()
	if !ok {
		return 0, false
	}

	return PinkReferenceDB - float64(bucket)/stepsPerDB, true
}
