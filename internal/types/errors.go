package types

import "errors"

var (
	ErrMalformedStream       = errors.New("malformed mpeg stream")
	ErrNoFrames              = errors.New("no mpeg layer III frames found")
	ErrOutOfRangeGain        = errors.New("gain out of range")
	ErrMonoChannel           = errors.New("channel-specific gain on a mono stream")
	ErrDecodeFailure         = errors.New("decode failure")
	ErrUnsupportedSampleRate = errors.New("unsupported sample rate")
	ErrNotEnoughSamples      = errors.New("not enough samples to analyze")
	ErrNoUndoRecord          = errors.New("no undo record")
	ErrTagWriteFailure       = errors.New("tag write failure")
	ErrMalformedTag          = errors.New("malformed tag")
	ErrAlbumAggregation      = errors.New("album aggregation failed")
	ErrNotLosslessCapable    = errors.New("format does not support lossless gain")
	ErrUnsupportedFormat     = errors.New("unsupported format")
)
