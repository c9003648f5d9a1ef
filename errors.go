package tropism

import (
	"errors"

	"github.com/farcloser/tropism/internal/types"
)

var (
	ErrMalformedStream       = types.ErrMalformedStream
	ErrNoFrames              = types.ErrNoFrames
	ErrOutOfRangeGain        = types.ErrOutOfRangeGain
	ErrMonoChannel           = types.ErrMonoChannel
	ErrDecodeFailure         = types.ErrDecodeFailure
	ErrUnsupportedSampleRate = types.ErrUnsupportedSampleRate
	ErrNotEnoughSamples      = types.ErrNotEnoughSamples
	ErrNoUndoRecord          = types.ErrNoUndoRecord
	ErrTagWriteFailure       = types.ErrTagWriteFailure
	ErrMalformedTag          = types.ErrMalformedTag
	ErrAlbumAggregation      = types.ErrAlbumAggregation
	ErrNotLosslessCapable    = types.ErrNotLosslessCapable
	ErrUnsupportedFormat     = types.ErrUnsupportedFormat
)

// FileError ties a failure to the file it happened on.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

func (e *FileError) Unwrap() error {
	return e.Err
}

func fileError(path string, err error) error {
	if err == nil {
		return nil
	}

	var existing *FileError
	if errors.As(err, &existing) {
		return err
	}

	return &FileError{Path: path, Err: err}
}
