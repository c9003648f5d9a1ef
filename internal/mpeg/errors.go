package mpeg

import "errors"

var (
	ErrInvalidHeader     = errors.New("invalid frame header")
	ErrChannelOutOfRange = errors.New("channel out of range")
)
