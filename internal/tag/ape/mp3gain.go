package ape

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/farcloser/tropism/internal/types"
)

// Keys shared with mp3gain and ReplayGain aware players.
const (
	KeyUndo           = "MP3GAIN_UNDO"
	KeyMinMax         = "MP3GAIN_MINMAX"
	KeyAlbumMinMax    = "MP3GAIN_ALBUM_MINMAX"
	KeyTrackGain      = "REPLAYGAIN_TRACK_GAIN"
	KeyTrackPeak      = "REPLAYGAIN_TRACK_PEAK"
	KeyAlbumGain      = "REPLAYGAIN_ALBUM_GAIN"
	KeyAlbumPeak      = "REPLAYGAIN_ALBUM_PEAK"
	wrapFlag          = 'W'
	noWrapFlag        = 'N'
	undoFields        = 3
	minMaxFields      = 2
	decibelUnitSuffix = " dB"
)

// FormatUndo encodes a record as mp3gain does: "+002,+002,N".
func FormatUndo(rec types.UndoRecord) string {
	flag := noWrapFlag
	if rec.Wrap {
		flag = wrapFlag
	}

	return fmt.Sprintf("%+04d,%+04d,%c", rec.Left, rec.Right, flag)
}

// ParseUndo decodes an MP3GAIN_UNDO value.
func ParseUndo(value string) (types.UndoRecord, error) {
	var rec types.UndoRecord

	fields := strings.Split(strings.TrimSpace(value), ",")
	if len(fields) != undoFields {
		return rec, fmt.Errorf("%w: %s %q", types.ErrMalformedTag, KeyUndo, value)
	}

	left, err := strconv.Atoi(fields[0])
	if err != nil {
		return rec, fmt.Errorf("%w: %s %q", types.ErrMalformedTag, KeyUndo, value)
	}

	right, err := strconv.Atoi(fields[1])
	if err != nil {
		return rec, fmt.Errorf("%w: %s %q", types.ErrMalformedTag, KeyUndo, value)
	}

	rec.Left = left
	rec.Right = right
	rec.Wrap = strings.EqualFold(fields[2], string(wrapFlag))

	return rec, nil
}

// FormatMinMax encodes a gain range: "089,201".
func FormatMinMax(mm types.MinMax) string {
	return fmt.Sprintf("%03d,%03d", mm.Min, mm.Max)
}

// ParseMinMax decodes an MP3GAIN_MINMAX value.
func ParseMinMax(value string) (types.MinMax, error) {
	var mm types.MinMax

	fields := strings.Split(strings.TrimSpace(value), ",")
	if len(fields) != minMaxFields {
		return mm, fmt.Errorf("%w: %s %q", types.ErrMalformedTag, KeyMinMax, value)
	}

	low, err := strconv.ParseUint(fields[0], 10, 8)
	if err != nil {
		return mm, fmt.Errorf("%w: %s %q", types.ErrMalformedTag, KeyMinMax, value)
	}

	high, err := strconv.ParseUint(fields[1], 10, 8)
	if err != nil {
		return mm, fmt.Errorf("%w: %s %q", types.ErrMalformedTag, KeyMinMax, value)
	}

	mm.Min = uint8(low)
	mm.Max = uint8(high)

	return mm, nil
}

// FormatGain renders a ReplayGain adjustment: "-3.450000 dB".
func FormatGain(db float64) string {
	return fmt.Sprintf("%+.6f dB", db)
}

// FormatPeak renders a peak amplitude: "0.987654".
func FormatPeak(peak float64) string {
	return fmt.Sprintf("%.6f", peak)
}

// ParseGain accepts "+1.23 dB", "1.23dB" and "1.23".
func ParseGain(value string) (float64, error) {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) >= 2 && strings.EqualFold(trimmed[len(trimmed)-2:], "db") {
		trimmed = strings.TrimSpace(trimmed[:len(trimmed)-2])
	}

	return strconv.ParseFloat(trimmed, 64) //nolint:wrapcheck
}

// Undo returns the undo record stored in the tag, if any.
func (t *Tag) Undo() (types.UndoRecord, bool, error) {
	value, ok := t.Get(KeyUndo)
	if !ok {
		return types.UndoRecord{}, false, nil
	}

	rec, err := ParseUndo(value)

	return rec, err == nil, err
}

// RecordEdit stores rec and, unless a range is already known, the range the edits started from. A range
// written here follows the record, one stored beforehand precedes it. A record that reverts nothing is cleared.
func (t *Tag) RecordEdit(rec types.UndoRecord, original types.MinMax) {
	if rec.IsZero() {
		t.ClearUndo()

		return
	}

	t.Set(KeyUndo, FormatUndo(rec))
	t.SetMinMax(original)
}

// ClearUndo drops the undo record, and the original range when it was written along with the record.
func (t *Tag) ClearUndo() {
	if undo, minMax := t.index(KeyUndo), t.index(KeyMinMax); undo >= 0 && minMax > undo {
		t.Remove(KeyMinMax)
	}

	t.Remove(KeyUndo)
}

// MinMax returns the recorded original gain range, if any.
func (t *Tag) MinMax() (types.MinMax, bool, error) {
	value, ok := t.Get(KeyMinMax)
	if !ok {
		return types.MinMax{}, false, nil
	}

	mm, err := ParseMinMax(value)

	return mm, err == nil, err
}

// SetMinMax records the original range only once; later edits keep the first value.
func (t *Tag) SetMinMax(mm types.MinMax) {
	if _, ok := t.Get(KeyMinMax); ok {
		return
	}

	t.Set(KeyMinMax, FormatMinMax(mm))
}

// SetAlbumMinMax records the gain range of the whole album.
func (t *Tag) SetAlbumMinMax(mm types.MinMax) {
	t.Set(KeyAlbumMinMax, FormatMinMax(mm))
}

// ReplayGain returns the stored analysis values. Unparseable values are skipped.
func (t *Tag) ReplayGain() types.ReplayGainValues {
	var values types.ReplayGainValues

	read := func(key string, parse func(string) (float64, error)) *float64 {
		raw, ok := t.Get(key)
		if !ok {
			return nil
		}

		v, err := parse(raw)
		if err != nil {
			return nil
		}

		return &v
	}

	parsePeak := func(s string) (float64, error) {
		return strconv.ParseFloat(strings.TrimSpace(s), 64) //nolint:wrapcheck
	}

	values.TrackGain = read(KeyTrackGain, ParseGain)
	values.TrackPeak = read(KeyTrackPeak, parsePeak)
	values.AlbumGain = read(KeyAlbumGain, ParseGain)
	values.AlbumPeak = read(KeyAlbumPeak, parsePeak)

	return values
}

// SetReplayGain stores every value that is set.
func (t *Tag) SetReplayGain(values types.ReplayGainValues) {
	if values.TrackGain != nil {
		t.Set(KeyTrackGain, FormatGain(*values.TrackGain))
	}

	if values.TrackPeak != nil {
		t.Set(KeyTrackPeak, FormatPeak(*values.TrackPeak))
	}

	if values.AlbumGain != nil {
		t.Set(KeyAlbumGain, FormatGain(*values.AlbumGain))
	}

	if values.AlbumPeak != nil {
		t.Set(KeyAlbumPeak, FormatPeak(*values.AlbumPeak))
	}
}

// ClearReplayGain drops every analysis value and the album range.
func (t *Tag) ClearReplayGain() {
	for _, key := range []string{KeyTrackGain, KeyTrackPeak, KeyAlbumGain, KeyAlbumPeak, KeyAlbumMinMax} {
		t.Remove(key)
	}
}
