// Package mp4 stores ReplayGain values as iTunes freeform items in MP4 audio files.
package mp4

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	gomp4 "github.com/abema/go-mp4"

	"github.com/farcloser/tropism/internal/tag/ape"
	"github.com/farcloser/tropism/internal/types"
)

// Freeform item names, under the com.apple.iTunes namespace.
const (
	KeyTrackGain = "replaygain_track_gain"
	KeyTrackPeak = "replaygain_track_peak"
	KeyAlbumGain = "replaygain_album_gain"
	KeyAlbumPeak = "replaygain_album_peak"

	namespace = "com.apple.iTunes"

	boxHeader      = 8
	largeBoxHeader = 16
	fullBoxHeader  = 4
	// Well-known type of UTF-8 text in a data atom.
	utf8Type = 1
)

type span struct {
	offset int
	size   int
	header int
	toEOF  bool
}

func newSpan(info *gomp4.BoxInfo) *span {
	return &span{
		offset: int(info.Offset),     //nolint:gosec // bounded by the buffer
		size:   int(info.Size),       //nolint:gosec // bounded by the buffer
		header: int(info.HeaderSize), //nolint:gosec // 8 or 16
		toEOF:  info.ExtendToEOF,
	}
}

func (s *span) end() int {
	return s.offset + s.size
}

func (s *span) content() int {
	return s.offset + s.header
}

type chunkTable struct {
	*span
	wide bool
}

type layout struct {
	moov, udta, meta, ilst, mdat *span
	tables                       []chunkTable
}

func pathIs(path gomp4.BoxPath, want ...gomp4.BoxType) bool {
	if len(path) != len(want) {
		return false
	}

	for i := range path {
		if path[i] != want[i] {
			return false
		}
	}

	return true
}

func scan(data []byte) (*layout, error) {
	var (
		l    layout
		moov = gomp4.BoxTypeMoov()
		udta = gomp4.BoxTypeUdta()
		meta = gomp4.BoxTypeMeta()
	)

	_, err := gomp4.ReadBoxStructure(bytes.NewReader(data), func(h *gomp4.ReadHandle) (any, error) {
		info := h.BoxInfo

		switch {
		case pathIs(h.Path, gomp4.BoxTypeMdat()):
			if l.mdat == nil {
				l.mdat = newSpan(&info)
			}
		case pathIs(h.Path, moov):
			l.moov = newSpan(&info)

			return h.Expand()
		case pathIs(h.Path, moov, udta):
			l.udta = newSpan(&info)

			return h.Expand()
		case pathIs(h.Path, moov, udta, meta):
			l.meta = newSpan(&info)

			return h.Expand()
		case pathIs(h.Path, moov, udta, meta, gomp4.BoxTypeIlst()):
			l.ilst = newSpan(&info)
		case info.Type == gomp4.BoxTypeTrak(), info.Type == gomp4.BoxTypeMdia(),
			info.Type == gomp4.BoxTypeMinf(), info.Type == gomp4.BoxTypeStbl():
			return h.Expand()
		case info.Type == gomp4.BoxTypeStco():
			l.tables = append(l.tables, chunkTable{span: newSpan(&info)})
		case info.Type == gomp4.BoxTypeCo64():
			l.tables = append(l.tables, chunkTable{span: newSpan(&info), wide: true})
		}

		return nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrMalformedTag, err)
	}

	if l.moov == nil {
		return nil, fmt.Errorf("%w: no moov box", types.ErrMalformedTag)
	}

	return &l, nil
}

// Read returns the ReplayGain values stored in data. Unparseable values are skipped.
func Read(data []byte) (types.ReplayGainValues, error) {
	l, err := scan(data)
	if err != nil {
		return types.ReplayGainValues{}, err
	}

	if l.ilst == nil {
		return types.ReplayGainValues{}, nil
	}

	_, values, err := splitItems(data[l.ilst.content():l.ilst.end()])

	return values, err
}

// Write returns data with every set value stored. Values left nil keep their current content.
func Write(data []byte, values types.ReplayGainValues) ([]byte, error) {
	return rewrite(data, func(current types.ReplayGainValues) types.ReplayGainValues {
		if values.TrackGain != nil {
			current.TrackGain = values.TrackGain
		}

		if values.TrackPeak != nil {
			current.TrackPeak = values.TrackPeak
		}

		if values.AlbumGain != nil {
			current.AlbumGain = values.AlbumGain
		}

		if values.AlbumPeak != nil {
			current.AlbumPeak = values.AlbumPeak
		}

		return current
	})
}

// Delete returns data without any ReplayGain item.
func Delete(data []byte) ([]byte, error) {
	return rewrite(data, func(types.ReplayGainValues) types.ReplayGainValues {
		return types.ReplayGainValues{}
	})
}

func rewrite(data []byte, update func(types.ReplayGainValues) types.ReplayGainValues) ([]byte, error) {
	l, err := scan(data)
	if err != nil {
		return nil, err
	}

	var (
		kept    [][]byte
		current types.ReplayGainValues
	)

	if l.ilst != nil {
		if kept, current, err = splitItems(data[l.ilst.content():l.ilst.end()]); err != nil {
			return nil, err
		}
	}

	next := update(current)
	if l.ilst == nil && next.IsEmpty() {
		return data, nil
	}

	ilst := encodeBox("ilst", append(kept, encodeItems(next)...)...)

	var (
		start, end int
		insert     []byte
		ancestors  []*span
	)

	switch {
	case l.ilst != nil:
		start, end, insert = l.ilst.offset, l.ilst.end(), ilst
		ancestors = []*span{l.moov, l.udta, l.meta}
	case l.meta != nil:
		start, end, insert = l.meta.end(), l.meta.end(), ilst
		ancestors = []*span{l.moov, l.udta, l.meta}
	case l.udta != nil:
		start, end, insert = l.udta.end(), l.udta.end(), encodeMeta(ilst)
		ancestors = []*span{l.moov, l.udta}
	default:
		start, end, insert = l.moov.end(), l.moov.end(), encodeBox("udta", encodeMeta(ilst))
		ancestors = []*span{l.moov}
	}

	diff := len(insert) - (end - start)

	out := make([]byte, 0, len(data)+diff)
	out = append(out, data[:start]...)
	out = append(out, insert...)
	out = append(out, data[end:]...)

	for _, ancestor := range ancestors {
		resize(out, ancestor, diff)
	}

	if diff != 0 && l.mdat != nil && l.mdat.offset > l.moov.offset {
		for _, table := range l.tables {
			if err = shiftChunks(out, table, start, diff); err != nil {
				return nil, err
			}
		}
	}

	return out, nil
}

// resize adds diff to the size of a box located before the edit.
func resize(data []byte, box *span, diff int) {
	switch {
	case box.toEOF:
	case box.header == largeBoxHeader:
		field := data[box.offset+boxHeader:]
		binary.BigEndian.PutUint64(field, binary.BigEndian.Uint64(field)+uint64(diff)) //nolint:gosec // sign wraps
	default:
		field := data[box.offset:]
		binary.BigEndian.PutUint32(field, binary.BigEndian.Uint32(field)+uint32(diff)) //nolint:gosec // sign wraps
	}
}

// shiftChunks moves every chunk offset that pointed at or past the edit.
func shiftChunks(data []byte, table chunkTable, at, diff int) error {
	offset := table.offset
	if offset >= at {
		offset += diff
	}

	pos := offset + table.header + fullBoxHeader
	end := offset + table.size

	if pos+4 > end {
		return fmt.Errorf("%w: truncated chunk offset table", types.ErrMalformedTag)
	}

	count := int(binary.BigEndian.Uint32(data[pos:]))
	pos += 4

	width := 4
	if table.wide {
		width = 8
	}

	if pos+count*width > end {
		return fmt.Errorf("%w: chunk offset table overflows its box", types.ErrMalformedTag)
	}

	for range count {
		if table.wide {
			if value := binary.BigEndian.Uint64(data[pos:]); value >= uint64(at) { //nolint:gosec // positive
				binary.BigEndian.PutUint64(data[pos:], value+uint64(diff)) //nolint:gosec // sign wraps
			}
		} else if value := binary.BigEndian.Uint32(data[pos:]); value >= uint32(at) { //nolint:gosec // positive
			binary.BigEndian.PutUint32(data[pos:], value+uint32(diff)) //nolint:gosec // sign wraps
		}

		pos += width
	}

	return nil
}

// splitItems separates ReplayGain freeform items from everything else in an ilst payload.
func splitItems(payload []byte) ([][]byte, types.ReplayGainValues, error) {
	var (
		kept   [][]byte
		values types.ReplayGainValues
	)

	for pos := 0; pos < len(payload); {
		size, header, kind, err := readHeader(payload[pos:])
		if err != nil {
			return nil, values, err
		}

		item := payload[pos : pos+size]
		pos += size

		if kind == "----" {
			if mean, name, value, ok := parseFreeform(item[header:]); ok && mean == namespace {
				if target := valueSlot(&values, name); target != nil {
					if parsed, err := ape.ParseGain(value); err == nil {
						*target = &parsed
					}

					continue
				}
			}
		}

		kept = append(kept, item)
	}

	return kept, values, nil
}

func valueSlot(values *types.ReplayGainValues, name string) **float64 {
	switch strings.ToLower(name) {
	case KeyTrackGain:
		return &values.TrackGain
	case KeyTrackPeak:
		return &values.TrackPeak
	case KeyAlbumGain:
		return &values.AlbumGain
	case KeyAlbumPeak:
		return &values.AlbumPeak
	}

	return nil
}

func readHeader(data []byte) (int, int, string, error) {
	if len(data) < boxHeader {
		return 0, 0, "", fmt.Errorf("%w: truncated atom", types.ErrMalformedTag)
	}

	size := uint64(binary.BigEndian.Uint32(data))
	header := boxHeader

	switch size {
	case 0:
		size = uint64(len(data))
	case 1:
		if len(data) < largeBoxHeader {
			return 0, 0, "", fmt.Errorf("%w: truncated atom", types.ErrMalformedTag)
		}

		size = binary.BigEndian.Uint64(data[boxHeader:])
		header = largeBoxHeader
	}

	if size < uint64(header) || size > uint64(len(data)) { //nolint:gosec // positive
		return 0, 0, "", fmt.Errorf("%w: atom size %d", types.ErrMalformedTag, size)
	}

	return int(size), header, string(data[4:8]), nil //nolint:gosec // bounded by len(data)
}

func parseFreeform(payload []byte) (string, string, string, bool) {
	var (
		mean, name, value string
		hasMean, hasName  bool
		hasValue          bool
	)

	for pos := 0; pos < len(payload); {
		size, header, kind, err := readHeader(payload[pos:])
		if err != nil {
			return "", "", "", false
		}

		body := payload[pos+header : pos+size]
		pos += size

		switch {
		case kind == "mean" && len(body) >= fullBoxHeader:
			mean, hasMean = string(body[fullBoxHeader:]), true
		case kind == "name" && len(body) >= fullBoxHeader:
			name, hasName = string(body[fullBoxHeader:]), true
		case kind == "data" && len(body) >= 2*fullBoxHeader:
			value, hasValue = string(body[2*fullBoxHeader:]), true
		}
	}

	return mean, name, value, hasMean && hasName && hasValue
}

func encodeItems(values types.ReplayGainValues) [][]byte {
	var items [][]byte

	add := func(name string, value *float64, format func(float64) string) {
		if value != nil {
			items = append(items, encodeFreeform(name, format(*value)))
		}
	}

	add(KeyTrackGain, values.TrackGain, formatGain)
	add(KeyTrackPeak, values.TrackPeak, ape.FormatPeak)
	add(KeyAlbumGain, values.AlbumGain, formatGain)
	add(KeyAlbumPeak, values.AlbumPeak, ape.FormatPeak)

	return items
}

// Players reading iTunes atoms expect two decimals.
func formatGain(db float64) string {
	return fmt.Sprintf("%+.2f dB", db)
}

func encodeFreeform(name, value string) []byte {
	var data []byte

	// Type indicator, then locale.
	data = binary.BigEndian.AppendUint32(data, utf8Type)
	data = binary.BigEndian.AppendUint32(data, 0)
	data = append(data, value...)

	return encodeBox("----",
		encodeBox("mean", make([]byte, fullBoxHeader), []byte(namespace)),
		encodeBox("name", make([]byte, fullBoxHeader), []byte(name)),
		encodeBox("data", data),
	)
}

func encodeMeta(ilst []byte) []byte {
	hdlr := make([]byte, 0, 25)
	hdlr = append(hdlr, make([]byte, 8)...)
	hdlr = append(hdlr, "mdirappl"...)
	hdlr = append(hdlr, make([]byte, 9)...)

	return encodeBox("meta", make([]byte, fullBoxHeader), encodeBox("hdlr", hdlr), ilst)
}

func encodeBox(kind string, parts ...[]byte) []byte {
	size := boxHeader
	for _, part := range parts {
		size += len(part)
	}

	out := make([]byte, 0, size)
	out = binary.BigEndian.AppendUint32(out, uint32(size)) //nolint:gosec // metadata boxes are small
	out = append(out, kind...)

	for _, part := range parts {
		out = append(out, part...)
	}

	return out
}
