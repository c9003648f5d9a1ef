// Package ape reads and writes APEv2 tags at the end of a file.
package ape

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/farcloser/tropism/internal/tag/id3"
	"github.com/farcloser/tropism/internal/types"
)

const (
	preamble = "APETAGEX"
	// Version2 is the only revision written; 1000 tags are read.
	Version2 = 2000
	// BlockSize is the size of the header and of the footer.
	BlockSize = 32

	flagHeaderPresent = uint32(1) << 31
	flagFooterAbsent  = uint32(1) << 30
	flagIsHeader      = uint32(1) << 29
	structuralFlags   = flagHeaderPresent | flagFooterAbsent | flagIsHeader

	minKeyLen = 2
	maxKeyLen = 255
	itemHead  = 8
)

// Item is a single key/value entry. Flags are carried through untouched.
type Item struct {
	Key   string
	Value []byte
	Flags uint32
}

// Tag is an ordered collection of items.
type Tag struct {
	Items     []Item
	HasHeader bool
	flags     uint32
}

// New returns an empty tag that will be written with both header and footer.
func New() *Tag {
	return &Tag{HasHeader: true}
}

// Location is the byte span [Start, End) a tag occupies, or the insertion point when Start == End.
type Location struct {
	Start int
	End   int
}

// Found reports whether the location spans an existing tag.
func (l Location) Found() bool {
	return l.End > l.Start
}

// Locate finds the tag at the end of data, before any ID3v1 or Lyrics3v2 trailer. When none exists, the returned
// tag is nil and the location is where a new tag belongs.
func Locate(data []byte) (*Tag, Location, error) {
	end := len(data)
	if id3.HasV1(data, end) {
		end -= id3.V1Size
	}

	tag, loc, err := locateAt(data, end)
	if err != nil || tag != nil {
		return tag, loc, err
	}

	if lyrics := id3.Lyrics3Size(data, end); lyrics > 0 {
		if tag, loc, err := locateAt(data, end-lyrics); err != nil || tag != nil {
			return tag, loc, err
		}
	}

	return nil, Location{Start: end, End: end}, nil
}

func locateAt(data []byte, end int) (*Tag, Location, error) {
	if end < BlockSize || string(data[end-BlockSize:end-BlockSize+len(preamble)]) != preamble {
		return nil, Location{}, nil
	}

	footer := data[end-BlockSize : end]
	size := int(binary.LittleEndian.Uint32(footer[12:16]))
	count := int(binary.LittleEndian.Uint32(footer[16:20]))
	flags := binary.LittleEndian.Uint32(footer[20:24])

	if size < BlockSize || size > end {
		return nil, Location{}, fmt.Errorf("%w: ape tag size %d", types.ErrMalformedTag, size)
	}

	start := end - size
	hasHeader := flags&flagHeaderPresent != 0

	if hasHeader {
		start -= BlockSize
		if start < 0 || string(data[start:start+len(preamble)]) != preamble {
			return nil, Location{}, fmt.Errorf("%w: ape header missing", types.ErrMalformedTag)
		}
	}

	itemsStart := end - size

	items, err := parseItems(data[itemsStart:end-BlockSize], count)
	if err != nil {
		return nil, Location{}, err
	}

	return &Tag{
		Items:     items,
		HasHeader: hasHeader,
		flags:     flags &^ structuralFlags,
	}, Location{Start: start, End: end}, nil
}

func parseItems(data []byte, count int) ([]Item, error) {
	items := make([]Item, 0, count)
	pos := 0

	for range count {
		if pos+itemHead > len(data) {
			return nil, fmt.Errorf("%w: truncated ape item", types.ErrMalformedTag)
		}

		valueSize := int(binary.LittleEndian.Uint32(data[pos:]))
		flags := binary.LittleEndian.Uint32(data[pos+4:])
		pos += itemHead

		keyEnd := bytes.IndexByte(data[pos:], 0)
		if keyEnd < minKeyLen || keyEnd > maxKeyLen {
			return nil, fmt.Errorf("%w: invalid ape item key", types.ErrMalformedTag)
		}

		key := string(data[pos : pos+keyEnd])
		pos += keyEnd + 1

		if valueSize < 0 || pos+valueSize > len(data) {
			return nil, fmt.Errorf("%w: ape item %q overflows tag", types.ErrMalformedTag, key)
		}

		items = append(items, Item{
			Key:   key,
			Value: bytes.Clone(data[pos : pos+valueSize]),
			Flags: flags,
		})
		pos += valueSize
	}

	return items, nil
}

func (t *Tag) index(key string) int {
	for i, item := range t.Items {
		if strings.EqualFold(item.Key, key) {
			return i
		}
	}

	return -1
}

// Get returns the value of key, compared case-insensitively.
func (t *Tag) Get(key string) (string, bool) {
	if i := t.index(key); i >= 0 {
		return string(t.Items[i].Value), true
	}

	return "", false
}

// Set replaces the value of key in place, keeping its position and flags, or appends a new UTF-8 item.
func (t *Tag) Set(key, value string) {
	if i := t.index(key); i >= 0 {
		t.Items[i].Value = []byte(value)

		return
	}

	t.Items = append(t.Items, Item{Key: key, Value: []byte(value)})
}

// Remove deletes key and reports whether it was present.
func (t *Tag) Remove(key string) bool {
	i := t.index(key)
	if i < 0 {
		return false
	}

	t.Items = append(t.Items[:i], t.Items[i+1:]...)

	return true
}

func (t *Tag) Len() int {
	return len(t.Items)
}

// Bytes serializes the tag, header first when present, footer last.
func (t *Tag) Bytes() []byte {
	var body bytes.Buffer

	for _, item := range t.Items {
		_ = binary.Write(&body, binary.LittleEndian, uint32(len(item.Value))) //nolint:gosec // bounded by file size
		_ = binary.Write(&body, binary.LittleEndian, item.Flags)
		body.WriteString(item.Key)
		body.WriteByte(0)
		body.Write(item.Value)
	}

	size := uint32(body.Len() + BlockSize) //nolint:gosec // bounded by file size
	count := uint32(len(t.Items))          //nolint:gosec // bounded by file size

	flags := t.flags
	if t.HasHeader {
		flags |= flagHeaderPresent
	}

	out := make([]byte, 0, body.Len()+2*BlockSize)
	if t.HasHeader {
		out = appendBlock(out, size, count, flags|flagIsHeader)
	}

	out = append(out, body.Bytes()...)

	return appendBlock(out, size, count, flags)
}

func appendBlock(out []byte, size, count, flags uint32) []byte {
	out = append(out, preamble...)
	out = binary.LittleEndian.AppendUint32(out, Version2)
	out = binary.LittleEndian.AppendUint32(out, size)
	out = binary.LittleEndian.AppendUint32(out, count)
	out = binary.LittleEndian.AppendUint32(out, flags)

	return append(out, make([]byte, 8)...)
}

// Splice returns data with the span at loc replaced by tag. A nil or empty tag removes the span.
func Splice(data []byte, loc Location, tag *Tag) []byte {
	var encoded []byte
	if tag != nil && tag.Len() > 0 {
		encoded = tag.Bytes()
	}

	out := make([]byte, 0, len(data)-(loc.End-loc.Start)+len(encoded))
	out = append(out, data[:loc.Start]...)
	out = append(out, encoded...)

	return append(out, data[loc.End:]...)
}
