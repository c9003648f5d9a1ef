package ape_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farcloser/tropism/internal/fixture"
	"github.com/farcloser/tropism/internal/tag/ape"
	"github.com/farcloser/tropism/internal/types"
)

func TestEmptyFileHasNoTag(t *testing.T) {
	t.Parallel()

	data := fixture.MP3{Layout: fixture.MPEG1, Frames: 2}.Bytes()

	tag, loc, err := ape.Locate(data)
	require.NoError(t, err)
	assert.Nil(t, tag)
	assert.False(t, loc.Found())
	assert.Equal(t, len(data), loc.Start)
}

func TestByteLayout(t *testing.T) {
	t.Parallel()

	tag := ape.New()
	tag.Set("MP3GAIN_UNDO", "+002,+002,N")

	encoded := tag.Bytes()

	// Header, one item (8 + key + NUL + value), footer.
	require.Len(t, encoded, 32+8+len("MP3GAIN_UNDO")+1+len("+002,+002,N")+32)

	header := encoded[:32]
	footer := encoded[len(encoded)-32:]

	assert.Equal(t, "APETAGEX", string(header[:8]))
	assert.Equal(t, "APETAGEX", string(footer[:8]))
	assert.Equal(t, uint32(ape.Version2), binary.LittleEndian.Uint32(footer[8:12]))
	// Size counts items and footer, not the header.
	assert.Equal(t, uint32(len(encoded)-32), binary.LittleEndian.Uint32(footer[12:16]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(footer[16:20]))
	assert.Equal(t, uint32(1)<<31, binary.LittleEndian.Uint32(footer[20:24]))
	assert.Equal(t, uint32(1)<<31|uint32(1)<<29, binary.LittleEndian.Uint32(header[20:24]))
	assert.Equal(t, make([]byte, 8), footer[24:32])

	item := encoded[32 : len(encoded)-32]
	assert.Equal(t, uint32(len("+002,+002,N")), binary.LittleEndian.Uint32(item[:4]))
	assert.Equal(t, "MP3GAIN_UNDO\x00+002,+002,N", string(item[8:]))
}

func TestRoundTripAtEOF(t *testing.T) {
	t.Parallel()

	data := fixture.MP3{Layout: fixture.MPEG1, Frames: 2}.Bytes()
	_, loc, err := ape.Locate(data)
	require.NoError(t, err)

	tag := ape.New()
	tag.Set("Artist", "someone")
	tag.Set(ape.KeyUndo, "-003,-003,N")

	written := ape.Splice(data, loc, tag)
	require.True(t, bytes.HasPrefix(written, data))

	read, readLoc, err := ape.Locate(written)
	require.NoError(t, err)
	require.NotNil(t, read)
	assert.Equal(t, len(data), readLoc.Start)
	assert.Equal(t, len(written), readLoc.End)
	assert.True(t, read.HasHeader)

	value, ok := read.Get("artist")
	require.True(t, ok)
	assert.Equal(t, "someone", value)

	// Rewriting an unchanged tag is byte identical.
	assert.Equal(t, written, ape.Splice(written, readLoc, read))
}

func TestTagBeforeID3v1(t *testing.T) {
	t.Parallel()

	data := fixture.MP3{Layout: fixture.MPEG2, Frames: 2, ID3v1: true}.Bytes()

	_, loc, err := ape.Locate(data)
	require.NoError(t, err)
	assert.Equal(t, len(data)-128, loc.Start)

	tag := ape.New()
	tag.Set(ape.KeyMinMax, "150,150")

	written := ape.Splice(data, loc, tag)
	assert.Equal(t, data[len(data)-128:], written[len(written)-128:])

	read, readLoc, err := ape.Locate(written)
	require.NoError(t, err)
	require.NotNil(t, read)
	assert.Equal(t, len(written)-128, readLoc.End)

	// Removing the only item removes the whole tag.
	read.Remove(ape.KeyMinMax)
	assert.Equal(t, data, ape.Splice(written, readLoc, read))
}

func TestOrderAndFlagsPreserved(t *testing.T) {
	t.Parallel()

	tag := ape.New()
	tag.Items = append(tag.Items,
		ape.Item{Key: "Cover", Value: []byte{0, 1, 2}, Flags: 1 << 1},
		ape.Item{Key: "Title", Value: []byte("x")},
	)
	tag.Set(ape.KeyUndo, "+001,+001,N")

	data := append([]byte("audio"), tag.Bytes()...)

	read, loc, err := ape.Locate(data)
	require.NoError(t, err)

	read.Set("cover", "\x03")
	read.Set(ape.KeyUndo, "+002,+002,W")

	reread, _, err := ape.Locate(ape.Splice(data, loc, read))
	require.NoError(t, err)

	keys := make([]string, 0, reread.Len())
	for _, item := range reread.Items {
		keys = append(keys, item.Key)
	}

	assert.Equal(t, []string{"Cover", "Title", ape.KeyUndo}, keys)
	assert.Equal(t, uint32(1<<1), reread.Items[0].Flags)
	assert.Equal(t, []byte{3}, reread.Items[0].Value)
}

func TestFooterOnlyTag(t *testing.T) {
	t.Parallel()

	tag := ape.New()
	tag.HasHeader = false
	tag.Set("Title", "x")

	encoded := tag.Bytes()
	assert.NotEqual(t, "APETAGEX", string(encoded[:8]))

	read, loc, err := ape.Locate(append([]byte("audio"), encoded...))
	require.NoError(t, err)
	assert.False(t, read.HasHeader)
	assert.Equal(t, 5, loc.Start)
}

func TestMalformedTag(t *testing.T) {
	t.Parallel()

	tag := ape.New()
	tag.Set("Title", "x")

	encoded := tag.Bytes()

	oversized := bytes.Clone(encoded)
	binary.LittleEndian.PutUint32(oversized[len(oversized)-32+12:], 1<<20)

	_, _, err := ape.Locate(oversized)
	require.ErrorIs(t, err, types.ErrMalformedTag)

	miscounted := bytes.Clone(encoded)
	binary.LittleEndian.PutUint32(miscounted[len(miscounted)-32+16:], 5)

	_, _, err = ape.Locate(miscounted)
	require.ErrorIs(t, err, types.ErrMalformedTag)

	headless := bytes.Clone(encoded)
	copy(headless, "XXXXXXXX")

	_, _, err = ape.Locate(headless)
	require.ErrorIs(t, err, types.ErrMalformedTag)
}
