package fixture

import (
	"encoding/binary"
)

// Payload is the sample data stored in generated M4A files.
const Payload = "not really aac but chunk offsets point here"

// M4A describes a minimal MP4 audio file: one track, one chunk.
type M4A struct {
	// MdatFirst stores the media data before the movie box.
	MdatFirst bool
	// Wide uses a co64 table instead of stco.
	Wide bool
	Udta bool
	Meta bool
	// Items are raw ilst children. A non-nil slice implies Udta and Meta.
	Items [][]byte
	// UdtaFirst places udta before the track inside moov.
	UdtaFirst bool
}

// Bytes renders the file.
func (m M4A) Bytes() []byte {
	ftyp := Box("ftyp", []byte("M4A \x00\x00\x02\x00M4A mp42isom"))
	mdat := Box("mdat", []byte(Payload))

	// The table depends on where mdat lands, which depends on the size of moov, which does not.
	moov := m.moov(0)

	var offset int
	if m.MdatFirst {
		offset = len(ftyp) + 8
	} else {
		offset = len(ftyp) + len(moov) + 8
	}

	moov = m.moov(offset)

	out := append([]byte{}, ftyp...)
	if m.MdatFirst {
		out = append(out, mdat...)
		out = append(out, moov...)
	} else {
		out = append(out, moov...)
		out = append(out, mdat...)
	}

	return out
}

func (m M4A) moov(chunk int) []byte {
	var table []byte
	if m.Wide {
		payload := binary.BigEndian.AppendUint32(make([]byte, 4), 1)
		table = Box("co64", binary.BigEndian.AppendUint64(payload, uint64(chunk))) //nolint:gosec // small
	} else {
		payload := binary.BigEndian.AppendUint32(make([]byte, 4), 1)
		table = Box("stco", binary.BigEndian.AppendUint32(payload, uint32(chunk))) //nolint:gosec // small
	}

	trak := Box("trak", Box("mdia", Box("minf", Box("stbl", table))))

	var udta []byte

	switch {
	case m.Items != nil:
		ilst := Box("ilst", m.Items...)
		udta = Box("udta", Box("meta", make([]byte, 4), Box("hdlr", make([]byte, 25)), ilst))
	case m.Meta:
		udta = Box("udta", Box("meta", make([]byte, 4), Box("hdlr", make([]byte, 25))))
	case m.Udta:
		udta = Box("udta")
	}

	if m.UdtaFirst {
		return Box("moov", udta, trak)
	}

	return Box("moov", trak, udta)
}

// Box renders an atom.
func Box(kind string, parts ...[]byte) []byte {
	size := 8
	for _, part := range parts {
		size += len(part)
	}

	out := binary.BigEndian.AppendUint32(make([]byte, 0, size), uint32(size)) //nolint:gosec // small
	out = append(out, kind...)

	for _, part := range parts {
		out = append(out, part...)
	}

	return out
}

// TextItem renders an ilst text item such as "\xa9nam".
func TextItem(kind, text string) []byte {
	// Type indicator, then locale.
	data := binary.BigEndian.AppendUint32(nil, 1)
	data = append(data, 0, 0, 0, 0)

	return Box(kind, Box("data", append(data, text...)))
}
