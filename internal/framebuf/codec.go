package framebuf

import "encoding/binary"

// Metadata is the pair of scalars embedded under each frame.
type Metadata struct {
	Tickstamp uint64
	Index     uint64
}

// EncodeValue packs v into a block: a zero lead byte followed by the
// little-endian value.
func EncodeValue(v uint64) [BlockBytes]byte {
	var b [BlockBytes]byte
	binary.LittleEndian.PutUint64(b[1:], v)
	return b
}

// DecodeValue is the inverse of EncodeValue. The lead byte is ignored.
func DecodeValue(b [BlockBytes]byte) uint64 {
	return binary.LittleEndian.Uint64(b[1:])
}

// EncodeMetadata stamps the swatch over the reserved area of every metadata
// row of slot and writes both blocks into the first metadata row. slot must
// be exactly l.SlotBytes() long.
func EncodeMetadata(slot []byte, l Layout, md Metadata) {
	start := (l.Width - ReservedColumns) * l.Channels
	for row := 0; row < l.MetadataRows; row++ {
		rowStart := l.ImageBytes() + row*l.RowBytes()
		px := slot[rowStart+start : rowStart+l.RowBytes()]
		for i := 0; i < len(px); i += l.Channels {
			copy(px[i:i+l.Channels], Swatch[:])
		}
	}

	tick := EncodeValue(md.Tickstamp)
	idx := EncodeValue(md.Index)
	copy(slot[l.tickstampOffset():], tick[:])
	copy(slot[l.indexOffset():], idx[:])
}

// DecodeMetadata reads both blocks back out of slot.
func DecodeMetadata(slot []byte, l Layout) Metadata {
	var tick, idx [BlockBytes]byte
	copy(tick[:], slot[l.tickstampOffset():])
	copy(idx[:], slot[l.indexOffset():])
	return Metadata{
		Tickstamp: DecodeValue(tick),
		Index:     DecodeValue(idx),
	}
}
