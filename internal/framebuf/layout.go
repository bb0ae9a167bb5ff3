package framebuf

import "fmt"

const (
	// ReservedColumns is the width of the metadata area at the right edge of
	// every metadata row.
	ReservedColumns = 22

	// BlockPixels is the number of pixels spanned by one encoded value.
	BlockPixels = 3

	// BlockBytes is the size of one encoded value (BlockPixels x 3 channels).
	BlockBytes = BlockPixels * Channels

	// Channels is the only supported channel depth; the 9-byte block
	// contract depends on it.
	Channels = 3

	tickstampColumn = ReservedColumns     // counted from the right edge
	indexColumn     = ReservedColumns - 3 // counted from the right edge
)

// Swatch is the decorative colour stamped over the reserved metadata area
// before the blocks are encoded, in stored byte order.
var Swatch = [Channels]byte{255, 128, 0}

// Layout describes the geometry of the shared buffer. It is immutable once
// the buffer is allocated.
type Layout struct {
	Sources      int // number of slots, one per capture source
	Width        int // image width in pixels
	Height       int // image height in pixels
	Channels     int // bytes per pixel; must equal Channels
	MetadataRows int // rows reserved below each image
}

// Validate checks that the layout can hold the metadata contract.
func (l Layout) Validate() error {
	if l.Sources < 1 {
		return fmt.Errorf("layout needs at least one source, got %d", l.Sources)
	}
	if l.Width < ReservedColumns {
		return fmt.Errorf("layout width %d is smaller than the %d reserved metadata columns", l.Width, ReservedColumns)
	}
	if l.Height < 1 {
		return fmt.Errorf("layout height must be positive, got %d", l.Height)
	}
	if l.Channels != Channels {
		return fmt.Errorf("layout channels must be %d, got %d", Channels, l.Channels)
	}
	if l.MetadataRows < 1 {
		return fmt.Errorf("layout needs at least one metadata row, got %d", l.MetadataRows)
	}
	return nil
}

// RowBytes is the number of bytes in one pixel row.
func (l Layout) RowBytes() int { return l.Width * l.Channels }

// ImageBytes is the size of the image region of a slot.
func (l Layout) ImageBytes() int { return l.Height * l.RowBytes() }

// MetadataBytes is the size of the metadata strip of a slot.
func (l Layout) MetadataBytes() int { return l.MetadataRows * l.RowBytes() }

// SlotBytes is the total size of one slot.
func (l Layout) SlotBytes() int { return l.ImageBytes() + l.MetadataBytes() }

// TotalBytes is the size of the whole shared region.
func (l Layout) TotalBytes() int { return l.Sources * l.SlotBytes() }

// SlotOffset returns the byte offset at which slot id begins.
func (l Layout) SlotOffset(id int) int { return id * l.SlotBytes() }

// tickstampOffset and indexOffset are relative to the start of a slot.
func (l Layout) tickstampOffset() int {
	return l.ImageBytes() + (l.Width-tickstampColumn)*l.Channels
}

func (l Layout) indexOffset() int {
	return l.ImageBytes() + (l.Width-indexColumn)*l.Channels
}
