package framebuf

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrSlotOutOfRange is returned for a slot id outside [0, Sources).
	ErrSlotOutOfRange = errors.New("slot id out of range")
	// ErrImageSize is returned when an image does not match the slot geometry.
	ErrImageSize = errors.New("image size does not match slot")
)

// Buffer is the shared frame region. Each slot has its own lock; callers
// only ever see copies of slot contents.
type Buffer struct {
	layout Layout
	data   []byte
	locks  []sync.RWMutex
}

// Allocate reserves a zeroed buffer for the given layout.
func Allocate(l Layout) (*Buffer, error) {
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("invalid frame buffer layout: %w", err)
	}
	return &Buffer{
		layout: l,
		data:   make([]byte, l.TotalBytes()),
		locks:  make([]sync.RWMutex, l.Sources),
	}, nil
}

// Layout returns the geometry the buffer was allocated with.
func (b *Buffer) Layout() Layout { return b.layout }

func (b *Buffer) slot(id int) ([]byte, error) {
	if id < 0 || id >= b.layout.Sources {
		return nil, fmt.Errorf("%w: %d (sources=%d)", ErrSlotOutOfRange, id, b.layout.Sources)
	}
	off := b.layout.SlotOffset(id)
	return b.data[off : off+b.layout.SlotBytes() : off+b.layout.SlotBytes()], nil
}

// WriteSlot copies image into slot id and embeds tickstamp and index into
// its metadata strip. The destination is reused in place.
func (b *Buffer) WriteSlot(id int, image []byte, tickstamp, index uint64) error {
	s, err := b.slot(id)
	if err != nil {
		return err
	}
	if len(image) != b.layout.ImageBytes() {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrImageSize, len(image), b.layout.ImageBytes())
	}

	b.locks[id].Lock()
	defer b.locks[id].Unlock()
	copy(s[:b.layout.ImageBytes()], image)
	EncodeMetadata(s, b.layout, Metadata{Tickstamp: tickstamp, Index: index})
	return nil
}

// ReadSlot copies the image of slot id into dst and decodes its metadata
// under the same shared lock, so the pair always comes from one write.
func (b *Buffer) ReadSlot(id int, dst []byte) (Metadata, error) {
	s, err := b.slot(id)
	if err != nil {
		return Metadata{}, err
	}
	if len(dst) != b.layout.ImageBytes() {
		return Metadata{}, fmt.Errorf("%w: got %d bytes, want %d", ErrImageSize, len(dst), b.layout.ImageBytes())
	}
	b.locks[id].RLock()
	defer b.locks[id].RUnlock()
	copy(dst, s[:b.layout.ImageBytes()])
	return DecodeMetadata(s, b.layout), nil
}

// Metadata decodes the tickstamp and index of slot id under the slot lock.
// Pollers use it to detect a new frame without copying the image.
func (b *Buffer) Metadata(id int) (Metadata, error) {
	s, err := b.slot(id)
	if err != nil {
		return Metadata{}, err
	}
	b.locks[id].RLock()
	defer b.locks[id].RUnlock()
	return DecodeMetadata(s, b.layout), nil
}
