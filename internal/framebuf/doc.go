// Package framebuf owns the shared frame buffer that capture units publish
// into and trackers read from.
//
// Responsibilities: a fixed, zero-initialised byte region holding one slot
// per capture source, synchronised slot writes, and the metadata codec that
// embeds a tick timestamp and a frame index into the pixel strip below each
// image.
// Key types: Layout, Buffer, Metadata.
//
// Slot layout (channel order BGR, row-major, interleaved):
//
//	rows [0, Height)                  image
//	rows [Height, Height+MetadataRows) metadata strip
//
// In the first metadata row the 22 rightmost columns are reserved.
// Columns [W-22, W-19) carry the tickstamp block and [W-19, W-16) the frame
// index block. A block is 3 pixels x 3 channels = 9 bytes: byte 0 is zero
// and bytes 1..8 hold the value in little-endian order.
//
// Dependency rule: no image-processing or capture imports. Both writers and
// readers go through this package so the byte contract is single-sourced.
package framebuf
