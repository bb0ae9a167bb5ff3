// Package pipeline wires grabbers, trackers and event sinks around one
// shared frame buffer.
//
// Grabbers run free. Each tracker polls its slot at a fixed interval and
// processes a frame only when the slot holds a new index. Node transitions
// and LED toggles become events.Event values fanned out to every sink. The
// writer queue is drained by a FrameWriter, or discarded when none is set.
package pipeline
