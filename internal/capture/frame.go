package capture

import "time"

// Frame is one captured image. A Frame is never modified after the
// grabber hands it out.
type Frame struct {
	Index     uint64    // per-grabber sequence number, from 0
	Tickstamp uint64    // monotonic tick counter at capture
	Timestamp time.Time // wall clock at capture
	Camera    int
	Source    string
	Width     int
	Height    int
	Image     []byte // packed BGR, Height*Width*3 bytes
}
