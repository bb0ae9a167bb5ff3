package capture

import (
	"strconv"
	"strings"
)

// Handle identifies a capture source: a device index or a path/URI.
type Handle struct {
	Device   int
	Path     string
	isDevice bool
}

// ParseHandle treats integer strings as device indices and anything else
// as a path or URI.
func ParseHandle(s string) Handle {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return Handle{Device: n, isDevice: true}
	}
	return Handle{Path: s}
}

// DeviceHandle returns a handle for the given device index.
func DeviceHandle(n int) Handle { return Handle{Device: n, isDevice: true} }

func (h Handle) IsDevice() bool { return h.isDevice }

// IsFile reports whether the handle names a local file. Files are replayed
// at their native rate; devices and network streams are not paced.
func (h Handle) IsFile() bool {
	return !h.isDevice && h.Path != "" && !strings.Contains(h.Path, "://")
}

func (h Handle) String() string {
	if h.isDevice {
		return "device:" + strconv.Itoa(h.Device)
	}
	return h.Path
}
