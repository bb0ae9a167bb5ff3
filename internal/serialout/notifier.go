// Package serialout forwards tracker events to a controller board over a
// serial line, one ASCII line per event:
//
//	N <camera> <node-id|->   node transition, "-" when the subject left every node
//	L <camera> <0|1>         LED toggled
package serialout

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"

	"go.bug.st/serial"

	"github.com/bevandicjuraj/CamCorder/internal/events"
)

// Port is the write side of a serial port.
type Port interface {
	io.Writer
	io.Closer
}

// Opener opens a port at path.
type Opener func(path string, mode *serial.Mode) (Port, error)

func openSerial(path string, mode *serial.Mode) (Port, error) {
	return serial.Open(path, mode)
}

// Notifier writes event lines to a Port. It is safe for concurrent use.
type Notifier struct {
	mu    sync.Mutex
	port  Port
	lines uint64
}

// Open opens the serial device at path.
func Open(path string, opts PortOptions) (*Notifier, error) {
	return OpenWith(openSerial, path, opts)
}

// OpenWith opens path through open.
func OpenWith(open Opener, path string, opts PortOptions) (*Notifier, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return NewNotifier(port), nil
}

// NewNotifier wraps an already open port.
func NewNotifier(port Port) *Notifier {
	return &Notifier{port: port}
}

// FormatLine renders ev as a protocol line including the trailing newline.
func FormatLine(ev events.Event) (string, error) {
	cam := strconv.Itoa(ev.Camera)
	switch ev.Kind {
	case events.KindNode:
		node := "-"
		if ev.NodeID != nil {
			node = strconv.Itoa(*ev.NodeID)
		}
		return "N " + cam + " " + node + "\n", nil
	case events.KindLED:
		state := "0"
		if ev.LED {
			state = "1"
		}
		return "L " + cam + " " + state + "\n", nil
	}
	return "", fmt.Errorf("serialout: unsupported event kind %q", ev.Kind)
}

// Publish writes the line for ev.
func (n *Notifier) Publish(ctx context.Context, ev events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := FormatLine(ev)
	if err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, err := io.WriteString(n.port, line); err != nil {
		return fmt.Errorf("serialout: write %q: %w", line, err)
	}
	n.lines++
	return nil
}

// Lines returns how many lines were written.
func (n *Notifier) Lines() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lines
}

func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.port.Close()
}
