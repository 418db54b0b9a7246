// Package input reads relative mouse motion from Linux evdev devices.
package input

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Linux input event types and codes (linux/input-event-codes.h).
const (
	EV_SYN = 0x00
	EV_KEY = 0x01
	EV_REL = 0x02

	SYN_REPORT  = 0x00
	SYN_DROPPED = 0x03

	REL_X     = 0x00
	REL_Y     = 0x01
	REL_WHEEL = 0x08
)

// Event is a Linux input event on a 64-bit system:
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type Event struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// EventSize is the encoded size of an Event in bytes.
var EventSize = binary.Size(Event{})

// DecodeEvent decodes one little-endian event from buf.
func DecodeEvent(buf []byte) (Event, error) {
	var ev Event
	if len(buf) < EventSize {
		return ev, fmt.Errorf("short input event: %d bytes", len(buf))
	}
	err := binary.Read(bytes.NewReader(buf[:EventSize]), binary.LittleEndian, &ev)
	return ev, err
}

// ReadEvents reads events from r until it fails or ctx is canceled. It is
// the portable path for a single device or a recorded stream; a clean EOF
// returns nil.
func ReadEvents(ctx context.Context, r io.Reader, events chan<- Event) error {
	buf := make([]byte, EventSize)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read input event: %w", err)
		}

		ev, err := DecodeEvent(buf)
		if err != nil {
			// Skip malformed events
			continue
		}

		select {
		case events <- ev:
		case <-ctx.Done():
			return nil
		}
	}
}
