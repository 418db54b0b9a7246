//go:build !linux

package input

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// ReadDevices needs evdev and is only available on Linux.
func ReadDevices(ctx context.Context, files []*os.File, events chan<- Event) error {
	return fmt.Errorf("reading input devices: %w", errors.ErrUnsupported)
}
