package input

import (
	"errors"
	"fmt"
	"os"
)

// OpenDevices opens every path read-only. On failure, files already opened
// are closed again.
func OpenDevices(paths []string) ([]*os.File, error) {
	if len(paths) == 0 {
		return nil, errors.New("no input devices configured")
	}
	files := make([]*os.File, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			CloseDevices(files)
			return nil, fmt.Errorf("open input device: %w", err)
		}
		files = append(files, f)
	}
	return files, nil
}

// CloseDevices closes all files, ignoring errors.
func CloseDevices(files []*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
