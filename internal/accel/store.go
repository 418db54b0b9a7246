package accel

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrSourceUnavailable is returned when profile text cannot be read or
// written at all. It is distinct from bad values, which never fail.
var ErrSourceUnavailable = errors.New("profile source unavailable")

// SourceError describes an I/O failure on a profile source. It matches
// ErrSourceUnavailable with errors.Is.
type SourceError struct {
	Op   string // "read" or "write"
	Path string
	Err  error
}

func (e *SourceError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s profile: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s profile %s: %v", e.Op, e.Path, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

func (e *SourceError) Is(target error) bool { return target == ErrSourceUnavailable }

// Read parses a profile from r. Only a read failure produces an error.
func Read(r io.Reader) (Profile, []FieldFallback, error) {
	lines, err := readLines(r)
	if err != nil {
		return Defaults(), nil, &SourceError{Op: "read", Err: err}
	}
	p, fallbacks := ParseDetailed(lines)
	return p, fallbacks, nil
}

// LoadFile opens, fully reads and closes the profile at path.
func LoadFile(path string) (Profile, []FieldFallback, error) {
	f, err := os.Open(path)
	if err != nil {
		return Defaults(), nil, &SourceError{Op: "read", Path: path, Err: err}
	}
	defer f.Close()

	lines, err := readLines(f)
	if err != nil {
		return Defaults(), nil, &SourceError{Op: "read", Path: path, Err: err}
	}
	p, fallbacks := ParseDetailed(lines)
	return p, fallbacks, nil
}

func readLines(r io.Reader) ([]string, error) {
	br := bufio.NewReader(r)
	var lines []string
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			lines = append(lines, strings.TrimSuffix(line, "\n"))
		}
		if errors.Is(err, io.EOF) {
			return lines, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// SaveFile writes p to path, one key=value line per key in order. The data
// goes to a temporary file in the same directory first and is renamed over
// path, so a failed save leaves the previous file intact.
func SaveFile(path string, p Profile, order []Key) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return &SourceError{Op: "write", Path: path, Err: err}
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = Encode(tmp, p, order); err != nil {
		return &SourceError{Op: "write", Path: path, Err: err}
	}
	if err = tmp.Chmod(0o644); err != nil {
		return &SourceError{Op: "write", Path: path, Err: err}
	}
	if err = tmp.Close(); err != nil {
		return &SourceError{Op: "write", Path: path, Err: err}
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return &SourceError{Op: "write", Path: path, Err: err}
	}
	return nil
}
