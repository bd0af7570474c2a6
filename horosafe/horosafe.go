// Package horosafe provides the I/O guards shared by the recorder and the
// development collector: path traversal checks for stored screenshots and
// bounded reads of HTTP bodies.
package horosafe

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// MaxResponseBody is the default cap for collector response reads (1 MiB).
const MaxResponseBody int64 = 1 << 20

// ErrPathTraversal is returned when a user-supplied path escapes its base.
var ErrPathTraversal = errors.New("horosafe: path traversal detected")

// ErrTooLarge is returned by LimitedReadAll when the limit is exceeded.
var ErrTooLarge = errors.New("horosafe: body too large")

// SafePath joins base and name and rejects any result outside base.
// name must be a single path element: separators and the elements "."
// and ".." are refused. Dots inside a name ("v1..2.jpg") are allowed.
func SafePath(base, name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", ErrPathTraversal
	}
	cleanBase := filepath.Clean(base)
	joined := filepath.Join(cleanBase, name)
	if filepath.Dir(joined) != cleanBase {
		return "", ErrPathTraversal
	}
	return joined, nil
}

// LimitedReadAll reads at most maxBytes from r.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}
