package geometry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSelectionTooSmall is returned for a selection below MinSelectionSize on
// either axis.
var ErrSelectionTooSmall = errors.New("selection too small")

// ParseRect parses "x,y,w,h" into a normalized rectangle. Negative extents
// are accepted and normalized; a zero extent is rejected.
func ParseRect(s string) (Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Rect{}, fmt.Errorf("invalid rectangle %q: want x,y,w,h", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Rect{}, fmt.Errorf("invalid rectangle %q: %w", s, err)
		}
		v[i] = n
	}
	r := Normalize(Rect{X: v[0], Y: v[1], W: v[2], H: v[3]})
	if r.Empty() {
		return Rect{}, fmt.Errorf("invalid rectangle %q: zero width or height", s)
	}
	return r, nil
}

// ParseSelection parses a region selection given as "x,y,w,h". It applies the
// same minimum as an interactive drag.
func ParseSelection(s string) (Rect, error) {
	r, err := ParseRect(s)
	if err != nil {
		return Rect{}, err
	}
	if !r.Confirmable() {
		return Rect{}, fmt.Errorf("%w: %dx%d, need at least %dx%d",
			ErrSelectionTooSmall, r.W, r.H, MinSelectionSize, MinSelectionSize)
	}
	return r, nil
}
