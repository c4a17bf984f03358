// Package roi implements interactive region-of-interest selection over a
// loaded source image.
package roi

import (
	"image"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/scan2sheets/internal/geometry"
)

// State is the selector's interaction state.
type State int

const (
	// StateIdle means selection mode is off.
	StateIdle State = iota
	// StateArmed means selection mode is on and no drag is in progress.
	StateArmed
	// StateDragging means the pointer is down and the rectangle follows it.
	StateDragging
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateDragging:
		return "dragging"
	default:
		return "unknown"
	}
}

// Outcome tells the caller what a pointer or clear action did.
type Outcome int

const (
	// OutcomeIgnored means the event was not applicable in the current state.
	OutcomeIgnored Outcome = iota
	// OutcomeUpdated means the in-progress rectangle changed.
	OutcomeUpdated
	// OutcomeCommitted means a drag ended with a confirmable rectangle.
	OutcomeCommitted
	// OutcomeTooSmall means a drag ended below the confirmation threshold
	// and the rectangle was discarded.
	OutcomeTooSmall
	// OutcomeCleared means a committed rectangle was discarded.
	OutcomeCleared
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeUpdated:
		return "updated"
	case OutcomeCommitted:
		return "committed"
	case OutcomeTooSmall:
		return "too_small"
	case OutcomeCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// RenderFunc receives a freshly rendered overlay frame whenever the visible
// rectangle changes.
type RenderFunc func(frame *image.NRGBA)

// Selector owns the current selection rectangle in backing-pixel space.
type Selector struct {
	mu       sync.Mutex
	enabled  bool
	dragging bool
	start    geometry.Point
	rect     *geometry.Rect
	base     *image.NRGBA
	onRender RenderFunc
}

// NewSelector creates an idle selector. onRender may be nil.
func NewSelector(onRender RenderFunc) *Selector {
	return &Selector{onRender: onRender}
}

// Load stores a snapshot of img as the base image and clears any selection.
// Selection mode is left as it was.
func (s *Selector) Load(img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.base = imaging.Clone(img)
	s.rect = nil
	s.dragging = false
	s.renderLocked()
}

// Loaded reports whether a base image is present.
func (s *Selector) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base != nil
}

// Base returns the loaded base image, or nil.
func (s *Selector) Base() *image.NRGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base
}

// Enable turns selection mode on or off. Turning it off abandons a drag in
// progress; the previous selection was already replaced when that drag began.
// A committed rectangle with no drag in progress is kept.
func (s *Selector) Enable(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enabled = on
	if !on && s.dragging {
		s.dragging = false
		s.rect = nil
		s.renderLocked()
	}
}

// State returns the current interaction state.
func (s *Selector) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Selector) stateLocked() State {
	switch {
	case !s.enabled:
		return StateIdle
	case s.dragging:
		return StateDragging
	default:
		return StateArmed
	}
}

// PointerDown starts a drag at p. It is ignored unless selection mode is on
// and an image is loaded.
func (s *Selector) PointerDown(p geometry.Point) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.base == nil {
		return OutcomeIgnored
	}
	s.dragging = true
	s.start = p
	s.rect = &geometry.Rect{X: p.X, Y: p.Y}
	s.renderLocked()
	return OutcomeUpdated
}

// PointerMove stretches the in-progress rectangle to p. The extent may go
// negative and is not normalized until the drag ends.
func (s *Selector) PointerMove(p geometry.Point) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || !s.dragging {
		return OutcomeIgnored
	}
	if s.rect == nil {
		s.rect = &geometry.Rect{X: s.start.X, Y: s.start.Y}
	}
	s.rect.W = p.X - s.start.X
	s.rect.H = p.Y - s.start.Y
	s.renderLocked()
	return OutcomeUpdated
}

// PointerUp ends the drag. The normalized rectangle is committed when both
// extents reach geometry.MinSelectionSize; otherwise it is discarded.
func (s *Selector) PointerUp() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || !s.dragging {
		return OutcomeIgnored
	}
	s.dragging = false

	var n geometry.Rect
	if s.rect != nil {
		n = geometry.Normalize(*s.rect)
	}
	outcome := OutcomeCommitted
	if !n.Confirmable() {
		s.rect = nil
		outcome = OutcomeTooSmall
	} else {
		s.rect = &n
	}
	s.renderLocked()
	return outcome
}

// Clear discards the committed rectangle. Selection mode and drag state are
// not touched.
func (s *Selector) Clear() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rect == nil {
		return OutcomeIgnored
	}
	s.rect = nil
	s.renderLocked()
	return OutcomeCleared
}

// Reset returns the selector to its initial state, dropping the base image.
func (s *Selector) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enabled = false
	s.dragging = false
	s.start = geometry.Point{}
	s.rect = nil
	s.base = nil
}

// Snapshot returns a copy of the committed rectangle. A drag in progress is
// not a committed selection.
func (s *Selector) Snapshot() (geometry.Rect, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rect == nil || s.dragging {
		return geometry.Rect{}, false
	}
	return *s.rect, true
}

// Frame renders the current state.
func (s *Selector) Frame() *image.NRGBA {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.base == nil {
		return nil
	}
	return Render(s.base, s.rect)
}

func (s *Selector) renderLocked() {
	if s.onRender == nil || s.base == nil {
		return
	}
	s.onRender(Render(s.base, s.rect))
}
