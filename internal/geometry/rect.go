// Package geometry holds the pure coordinate math shared by the selector and
// the preprocessing pipeline. All rectangles live in backing-pixel space.
package geometry

import (
	"fmt"
	"image"
	"math"
)

const (
	// MinSelectionSize is the smallest extent (both axes) a drag must span to
	// become a committed selection.
	MinSelectionSize = 40

	// MinCropSize is the smallest clamped extent the preprocessing pipeline
	// accepts for a region crop; anything smaller skips the crop.
	MinCropSize = 10
)

// Point is an integer point in backing-pixel coordinates.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// PointF is a point in display (client) coordinates.
type PointF struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RectF is the on-screen rectangle of a displayed surface.
type RectF struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Size is the pixel size of a backing buffer.
type Size struct {
	W int `json:"w"`
	H int `json:"h"`
}

// SizeOf returns the size of an image's bounds.
func SizeOf(img image.Image) Size {
	b := img.Bounds()
	return Size{W: b.Dx(), H: b.Dy()}
}

// Rect is an axis-aligned rectangle. W and H may be negative while a drag is
// in progress; Normalize produces the canonical form.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

func (r Rect) String() string {
	return fmt.Sprintf("%d,%d %dx%d", r.X, r.Y, r.W, r.H)
}

// Empty reports whether the rectangle covers no pixels.
func (r Rect) Empty() bool {
	return r.W == 0 || r.H == 0
}

// Confirmable reports whether the normalized rectangle is large enough to be
// committed as a selection.
func (r Rect) Confirmable() bool {
	n := Normalize(r)
	return n.W >= MinSelectionSize && n.H >= MinSelectionSize
}

// Croppable reports whether the rectangle is large enough to be used as a
// region crop.
func (r Rect) Croppable() bool {
	return r.W >= MinCropSize && r.H >= MinCropSize
}

// ImageRect converts the normalized rectangle to an image.Rectangle.
func (r Rect) ImageRect() image.Rectangle {
	n := Normalize(r)
	return image.Rect(n.X, n.Y, n.X+n.W, n.Y+n.H)
}

// FromImageRect converts an image.Rectangle to a Rect.
func FromImageRect(ir image.Rectangle) Rect {
	ir = ir.Canon()
	return Rect{X: ir.Min.X, Y: ir.Min.Y, W: ir.Dx(), H: ir.Dy()}
}

// Translate shifts the origin by (dx, dy).
func (r Rect) Translate(dx, dy int) Rect {
	return Rect{X: r.X + dx, Y: r.Y + dy, W: r.W, H: r.H}
}

// Normalize mirrors negative extents so that W and H are non-negative while
// covering the same region.
func Normalize(r Rect) Rect {
	if r.W < 0 {
		r.X += r.W
		r.W = -r.W
	}
	if r.H < 0 {
		r.Y += r.H
		r.H = -r.H
	}
	return r
}

// MapDisplayToBacking converts a point in display coordinates to backing
// pixels. X and Y scale independently since the surface may be stretched.
// A degenerate display rectangle maps everything to the origin.
func MapDisplayToBacking(p PointF, display RectF, backing Size) Point {
	if display.Width <= 0 || display.Height <= 0 {
		return Point{}
	}
	sx := float64(backing.W) / display.Width
	sy := float64(backing.H) / display.Height
	return Point{
		X: int(math.Floor((p.X - display.X) * sx)),
		Y: int(math.Floor((p.Y - display.Y) * sy)),
	}
}

// ClampToBounds pulls r inside a canvas of the given size. The origin is
// clamped to [0, bound-1] and the extent to [1, bound], then the extent is
// shrunk until origin+extent fits. Extent lost to a negative origin is
// subtracted first, so a rectangle that overlaps the canvas clamps to exactly
// the overlap.
func ClampToBounds(r Rect, bounds Size) Rect {
	if bounds.W <= 0 || bounds.H <= 0 {
		return Rect{}
	}
	x, w := clampAxis(r.X, r.W, bounds.W)
	y, h := clampAxis(r.Y, r.H, bounds.H)
	return Rect{X: x, Y: y, W: w, H: h}
}

func clampAxis(origin, extent, bound int) (int, int) {
	if origin < 0 {
		extent += origin
	}
	origin = clampInt(origin, 0, bound-1)
	extent = clampInt(extent, 1, bound)
	if origin+extent > bound {
		extent = bound - origin
	}
	return origin, extent
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Intersect returns the overlap of two normalized rectangles, or the zero
// Rect when they do not overlap.
func Intersect(a, b Rect) Rect {
	ir := a.ImageRect().Intersect(b.ImageRect())
	if ir.Empty() {
		return Rect{}
	}
	return FromImageRect(ir)
}
