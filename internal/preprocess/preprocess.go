// Package preprocess prepares a captured photograph for recognition: an
// optional centered crop, an optional region crop, then one pixel filter.
package preprocess

import (
	"errors"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/scan2sheets/internal/geometry"
	"github.com/MeKo-Tech/scan2sheets/internal/imageio"
)

// CenterCropFraction is the share of each dimension kept by CropCenter.
const CenterCropFraction = 0.8

// ErrNilImage is returned when no source image is supplied.
var ErrNilImage = errors.New("preprocess: source image is nil")

// Plan records the crop geometry chosen for one run.
type Plan struct {
	// Global is the centered crop in source coordinates (the full image when
	// cropping is off).
	Global geometry.Rect `json:"global"`
	// Region is the region crop relative to Global, present only when the
	// selection survived clamping.
	Region *geometry.Rect `json:"region,omitempty"`
}

// Final returns the crop in source coordinates.
func (p Plan) Final() geometry.Rect {
	if p.Region == nil {
		return p.Global
	}
	return p.Region.Translate(p.Global.X, p.Global.Y)
}

// CenterCrop returns the centered crop rectangle for a w x h image. Each
// kept extent is at least one pixel.
func CenterCrop(w, h int) geometry.Rect {
	cw := max(1, int(math.Floor(float64(w)*CenterCropFraction)))
	ch := max(1, int(math.Floor(float64(h)*CenterCropFraction)))
	return geometry.Rect{
		X: (w - cw) / 2,
		Y: (h - ch) / 2,
		W: cw,
		H: ch,
	}
}

// PlanCrop works out the crops for an image of the given size. The selection
// is in the coordinates of the original, uncropped image.
func PlanCrop(size geometry.Size, mode CropMode, selection *geometry.Rect) Plan {
	plan := Plan{Global: geometry.Rect{W: size.W, H: size.H}}
	if mode == CropCenter {
		plan.Global = CenterCrop(size.W, size.H)
	}
	if selection == nil {
		return plan
	}

	r := geometry.Normalize(*selection).Translate(-plan.Global.X, -plan.Global.Y)
	r = geometry.ClampToBounds(r, geometry.Size{W: plan.Global.W, H: plan.Global.H})
	if r.Croppable() {
		plan.Region = &r
	}
	return plan
}

// Preprocess applies the crops and filter described by opts to src. The
// selection is read once by value; src is never modified.
func Preprocess(src image.Image, opts Options, selection *geometry.Rect) (*image.NRGBA, Plan, error) {
	if src == nil {
		return nil, Plan{}, ErrNilImage
	}
	if src.Bounds().Empty() {
		return nil, Plan{}, &imageio.Error{Operation: "preprocess", Err: imageio.ErrEmptyImage}
	}

	var sel *geometry.Rect
	if selection != nil {
		snapshot := *selection
		sel = &snapshot
	}

	plan := PlanCrop(geometry.SizeOf(src), opts.Crop, sel)
	final := plan.Final().ImageRect().Add(src.Bounds().Min)
	out, err := Enhance(imaging.Crop(src, final), opts.Enhance)
	if err != nil {
		return nil, plan, err
	}
	return out, plan, nil
}

// PreprocessPNG runs Preprocess and encodes the result as PNG.
func PreprocessPNG(src image.Image, opts Options, selection *geometry.Rect) ([]byte, error) {
	out, _, err := Preprocess(src, opts, selection)
	if err != nil {
		return nil, err
	}
	return imageio.EncodePNG(out)
}
