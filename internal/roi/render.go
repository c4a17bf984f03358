package roi

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/scan2sheets/internal/geometry"
	"github.com/MeKo-Tech/scan2sheets/internal/imageio"
)

const (
	// DimOpacity is the opacity of the black wash outside the selection.
	DimOpacity = 0.35

	minBorderWidth   = 3
	borderWidthRatio = 0.003
)

// BorderColor outlines the selection.
var BorderColor = color.NRGBA{R: 31, G: 111, B: 235, A: 242}

// Render draws the overlay for rect on top of base: the whole surface is
// dimmed, the area inside the normalized rect shows the base unchanged, and
// a border marks the edge. It allocates a new image on every call and is a
// pure function of its arguments.
func Render(base image.Image, rect *geometry.Rect) *image.NRGBA {
	src := imaging.Clone(base)
	if rect == nil {
		return src
	}

	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	dst := imaging.Overlay(src, imaging.New(w, h, color.Black), image.Pt(0, 0), DimOpacity)

	inner := rect.ImageRect().Intersect(src.Bounds())
	if inner.Empty() {
		return dst
	}
	dst = imaging.Paste(dst, imaging.Crop(src, inner), inner.Min)
	imageio.DrawRect(dst, inner, BorderColor, BorderWidth(w))
	return dst
}

// BorderWidth returns the outline thickness for a surface of the given width.
func BorderWidth(surfaceWidth int) int {
	return max(minBorderWidth, int(math.Round(float64(surfaceWidth)*borderWidthRatio)))
}
