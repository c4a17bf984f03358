package preprocess

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

const (
	// ContrastFactor scales each channel's distance from mid-gray.
	ContrastFactor = 1.25
	// FixedThreshold is the luma cutoff for EnhanceThreshold.
	FixedThreshold = 150
	// AdaptiveRatio scales the mean luma to get the EnhanceAdaptive cutoff.
	AdaptiveRatio = 0.95
)

// Enhance applies one pixel filter to img and returns a new image. Only the
// color channels are rewritten; alpha is carried through unchanged.
func Enhance(img image.Image, mode EnhanceMode) (*image.NRGBA, error) {
	switch mode {
	case EnhanceNone, "":
		return imaging.Clone(img), nil
	case EnhanceGrayscale:
		return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
			l := Luma(c)
			return color.NRGBA{R: l, G: l, B: l, A: c.A}
		}), nil
	case EnhanceContrast:
		return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
			return color.NRGBA{R: contrast(c.R), G: contrast(c.G), B: contrast(c.B), A: c.A}
		}), nil
	case EnhanceThreshold:
		return binarize(img, FixedThreshold), nil
	case EnhanceAdaptive:
		return binarize(img, MeanLuma(img)*AdaptiveRatio), nil
	default:
		return nil, fmt.Errorf("preprocess: unknown enhance mode %q", mode)
	}
}

// Luma returns the Rec. 601 luma of c stored the way an 8-bit canvas stores
// it: clamped and rounded half to even.
func Luma(c color.NRGBA) uint8 {
	return ClampByte(0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B))
}

// MeanLuma returns the average stored luma over every pixel of img.
func MeanLuma(img image.Image) float64 {
	nrgba := imaging.Clone(img)
	n := len(nrgba.Pix) / 4
	if n == 0 {
		return 0
	}
	var sum uint64
	for i := 0; i < len(nrgba.Pix); i += 4 {
		p := nrgba.Pix[i : i+4 : i+4]
		sum += uint64(Luma(color.NRGBA{R: p[0], G: p[1], B: p[2], A: p[3]}))
	}
	return float64(sum) / float64(n)
}

// ClampByte limits x to [0, 255] and rounds half to even.
func ClampByte(x float64) uint8 {
	if x <= 0 || math.IsNaN(x) {
		return 0
	}
	if x >= 255 {
		return 255
	}
	return uint8(math.RoundToEven(x))
}

func contrast(v uint8) uint8 {
	return ClampByte((float64(v)-128)*ContrastFactor + 128)
}

// binarize maps each pixel to white when its luma exceeds cutoff and to
// black otherwise.
func binarize(img image.Image, cutoff float64) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		var v uint8
		if float64(Luma(c)) > cutoff {
			v = 255
		}
		return color.NRGBA{R: v, G: v, B: v, A: c.A}
	})
}
