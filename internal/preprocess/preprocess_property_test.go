package preprocess

import (
	"bytes"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/MeKo-Tech/scan2sheets/internal/geometry"
)

type cropCase struct {
	W, H int
	Sel  geometry.Rect
}

func genCropCase() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(20, 160),
		gen.IntRange(20, 160),
		gen.IntRange(-40, 200),
		gen.IntRange(-40, 200),
		gen.IntRange(-150, 150),
		gen.IntRange(-150, 150),
	).Map(func(v []interface{}) cropCase {
		return cropCase{
			W:   v[0].(int),
			H:   v[1].(int),
			Sel: geometry.Rect{X: v[2].(int), Y: v[3].(int), W: v[4].(int), H: v[5].(int)},
		}
	})
}

// TestPreprocess_CropComposition verifies that center crop followed by the
// remapped region crop yields exactly the pixels of the original cropped to
// the intersection of both regions.
func TestPreprocess_CropComposition(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("pipeline crop equals direct intersection crop", prop.ForAll(
		func(c cropCase) bool {
			src := coordImage(c.W, c.H)
			center := CenterCrop(c.W, c.H)
			want := geometry.Intersect(center, geometry.Normalize(c.Sel))
			if !want.Croppable() {
				want = center
			}

			sel := c.Sel
			out, _, err := Preprocess(src, Options{Crop: CropCenter}, &sel)
			if err != nil {
				return false
			}
			direct := imaging.Crop(src, want.ImageRect())
			return out.Bounds() == direct.Bounds() && bytes.Equal(out.Pix, direct.Pix)
		},
		genCropCase(),
	))

	properties.Property("region crop without global crop equals clamped selection", prop.ForAll(
		func(c cropCase) bool {
			src := coordImage(c.W, c.H)
			full := geometry.Rect{W: c.W, H: c.H}
			want := geometry.Intersect(full, geometry.Normalize(c.Sel))
			if !want.Croppable() {
				want = full
			}

			sel := c.Sel
			out, _, err := Preprocess(src, Options{Crop: CropNone}, &sel)
			if err != nil {
				return false
			}
			return out.Bounds().Dx() == want.W && out.Bounds().Dy() == want.H &&
				out.NRGBAAt(0, 0) == src.NRGBAAt(want.X, want.Y)
		},
		genCropCase(),
	))

	properties.TestingRun(t)
}
