package support

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"

	"github.com/cucumber/godog"
	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/scan2sheets/internal/imageio"
	"github.com/MeKo-Tech/scan2sheets/internal/preprocess"
	"github.com/MeKo-Tech/scan2sheets/internal/testutil"
)

// RegisterImageSteps registers steps that create and inspect images.
func (testCtx *TestContext) RegisterImageSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a (\d+)x(\d+) gradient image "([^"]*)"$`, testCtx.aGradientImage)
	sc.Step(`^a (\d+)x(\d+) image "([^"]*)" with gray level (\d+) on the left and (\d+) on the right$`, testCtx.aSplitGrayImage)
	sc.Step(`^the image "([^"]*)" should be (\d+)x(\d+)$`, testCtx.theImageShouldBe)
	sc.Step(`^every pixel of "([^"]*)" should be the luma of "([^"]*)"$`, testCtx.everyPixelShouldBeLuma)
	sc.Step(`^the left half of "([^"]*)" should be (\d+) and the right half (\d+)$`, testCtx.theHalvesShouldBe)
}

func (testCtx *TestContext) addImage(name string, img image.Image) error {
	path := filepath.Join(testCtx.TempDir, name+".png")
	if err := imageio.SavePNG(path, img); err != nil {
		return err
	}
	testCtx.Images[name] = path
	testCtx.Sources[name] = img
	return nil
}

func (testCtx *TestContext) aGradientImage(w, h int, name string) error {
	return testCtx.addImage(name, testutil.Gradient(w, h))
}

func (testCtx *TestContext) aSplitGrayImage(w, h int, name string, left, right int) error {
	img := imaging.New(w, h, color.NRGBA{uint8(right), uint8(right), uint8(right), 255})
	img = imaging.Paste(img, imaging.New(w/2, h, color.NRGBA{uint8(left), uint8(left), uint8(left), 255}), image.Point{})
	return testCtx.addImage(name, img)
}

// outputImage loads an image written by a command. Names without an
// extension refer to files in the scenario directory.
func (testCtx *TestContext) outputImage(name string) (*image.NRGBA, error) {
	img, _, err := imageio.LoadFile(filepath.Join(testCtx.TempDir, name))
	if err != nil {
		return nil, err
	}
	return imaging.Clone(img), nil
}

func (testCtx *TestContext) theImageShouldBe(name string, w, h int) error {
	img, err := testCtx.outputImage(name)
	if err != nil {
		return err
	}
	if got := img.Bounds().Size(); got.X != w || got.Y != h {
		return fmt.Errorf("expected %dx%d, got %dx%d", w, h, got.X, got.Y)
	}
	return nil
}

func (testCtx *TestContext) everyPixelShouldBeLuma(name, source string) error {
	out, err := testCtx.outputImage(name)
	if err != nil {
		return err
	}
	src, ok := testCtx.Sources[source]
	if !ok {
		return fmt.Errorf("unknown source image %q", source)
	}
	orig := imaging.Clone(src)
	if out.Bounds().Size() != orig.Bounds().Size() {
		return fmt.Errorf("size mismatch: %v vs %v", out.Bounds().Size(), orig.Bounds().Size())
	}
	for y := 0; y < orig.Bounds().Dy(); y++ {
		for x := 0; x < orig.Bounds().Dx(); x++ {
			want := preprocess.Luma(orig.NRGBAAt(x, y))
			got := out.NRGBAAt(x, y)
			if got.R != want || got.G != want || got.B != want {
				return fmt.Errorf("pixel (%d,%d): got %v, want luma %d", x, y, got, want)
			}
		}
	}
	return nil
}

func (testCtx *TestContext) theHalvesShouldBe(name string, left, right int) error {
	out, err := testCtx.outputImage(name)
	if err != nil {
		return err
	}
	w, h := out.Bounds().Dx(), out.Bounds().Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			want := right
			if x < w/2 {
				want = left
			}
			if got := out.NRGBAAt(x, y); int(got.R) != want || got.R != got.G || got.G != got.B {
				return fmt.Errorf("pixel (%d,%d): got %v, want %d", x, y, got, want)
			}
		}
	}
	return nil
}
