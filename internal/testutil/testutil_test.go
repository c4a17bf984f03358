package testutil

import (
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProjectRoot(t *testing.T) {
	root, err := GetProjectRoot()
	require.NoError(t, err)
	assert.True(t, FileExists(filepath.Join(root, "go.mod")))
}

func TestWriteAndLoadPNG(t *testing.T) {
	dir := t.TempDir()
	path := WritePNG(t, dir, "nested/solid.png", Solid(8, 4, color.Black))

	assert.True(t, FileExists(path))
	img := LoadPNG(t, path)
	assert.Equal(t, 8, img.Bounds().Dx())
	assert.Equal(t, 4, img.Bounds().Dy())
	assert.False(t, FileExists(filepath.Join(dir, "missing.png")))
}

func TestGenerateTextImage(t *testing.T) {
	cfg := DefaultTextImageConfig()
	cfg.Text = "HELLO"
	cfg.Scale = 2
	img := GenerateTextImage(cfg)

	require.Equal(t, 320, img.Bounds().Dx())
	require.Equal(t, 120, img.Bounds().Dy())

	dark := 0
	for y := range img.Bounds().Dy() {
		for x := range img.Bounds().Dx() {
			if Luma(img.NRGBAAt(x, y)) < 128 {
				dark++
			}
		}
	}
	assert.Positive(t, dark, "text pixels are drawn")
	assert.Equal(t, color.NRGBA{255, 255, 255, 255}, img.NRGBAAt(0, 0), "corners keep the background")
}

func TestGradientPixelsDiffer(t *testing.T) {
	img := Gradient(16, 16)
	assert.NotEqual(t, img.NRGBAAt(0, 0), img.NRGBAAt(1, 0))
	assert.NotEqual(t, img.NRGBAAt(0, 0), img.NRGBAAt(0, 1))
}

func TestLuma(t *testing.T) {
	assert.Equal(t, uint8(255), Luma(color.NRGBA{255, 255, 255, 255}))
	assert.Equal(t, uint8(0), Luma(color.NRGBA{0, 0, 0, 255}))
	assert.Equal(t, uint8(76), Luma(color.NRGBA{255, 0, 0, 255}))
}

func TestBarcodeFixtures(t *testing.T) {
	qr := QRCode(t, "X")
	assert.Equal(t, 280, qr.Bounds().Dx())
	assert.Equal(t, color.NRGBA{255, 255, 255, 255}, qr.NRGBAAt(0, 0))

	c := Code128(t, "PKG1")
	assert.Equal(t, 460, c.Bounds().Dx())
	assert.Equal(t, 180, c.Bounds().Dy())
}
