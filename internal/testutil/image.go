package testutil

import (
	"image"
	"image/color"
	"image/draw"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// TextImageConfig configures GenerateTextImage.
type TextImageConfig struct {
	// Text is drawn centered; newlines start new lines.
	Text       string
	Width      int
	Height     int
	Background color.Color
	Foreground color.Color
	FontFace   font.Face
	// Scale enlarges the rendered text by nearest-neighbor resampling so the
	// 7x13 bitmap font is legible to an OCR engine.
	Scale int
}

// DefaultTextImageConfig returns black text on white at 320x120.
func DefaultTextImageConfig() TextImageConfig {
	return TextImageConfig{
		Text:       "Sample Text",
		Width:      320,
		Height:     120,
		Background: color.White,
		Foreground: color.Black,
		FontFace:   basicfont.Face7x13,
		Scale:      1,
	}
}

// GenerateTextImage renders cfg.Text with a bitmap font.
func GenerateTextImage(cfg TextImageConfig) *image.NRGBA {
	scale := max(cfg.Scale, 1)
	w, h := cfg.Width/scale, cfg.Height/scale
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: cfg.Background}, image.Point{}, draw.Src)

	drawer := &font.Drawer{Dst: img, Src: &image.Uniform{C: cfg.Foreground}, Face: cfg.FontFace}
	lines := strings.Split(cfg.Text, "\n")
	lineHeight := cfg.FontFace.Metrics().Height.Ceil()
	startY := (h - len(lines)*lineHeight) / 2
	for i, line := range lines {
		width := font.MeasureString(cfg.FontFace, line).Ceil()
		drawer.Dot = fixed.P((w-width)/2, startY+(i+1)*lineHeight-cfg.FontFace.Metrics().Descent.Ceil())
		drawer.DrawString(line)
	}

	if scale == 1 {
		return img
	}
	return imaging.Resize(img, w*scale, h*scale, imaging.NearestNeighbor)
}

// Solid returns a w x h image filled with c.
func Solid(w, h int, c color.Color) *image.NRGBA {
	return imaging.New(w, h, c)
}

// Gradient returns a w x h image whose channels vary with position, so every
// pixel differs from its neighbors.
func Gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8((x * 255) / max(w-1, 1)),
				G: uint8((y * 255) / max(h-1, 1)),
				B: uint8(((x + y) * 7) % 256),
				A: 255,
			})
		}
	}
	return img
}

// Luma returns the integer BT.601 luma of c, rounded.
func Luma(c color.NRGBA) uint8 {
	return uint8((299*int(c.R) + 587*int(c.G) + 114*int(c.B) + 500) / 1000)
}
