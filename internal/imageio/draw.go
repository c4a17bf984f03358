package imageio

import (
	"image"
	"image/color"
)

// DrawRect draws an axis-aligned rectangle outline into dst, growing inward
// from rect by thickness pixels. Each outline pixel is blended exactly once.
func DrawRect(dst *image.NRGBA, rect image.Rectangle, col color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	rect = rect.Intersect(dst.Bounds())
	if rect.Empty() {
		return
	}
	c := color.NRGBAModel.Convert(col).(color.NRGBA)

	leftEnd := min(rect.Min.X+thickness, rect.Max.X)
	rightStart := max(rect.Max.X-thickness, leftEnd)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		if y < rect.Min.Y+thickness || y >= rect.Max.Y-thickness {
			for x := rect.Min.X; x < rect.Max.X; x++ {
				blend(dst, x, y, c)
			}
			continue
		}
		for x := rect.Min.X; x < leftEnd; x++ {
			blend(dst, x, y, c)
		}
		for x := rightStart; x < rect.Max.X; x++ {
			blend(dst, x, y, c)
		}
	}
}

// blend composites c over the pixel at (x, y) with source-over semantics.
func blend(dst *image.NRGBA, x, y int, c color.NRGBA) {
	i := dst.PixOffset(x, y)
	p := dst.Pix[i : i+4 : i+4]
	a := uint32(c.A)
	if a == 255 {
		p[0], p[1], p[2], p[3] = c.R, c.G, c.B, 255
		return
	}
	dstA := uint32(p[3]) * (255 - a) / 255
	outA := a + dstA
	if outA == 0 {
		p[0], p[1], p[2], p[3] = 0, 0, 0, 0
		return
	}
	mix := func(s, d uint8) uint8 {
		return uint8((uint32(s)*a + uint32(d)*dstA) / outA)
	}
	p[0] = mix(c.R, p[0])
	p[1] = mix(c.G, p[1])
	p[2] = mix(c.B, p[2])
	p[3] = uint8(outA)
}
