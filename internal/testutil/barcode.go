package testutil

import (
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	gozxing "github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/require"
)

// Pad places img on a white canvas with a margin on every side.
func Pad(img image.Image, margin int) *image.NRGBA {
	b := img.Bounds()
	canvas := imaging.New(b.Dx()+2*margin, b.Dy()+2*margin, color.White)
	return imaging.Paste(canvas, img, image.Pt(margin, margin))
}

// QRCode renders text as a 240px QR symbol with a quiet zone.
func QRCode(t testing.TB, text string) *image.NRGBA {
	t.Helper()
	m, err := qrcode.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, 240, 240, nil)
	require.NoError(t, err, "Failed to encode QR code")
	return Pad(m, 20)
}

// Code128 renders text as a Code 128 symbol with a quiet zone.
func Code128(t testing.TB, text string) *image.NRGBA {
	t.Helper()
	m, err := oned.NewCode128Writer().Encode(text, gozxing.BarcodeFormat_CODE_128, 400, 120, nil)
	require.NoError(t, err, "Failed to encode Code 128")
	return Pad(m, 30)
}
