package barcode

import (
	"context"
	"errors"
	"fmt"
	"image"

	gozxing "github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// GozxingDecoder decodes symbols with the pure-Go ZXing port.
type GozxingDecoder struct {
	opts Options
}

// NewGozxingDecoder returns a decoder for the given options.
func NewGozxingDecoder(opts Options) *GozxingDecoder {
	if len(opts.Formats) == 0 {
		opts.Formats = AllFormats()
	}
	return &GozxingDecoder{opts: opts}
}

// Decode tries each configured reader in turn and returns the first symbol
// found. Reader misses are reported as ErrNotFound.
func (d *GozxingDecoder) Decode(ctx context.Context, img image.Image) (Result, error) {
	if img == nil || img.Bounds().Empty() {
		return Result{}, ErrNotFound
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return Result{}, fmt.Errorf("barcode: binarize: %w", err)
	}

	hints := map[gozxing.DecodeHintType]interface{}{}
	if d.opts.TryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}

	for _, f := range d.opts.Formats {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		reader := newReader(f)
		if reader == nil {
			continue
		}
		res, err := reader.Decode(bmp, hints)
		if err != nil {
			var re gozxing.ReaderException
			if errors.As(err, &re) {
				continue
			}
			return Result{}, fmt.Errorf("barcode: %s reader: %w", f, err)
		}
		if res == nil || res.GetText() == "" {
			continue
		}
		return Result{
			Format: formatFromZXing(res.GetBarcodeFormat()),
			Value:  res.GetText(),
			BBox:   bboxFromPoints(res.GetResultPoints()),
		}, nil
	}
	return Result{}, ErrNotFound
}

func newReader(f Format) gozxing.Reader {
	switch f {
	case FormatQR:
		return qrcode.NewQRCodeReader()
	case FormatCode128:
		return oned.NewCode128Reader()
	case FormatCode39:
		return oned.NewCode39Reader()
	case FormatEAN8:
		return oned.NewEAN8Reader()
	case FormatEAN13:
		return oned.NewEAN13Reader()
	case FormatUPCA:
		return oned.NewUPCAReader()
	case FormatUPCE:
		return oned.NewUPCEReader()
	case FormatITF:
		return oned.NewITFReader()
	case FormatCodabar:
		return oned.NewCodaBarReader()
	default:
		return nil
	}
}

func formatFromZXing(bf gozxing.BarcodeFormat) Format {
	switch bf {
	case gozxing.BarcodeFormat_QR_CODE:
		return FormatQR
	case gozxing.BarcodeFormat_CODE_128:
		return FormatCode128
	case gozxing.BarcodeFormat_CODE_39:
		return FormatCode39
	case gozxing.BarcodeFormat_EAN_8:
		return FormatEAN8
	case gozxing.BarcodeFormat_EAN_13:
		return FormatEAN13
	case gozxing.BarcodeFormat_UPC_A:
		return FormatUPCA
	case gozxing.BarcodeFormat_UPC_E:
		return FormatUPCE
	case gozxing.BarcodeFormat_ITF:
		return FormatITF
	case gozxing.BarcodeFormat_CODABAR:
		return FormatCodabar
	default:
		return FormatUnknown
	}
}

func bboxFromPoints(pts []gozxing.ResultPoint) image.Rectangle {
	if len(pts) == 0 {
		return image.Rectangle{}
	}
	minX, minY := int(pts[0].GetX()), int(pts[0].GetY())
	maxX, maxY := minX, minY
	for _, p := range pts[1:] {
		x, y := int(p.GetX()), int(p.GetY())
		minX, maxX = min(minX, x), max(maxX, x)
		minY, maxY = min(minY, y), max(maxY, y)
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}
