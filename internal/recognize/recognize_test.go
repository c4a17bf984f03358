package recognize

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/scan2sheets/internal/barcode"
	"github.com/MeKo-Tech/scan2sheets/internal/geometry"
	"github.com/MeKo-Tech/scan2sheets/internal/preprocess"
	"github.com/MeKo-Tech/scan2sheets/internal/textocr"
)

type fakeEngine struct {
	text     string
	err      error
	calls    int
	lang     string
	progress []float64
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Recognize(_ context.Context, img []byte, lang string, onProgress textocr.ProgressFunc) (string, error) {
	f.calls++
	f.lang = lang
	for _, p := range f.progress {
		textocr.Report(onProgress, p)
	}
	return f.text, f.err
}

func found(value string) barcode.Decoder {
	return barcode.DecoderFunc(func(context.Context, image.Image) (barcode.Result, error) {
		return barcode.Result{Format: barcode.FormatQR, Value: value}, nil
	})
}

func notFound() barcode.Decoder {
	return barcode.DecoderFunc(func(context.Context, image.Image) (barcode.Result, error) {
		return barcode.Result{}, barcode.ErrNotFound
	})
}

func faulty() barcode.Decoder {
	return barcode.DecoderFunc(func(context.Context, image.Image) (barcode.Result, error) {
		return barcode.Result{}, errors.New("decoder crashed")
	})
}

type recorder struct {
	percents []int
	statuses []string
}

func (r *recorder) Report(p int, s string) {
	r.percents = append(r.percents, p)
	r.statuses = append(r.statuses, s)
}

func testImage() image.Image {
	return imaging.New(64, 48, color.White)
}

func TestAnalyze_AutoBarcodeShortCircuits(t *testing.T) {
	eng := &fakeEngine{text: "ignored"}
	o := New(found("INV-42"), eng)

	res, err := o.Analyze(context.Background(), testImage(), ModeAuto, "eng", nil)
	require.NoError(t, err)
	assert.Equal(t, SourceBarcode, res.SourceType)
	assert.Equal(t, "INV-42", res.Value)
	assert.Equal(t, "qr", res.Format)
	assert.Zero(t, eng.calls, "text engine must not run when a barcode decoded")
}

func TestAnalyze_AutoFallsBackToText(t *testing.T) {
	eng := &fakeEngine{text: "  Hello \r\n world  ", progress: []float64{0, 0.5, 1}}
	o := New(notFound(), eng)
	rec := &recorder{}

	res, err := o.Analyze(context.Background(), testImage(), ModeAuto, "ara+eng", rec)
	require.NoError(t, err)
	assert.Equal(t, SourceHandwriting, res.SourceType)
	assert.Equal(t, "Hello \n world", res.Value)
	assert.Equal(t, 1, eng.calls)
	assert.Equal(t, "ara+eng", eng.lang)

	assert.Equal(t, []int{2, 5, 10, 50, 90, 100}, rec.percents)
	assert.IsIncreasing(t, rec.percents)
	assert.Equal(t, "Trying barcode/QR...", rec.statuses[0])
	assert.Equal(t, "No barcode found. Starting OCR...", rec.statuses[1])
	assert.Equal(t, "OCR 50%", rec.statuses[3])
	assert.Equal(t, "Text extracted successfully.", rec.statuses[5])
}

func TestAnalyze_AutoDecoderFaultFallsBack(t *testing.T) {
	eng := &fakeEngine{text: "fallback"}
	res, err := New(faulty(), eng).Analyze(context.Background(), testImage(), ModeAuto, "eng", nil)
	require.NoError(t, err)
	assert.Equal(t, SourceHandwriting, res.SourceType)
	assert.Equal(t, "fallback", res.Value)
}

func TestAnalyze_AutoBothFail(t *testing.T) {
	_, err := New(notFound(), &fakeEngine{text: "   "}).Analyze(context.Background(), testImage(), ModeAuto, "eng", nil)
	assert.ErrorIs(t, err, ErrBothFailed)

	engineErr := errors.New("engine down")
	_, err = New(notFound(), &fakeEngine{err: engineErr}).Analyze(context.Background(), testImage(), ModeAuto, "eng", nil)
	assert.ErrorIs(t, err, ErrBothFailed)
	assert.ErrorIs(t, err, engineErr)
}

func TestAnalyze_BarcodeMode(t *testing.T) {
	eng := &fakeEngine{text: "text"}

	res, err := New(found("123"), eng).Analyze(context.Background(), testImage(), ModeBarcode, "", nil)
	require.NoError(t, err)
	assert.Equal(t, Result{SourceType: SourceBarcode, Value: "123", Format: "qr", Duration: res.Duration}, res)

	_, err = New(notFound(), eng).Analyze(context.Background(), testImage(), ModeBarcode, "", nil)
	assert.ErrorIs(t, err, ErrNoBarcodeFound)

	_, err = New(faulty(), eng).Analyze(context.Background(), testImage(), ModeBarcode, "", nil)
	assert.ErrorIs(t, err, ErrNoBarcodeFound)
	assert.Zero(t, eng.calls)
}

func TestAnalyze_TextMode(t *testing.T) {
	dec := barcode.DecoderFunc(func(context.Context, image.Image) (barcode.Result, error) {
		t.Fatal("barcode decoder must not run in text mode")
		return barcode.Result{}, nil
	})

	res, err := New(dec, &fakeEngine{text: "note"}).Analyze(context.Background(), testImage(), ModeText, "eng", nil)
	require.NoError(t, err)
	assert.Equal(t, SourceHandwriting, res.SourceType)

	_, err = New(dec, &fakeEngine{text: "\n"}).Analyze(context.Background(), testImage(), ModeText, "eng", nil)
	assert.ErrorIs(t, err, ErrEmptyRecognition)

	engineErr := errors.New("tesseract missing")
	_, err = New(dec, &fakeEngine{err: engineErr}).Analyze(context.Background(), testImage(), ModeText, "eng", nil)
	assert.ErrorIs(t, err, engineErr)
	assert.NotErrorIs(t, err, ErrEmptyRecognition)
}

func TestAnalyze_CompletionAlwaysReported(t *testing.T) {
	rec := &recorder{}
	_, err := New(notFound(), nil).Analyze(context.Background(), testImage(), ModeBarcode, "", rec)
	require.Error(t, err)
	require.NotEmpty(t, rec.percents)
	assert.Equal(t, 100, rec.percents[len(rec.percents)-1])
	assert.Contains(t, rec.statuses[len(rec.statuses)-1], "Error:")
}

func TestAnalyze_UnknownMode(t *testing.T) {
	_, err := New(found("x"), nil).Analyze(context.Background(), testImage(), Mode("fax"), "", nil)
	assert.Error(t, err)
}

func TestRun_PreprocessesBeforeRecognition(t *testing.T) {
	var seen image.Rectangle
	dec := barcode.DecoderFunc(func(_ context.Context, img image.Image) (barcode.Result, error) {
		seen = img.Bounds()
		return barcode.Result{Value: "ok"}, nil
	})

	sel := geometry.Rect{X: 10, Y: 5, W: 30, H: 20}
	a, err := New(dec, nil).Run(context.Background(), Request{
		Image:      testImage(),
		Preprocess: preprocess.Options{Crop: preprocess.CropNone, Enhance: preprocess.EnhanceNone},
		Selection:  &sel,
		Mode:       ModeBarcode,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 30, seen.Dx())
	assert.Equal(t, 20, seen.Dy())
	assert.Equal(t, "ok", a.Value)
	require.NotNil(t, a.Processed)
	assert.Equal(t, sel, a.Plan.Final())
}

func TestOCRPercent(t *testing.T) {
	assert.Equal(t, 10, OCRPercent(0))
	assert.Equal(t, 50, OCRPercent(0.5))
	assert.Equal(t, 90, OCRPercent(1))
	assert.Equal(t, 90, OCRPercent(7))
	assert.Equal(t, 10, OCRPercent(-1))
	assert.Equal(t, 35, OCRPercent(0.318))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeAuto, m)

	m, err = ParseMode(" Barcode ")
	require.NoError(t, err)
	assert.Equal(t, ModeBarcode, m)

	_, err = ParseMode("ocr")
	assert.Error(t, err)
}

func TestParseSourceType(t *testing.T) {
	st, err := ParseSourceType("handwriting")
	require.NoError(t, err)
	assert.Equal(t, SourceHandwriting, st)

	_, err = ParseSourceType("manual")
	assert.Error(t, err)
}
