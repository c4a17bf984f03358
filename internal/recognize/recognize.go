// Package recognize turns a preprocessed image into a captured value by
// running the barcode decoder, the text engine, or both in sequence.
package recognize

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/MeKo-Tech/scan2sheets/internal/barcode"
	"github.com/MeKo-Tech/scan2sheets/internal/geometry"
	"github.com/MeKo-Tech/scan2sheets/internal/imageio"
	"github.com/MeKo-Tech/scan2sheets/internal/preprocess"
	"github.com/MeKo-Tech/scan2sheets/internal/textocr"
)

// Mode selects which recognizers run.
type Mode string

const (
	ModeAuto    Mode = "auto"
	ModeBarcode Mode = "barcode"
	ModeText    Mode = "text"
)

// Modes lists the accepted recognition modes.
var Modes = []Mode{ModeAuto, ModeBarcode, ModeText}

// ParseMode parses a mode name; empty selects ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeBarcode, ModeText:
		return m, nil
	default:
		return "", fmt.Errorf("unknown recognition mode %q (want auto, barcode or text)", s)
	}
}

// SourceType records which recognizer produced a value.
type SourceType string

const (
	SourceBarcode     SourceType = "BARCODE"
	SourceHandwriting SourceType = "HANDWRITING"
)

// ParseSourceType accepts BARCODE or HANDWRITING in any case.
func ParseSourceType(s string) (SourceType, error) {
	switch st := SourceType(strings.ToUpper(strings.TrimSpace(s))); st {
	case SourceBarcode, SourceHandwriting:
		return st, nil
	default:
		return "", fmt.Errorf("unknown source type %q (want BARCODE or HANDWRITING)", s)
	}
}

var (
	// ErrNoBarcodeFound is returned in barcode mode when nothing decodes.
	ErrNoBarcodeFound = errors.New("no barcode/QR code found in the image")
	// ErrEmptyRecognition is returned in text mode when the engine yields
	// no text after trimming.
	ErrEmptyRecognition = errors.New("no clear text extracted; try a smaller region or a different enhancement")
	// ErrBothFailed is returned in auto mode when neither recognizer
	// produced a value.
	ErrBothFailed = errors.New("OCR failed or the text is unclear")
)

// Kind classifies a single recognizer attempt.
type Kind int

const (
	Found Kind = iota
	NotFound
	Failure
)

func (k Kind) String() string {
	switch k {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	default:
		return "failure"
	}
}

// Outcome is the result of one recognizer attempt.
type Outcome struct {
	Kind  Kind
	Value string
	Err   error
}

// Result is a successful analysis.
type Result struct {
	SourceType SourceType `json:"sourceType" yaml:"source_type"`
	Value      string     `json:"value" yaml:"value"`
	// Format is set for barcode results.
	Format   string        `json:"format,omitempty" yaml:"format,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Orchestrator runs recognizers in the order the mode dictates.
type Orchestrator struct {
	barcode barcode.Decoder
	text    textocr.Engine
	logger  *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an orchestrator. Either recognizer may be nil, in which case
// every attempt with it is a Failure.
func New(dec barcode.Decoder, engine textocr.Engine, opts ...Option) *Orchestrator {
	o := &Orchestrator{barcode: dec, text: engine, logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Analyze recognizes a value in img. Recognizers are invoked sequentially;
// in auto mode the text engine runs only when no barcode decoded.
func (o *Orchestrator) Analyze(ctx context.Context, img image.Image, mode Mode, lang string, progress Progress) (res Result, err error) {
	if progress == nil {
		progress = NoOpProgress{}
	}
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		analysesTotal.WithLabelValues(string(mode), outcomeLabel(err)).Inc()
		analysisDuration.WithLabelValues(string(mode)).Observe(res.Duration.Seconds())
		progress.Report(100, finalStatus(res, err))
	}()

	switch mode {
	case ModeBarcode:
		progress.Report(5, "Reading barcode/QR...")
		out, format := o.tryBarcode(ctx, img)
		if out.Kind != Found {
			return Result{}, ErrNoBarcodeFound
		}
		return Result{SourceType: SourceBarcode, Value: out.Value, Format: format}, nil

	case ModeText:
		progress.Report(5, "Running OCR...")
		out := o.tryText(ctx, img, lang, progress)
		switch out.Kind {
		case Found:
			return Result{SourceType: SourceHandwriting, Value: out.Value}, nil
		case NotFound:
			return Result{}, ErrEmptyRecognition
		default:
			return Result{}, fmt.Errorf("text recognition: %w", out.Err)
		}

	case ModeAuto, "":
		mode = ModeAuto
		progress.Report(2, "Trying barcode/QR...")
		out, format := o.tryBarcode(ctx, img)
		if out.Kind == Found {
			return Result{SourceType: SourceBarcode, Value: out.Value, Format: format}, nil
		}
		if out.Kind == Failure {
			o.logger.Warn("Barcode decoder failed, falling back to OCR", "error", out.Err)
		}

		progress.Report(5, "No barcode found. Starting OCR...")
		text := o.tryText(ctx, img, lang, progress)
		if text.Kind != Found {
			if text.Err != nil {
				return Result{}, fmt.Errorf("%w: %w", ErrBothFailed, text.Err)
			}
			return Result{}, ErrBothFailed
		}
		return Result{SourceType: SourceHandwriting, Value: text.Value}, nil

	default:
		return Result{}, fmt.Errorf("unknown recognition mode %q", mode)
	}
}

func (o *Orchestrator) tryBarcode(ctx context.Context, img image.Image) (Outcome, string) {
	if o.barcode == nil {
		return Outcome{Kind: Failure, Err: errors.New("no barcode decoder configured")}, ""
	}
	r, err := o.barcode.Decode(ctx, img)
	switch {
	case errors.Is(err, barcode.ErrNotFound):
		return Outcome{Kind: NotFound}, ""
	case err != nil:
		return Outcome{Kind: Failure, Err: err}, ""
	case r.Value == "":
		return Outcome{Kind: NotFound}, ""
	}
	o.logger.Debug("Barcode decoded", "format", r.Format.String(), "length", len(r.Value))
	return Outcome{Kind: Found, Value: r.Value}, r.Format.String()
}

func (o *Orchestrator) tryText(ctx context.Context, img image.Image, lang string, progress Progress) Outcome {
	if o.text == nil {
		return Outcome{Kind: Failure, Err: errors.New("no text engine configured")}
	}
	png, err := imageio.EncodePNG(img)
	if err != nil {
		return Outcome{Kind: Failure, Err: err}
	}

	raw, err := o.text.Recognize(ctx, png, lang, func(f float64) {
		progress.Report(OCRPercent(f), fmt.Sprintf("OCR %d%%", int(math.Round(f*100))))
	})
	if err != nil {
		return Outcome{Kind: Failure, Err: err}
	}
	text := textocr.Clean(raw)
	if text == "" {
		return Outcome{Kind: NotFound}
	}
	o.logger.Debug("Text recognized", "engine", o.text.Name(), "length", len(text))
	return Outcome{Kind: Found, Value: text}
}

// OCRPercent maps text engine progress in [0, 1] onto the 10..90 band of
// overall analysis progress.
func OCRPercent(f float64) int {
	f = max(0, min(1, f))
	return 10 + int(math.Floor(f*80))
}

func finalStatus(res Result, err error) string {
	switch {
	case err != nil:
		return "Error: " + err.Error()
	case res.SourceType == SourceBarcode:
		return "Barcode read successfully."
	default:
		return "Text extracted successfully."
	}
}

// Request describes a full analysis of a source image.
type Request struct {
	Image      image.Image
	Preprocess preprocess.Options
	// Selection is an optional region in source coordinates.
	Selection *geometry.Rect
	Mode      Mode
	Language  string
}

// Analysis is the outcome of Run: the recognized value plus the image the
// recognizers actually saw.
type Analysis struct {
	Result
	Processed *image.NRGBA    `json:"-" yaml:"-"`
	Plan      preprocess.Plan `json:"-" yaml:"-"`
}

// Run preprocesses req.Image and analyzes the result.
func (o *Orchestrator) Run(ctx context.Context, req Request, progress Progress) (Analysis, error) {
	if progress == nil {
		progress = NoOpProgress{}
	}
	progress.Report(0, "Preparing image...")

	processed, plan, err := preprocess.Preprocess(req.Image, req.Preprocess, req.Selection)
	if err != nil {
		progress.Report(100, "Error: "+err.Error())
		return Analysis{}, fmt.Errorf("preprocess: %w", err)
	}
	o.logger.Debug("Image preprocessed",
		"crop", string(req.Preprocess.Crop),
		"enhance", string(req.Preprocess.Enhance),
		"region", plan.Final().String(),
	)

	res, err := o.Analyze(ctx, processed, req.Mode, req.Language, progress)
	return Analysis{Result: res, Processed: processed, Plan: plan}, err
}
