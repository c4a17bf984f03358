// Package tesseract recognizes text with a local Tesseract installation
// through gosseract. Building it requires libtesseract and leptonica.
package tesseract

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"

	"github.com/MeKo-Tech/scan2sheets/internal/textocr"
)

// Engine implements textocr.Engine with a fresh gosseract client per call.
type Engine struct {
	clientFactory func() *gosseract.Client
	// PageSegMode overrides Tesseract's page segmentation when non-zero.
	PageSegMode gosseract.PageSegMode
}

// New constructs a Tesseract-backed engine.
func New() *Engine {
	return &Engine{clientFactory: gosseract.NewClient}
}

func (e *Engine) Name() string { return "tesseract" }

// Recognize runs Tesseract over the image. gosseract exposes no incremental
// progress, so onProgress sees only the start and end of recognition.
func (e *Engine) Recognize(ctx context.Context, image []byte, lang string, onProgress textocr.ProgressFunc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c := e.clientFactory()
	defer func() { _ = c.Close() }()

	if err := c.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("tesseract: set image: %w", err)
	}
	if err := c.SetLanguage(textocr.Languages(lang)...); err != nil {
		return "", fmt.Errorf("tesseract: set languages: %w", err)
	}
	if e.PageSegMode != 0 {
		if err := c.SetPageSegMode(e.PageSegMode); err != nil {
			return "", fmt.Errorf("tesseract: set page seg mode: %w", err)
		}
	}

	textocr.Report(onProgress, 0)
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract: recognize text: %w", err)
	}
	textocr.Report(onProgress, 1)
	return text, nil
}
