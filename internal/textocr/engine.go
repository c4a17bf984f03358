// Package textocr defines the text recognizer contract and its shared text
// handling. Concrete engines live in subpackages or alongside (Gemini).
package textocr

import (
	"context"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultLanguage is the recognition language used when none is configured.
const DefaultLanguage = "eng"

// ProgressFunc receives recognition progress as a fraction in [0, 1].
type ProgressFunc func(fraction float64)

// Engine recognizes printed or handwritten text in an encoded image.
type Engine interface {
	Name() string
	// Recognize returns the raw recognized text. lang uses Tesseract codes,
	// several joined with "+" (for example "ara+eng"). onProgress may be nil.
	Recognize(ctx context.Context, image []byte, lang string, onProgress ProgressFunc) (string, error)
}

// Languages splits a "+"-joined language spec into codes. An empty spec
// yields DefaultLanguage.
func Languages(spec string) []string {
	var out []string
	for _, part := range strings.Split(spec, "+") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{DefaultLanguage}
	}
	return out
}

// Clean normalizes recognized text: Unicode NFC, unified line endings and
// surrounding whitespace trimmed.
func Clean(s string) string {
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}

// Report calls fn with fraction clamped to [0, 1] when fn is non-nil.
func Report(fn ProgressFunc, fraction float64) {
	if fn == nil {
		return
	}
	fn(max(0, min(1, fraction)))
}
