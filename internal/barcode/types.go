// Package barcode decodes 1D and 2D symbols from a preprocessed image.
package barcode

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
)

// ErrNotFound is returned when no symbol could be located or decoded.
var ErrNotFound = errors.New("barcode: no symbol found")

// Format represents a barcode symbology.
type Format int

const (
	FormatUnknown Format = iota
	FormatQR
	FormatCode128
	FormatCode39
	FormatEAN8
	FormatEAN13
	FormatUPCA
	FormatUPCE
	FormatITF
	FormatCodabar
)

var formatNames = map[Format]string{
	FormatQR:      "qr",
	FormatCode128: "code128",
	FormatCode39:  "code39",
	FormatEAN8:    "ean8",
	FormatEAN13:   "ean13",
	FormatUPCA:    "upca",
	FormatUPCE:    "upce",
	FormatITF:     "itf",
	FormatCodabar: "codabar",
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return "unknown"
}

// MarshalText encodes the format by name.
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText decodes a format name.
func (f *Format) UnmarshalText(b []byte) error {
	v, err := ParseFormat(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// AllFormats lists every supported symbology in decode order.
func AllFormats() []Format {
	return []Format{
		FormatQR, FormatCode128, FormatCode39, FormatEAN13, FormatEAN8,
		FormatUPCA, FormatUPCE, FormatITF, FormatCodabar,
	}
}

// ParseFormat converts a user-supplied name such as "qr" or "EAN-13".
func ParseFormat(s string) (Format, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "", "_", "", " ", "").Replace(key)
	switch key {
	case "qrcode":
		key = "qr"
	case "upc":
		key = "upca"
	}
	for f, name := range formatNames {
		if name == key {
			return f, nil
		}
	}
	return FormatUnknown, fmt.Errorf("unknown barcode format %q", s)
}

// ParseFormats parses a list of names. An empty list means every format.
func ParseFormats(names []string) ([]Format, error) {
	if len(names) == 0 {
		return AllFormats(), nil
	}
	out := make([]Format, 0, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		f, err := ParseFormat(n)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return AllFormats(), nil
	}
	return out, nil
}

// Options controls decoding behavior.
type Options struct {
	// Formats constrains the symbologies tried. Empty means all.
	Formats []Format
	// TryHarder enables a slower, more exhaustive search.
	TryHarder bool
}

// Result is one decoded symbol.
type Result struct {
	Format Format          `json:"format"`
	Value  string          `json:"value"`
	BBox   image.Rectangle `json:"bbox"`
}

// Decoder reads a single symbol from an image. It returns ErrNotFound when
// the image holds nothing decodable; any other error is a decoder fault.
type Decoder interface {
	Decode(ctx context.Context, img image.Image) (Result, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(ctx context.Context, img image.Image) (Result, error)

// Decode calls f.
func (f DecoderFunc) Decode(ctx context.Context, img image.Image) (Result, error) {
	return f(ctx, img)
}
