// Package imageio loads source photographs and encodes processed frames.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// SupportedExtensions lists the file extensions accepted by LoadFile.
var SupportedExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// ErrEmptyImage is returned for zero-sized inputs.
var ErrEmptyImage = errors.New("image has no pixels")

// Error wraps a failure in one image operation.
type Error struct {
	Operation string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("image %s: %v", e.Operation, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Metadata describes a decoded source image.
type Metadata struct {
	Path      string `json:"path,omitempty"`
	Format    string `json:"format"`
	SizeBytes int64  `json:"size_bytes"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// IsSupported reports whether the path has a supported image extension.
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// LoadFile opens and decodes an image file.
func LoadFile(path string) (image.Image, Metadata, error) {
	if path == "" {
		return nil, Metadata{}, &Error{Operation: "load", Err: errors.New("empty path")}
	}
	if !IsSupported(path) {
		return nil, Metadata{}, &Error{Operation: "load", Err: fmt.Errorf("unsupported format: %s", filepath.Ext(path))}
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: user-selected photo
	if err != nil {
		return nil, Metadata{}, &Error{Operation: "load", Err: err}
	}

	img, meta, err := Decode(data)
	if err != nil {
		return nil, Metadata{}, err
	}
	meta.Path = path
	return img, meta, nil
}

// Decode decodes an in-memory image in any registered format.
func Decode(data []byte) (image.Image, Metadata, error) {
	return DecodeReader(bytes.NewReader(data), int64(len(data)))
}

// DecodeReader decodes an image from r; size is recorded in the metadata.
func DecodeReader(r io.Reader, size int64) (image.Image, Metadata, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, Metadata{}, &Error{Operation: "decode", Err: err}
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, Metadata{}, &Error{Operation: "decode", Err: ErrEmptyImage}
	}
	return img, Metadata{
		Format:    format,
		SizeBytes: size,
		Width:     b.Dx(),
		Height:    b.Dy(),
	}, nil
}

// EncodePNG encodes img losslessly.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, &Error{Operation: "encode", Err: err}
	}
	return buf.Bytes(), nil
}

// SavePNG writes img as a PNG file, creating parent directories.
func SavePNG(path string, img image.Image) error {
	data, err := EncodePNG(img)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &Error{Operation: "save", Err: err}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // output image is not secret
		return &Error{Operation: "save", Err: err}
	}
	return nil
}
