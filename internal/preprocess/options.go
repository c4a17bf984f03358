package preprocess

import (
	"fmt"
	"strings"
)

// CropMode selects the global crop applied before any region crop.
type CropMode string

const (
	CropNone   CropMode = "none"
	CropCenter CropMode = "center"
)

// EnhanceMode selects the per-pixel filter.
type EnhanceMode string

const (
	EnhanceNone      EnhanceMode = "none"
	EnhanceGrayscale EnhanceMode = "grayscale"
	EnhanceContrast  EnhanceMode = "contrast"
	EnhanceThreshold EnhanceMode = "threshold"
	EnhanceAdaptive  EnhanceMode = "adaptive"
)

// CropModes lists the accepted crop mode names.
var CropModes = []CropMode{CropNone, CropCenter}

// EnhanceModes lists the accepted enhancement mode names.
var EnhanceModes = []EnhanceMode{EnhanceNone, EnhanceGrayscale, EnhanceContrast, EnhanceThreshold, EnhanceAdaptive}

// Options configures one preprocessing run.
type Options struct {
	Crop    CropMode    `json:"crop" yaml:"crop"`
	Enhance EnhanceMode `json:"enhance" yaml:"enhance"`
}

// DefaultOptions returns the pass-through configuration.
func DefaultOptions() Options {
	return Options{Crop: CropNone, Enhance: EnhanceNone}
}

// ParseCropMode converts a user-supplied name to a CropMode. The empty
// string means CropNone.
func ParseCropMode(s string) (CropMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "off":
		return CropNone, nil
	case "center", "centre":
		return CropCenter, nil
	default:
		return "", fmt.Errorf("unknown crop mode %q", s)
	}
}

// ParseEnhanceMode converts a user-supplied name to an EnhanceMode. The
// empty string means EnhanceNone.
func ParseEnhanceMode(s string) (EnhanceMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "off":
		return EnhanceNone, nil
	case "grayscale", "greyscale", "gray", "grey":
		return EnhanceGrayscale, nil
	case "contrast":
		return EnhanceContrast, nil
	case "threshold":
		return EnhanceThreshold, nil
	case "adaptive":
		return EnhanceAdaptive, nil
	default:
		return "", fmt.Errorf("unknown enhance mode %q", s)
	}
}

// ParseOptions parses both modes at once.
func ParseOptions(crop, enhance string) (Options, error) {
	c, err := ParseCropMode(crop)
	if err != nil {
		return Options{}, err
	}
	e, err := ParseEnhanceMode(enhance)
	if err != nil {
		return Options{}, err
	}
	return Options{Crop: c, Enhance: e}, nil
}
