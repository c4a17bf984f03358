// Package settings persists the user-editable settings blob: sheet
// endpoint, shared secret, default mode and recognition language.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/MeKo-Tech/scan2sheets/internal/kvstore"
	"github.com/MeKo-Tech/scan2sheets/internal/recognize"
	"github.com/MeKo-Tech/scan2sheets/internal/textocr"
)

// Key is the blob key of the persisted settings.
const Key = "scan2sheets_settings_v1"

// langPattern accepts Tesseract language codes joined with "+", such as
// "eng", "ara+eng" or "chi_sim".
var langPattern = regexp.MustCompile(`^[a-z]{3}(_[a-z]+)?(\+[a-z]{3}(_[a-z]+)?)*$`)

// Settings mirrors the stored blob.
type Settings struct {
	ScriptURL   string `json:"scriptUrl" yaml:"script_url"`
	SecretToken string `json:"secretToken" yaml:"secret_token"`
	Mode        string `json:"mode" yaml:"mode"`
	OCRLang     string `json:"ocrLang" yaml:"ocr_lang"`
}

// Defaults returns the settings used when nothing is stored.
func Defaults() Settings {
	return Settings{Mode: string(recognize.ModeAuto), OCRLang: textocr.DefaultLanguage}
}

// Normalize trims fields and fills empty mode and language with defaults.
func (s Settings) Normalize() Settings {
	d := Defaults()
	s.ScriptURL = strings.TrimSpace(s.ScriptURL)
	s.SecretToken = strings.TrimSpace(s.SecretToken)
	s.Mode = strings.TrimSpace(s.Mode)
	s.OCRLang = strings.TrimSpace(s.OCRLang)
	if s.Mode == "" {
		s.Mode = d.Mode
	}
	if s.OCRLang == "" {
		s.OCRLang = d.OCRLang
	}
	return s
}

// Validate checks a normalized settings value.
func (s Settings) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Mode, validation.In("auto", "barcode", "text")),
		validation.Field(&s.OCRLang, validation.Match(langPattern)),
	)
}

// Masked returns a copy safe to print, with the token hidden.
func (s Settings) Masked() Settings {
	if n := len(s.SecretToken); n > 0 {
		keep := min(2, n/4)
		s.SecretToken = s.SecretToken[:keep] + strings.Repeat("*", n-keep)
	}
	return s
}

// Store loads and saves settings in a kvstore.
type Store struct {
	kv       kvstore.Store
	logger   *slog.Logger
	defaults Settings
}

// NewStore creates a settings store.
func NewStore(kv kvstore.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: kv, logger: logger, defaults: Defaults()}
}

// WithDefaults replaces the settings Load falls back to when nothing usable
// is stored. Invalid mode or language values are replaced by Defaults.
func (st *Store) WithDefaults(d Settings) *Store {
	d = d.Normalize()
	base := Defaults()
	if validation.Validate(d.Mode, validation.In("auto", "barcode", "text")) != nil {
		d.Mode = base.Mode
	}
	if validation.Validate(d.OCRLang, validation.Match(langPattern)) != nil {
		d.OCRLang = base.OCRLang
	}
	st.defaults = d
	return st
}

// Load returns the stored settings, or the store's defaults when none are
// stored or the blob cannot be decoded.
func (st *Store) Load(ctx context.Context) (Settings, error) {
	data, err := st.kv.Get(ctx, Key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return st.defaults, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}

	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		st.logger.Warn("Stored settings are malformed, using defaults", "error", err)
		return st.defaults, nil
	}
	s = s.Normalize()
	if err := s.Validate(); err != nil {
		st.logger.Warn("Stored settings are invalid, using defaults for bad fields", "error", err)
		d := st.defaults
		if validation.Validate(s.Mode, validation.In("auto", "barcode", "text")) != nil {
			s.Mode = d.Mode
		}
		if validation.Validate(s.OCRLang, validation.Match(langPattern)) != nil {
			s.OCRLang = d.OCRLang
		}
	}
	return s, nil
}

// Save normalizes, validates and stores s.
func (st *Store) Save(ctx context.Context, s Settings) (Settings, error) {
	s = s.Normalize()
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return Settings{}, fmt.Errorf("encode settings: %w", err)
	}
	if err := st.kv.Put(ctx, Key, data); err != nil {
		return Settings{}, fmt.Errorf("save settings: %w", err)
	}
	st.logger.Info("Settings saved", "mode", s.Mode, "lang", s.OCRLang, "endpoint_set", s.ScriptURL != "")
	return s, nil
}

// Clear removes the stored settings.
func (st *Store) Clear(ctx context.Context) error {
	if err := st.kv.Delete(ctx, Key); err != nil {
		return fmt.Errorf("clear settings: %w", err)
	}
	st.logger.Info("Settings cleared")
	return nil
}
