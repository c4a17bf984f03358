package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/MeKo-Tech/scan2sheets/internal/barcode"
	"github.com/MeKo-Tech/scan2sheets/internal/kvstore"
)

// Config represents the complete configuration for scan2sheets. It is
// loaded from a configuration file, SCAN2SHEETS_ environment variables
// (including a .env file) and command-line flags.
type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Storage     StorageConfig     `mapstructure:"storage" yaml:"storage" json:"storage"`
	Delivery    DeliveryConfig    `mapstructure:"delivery" yaml:"delivery" json:"delivery"`
	Recognition RecognitionConfig `mapstructure:"recognition" yaml:"recognition" json:"recognition"`
	Preprocess  PreprocessConfig  `mapstructure:"preprocess" yaml:"preprocess" json:"preprocess"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server" json:"server"`
	Output      OutputConfig      `mapstructure:"output" yaml:"output" json:"output"`
}

// StorageConfig selects where the settings and history blobs live.
type StorageConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend" json:"backend"`
	// Path is a directory for the file backend or a database file for sqlite.
	Path string `mapstructure:"path" yaml:"path" json:"path"`
	DSN  string `mapstructure:"dsn" yaml:"dsn" json:"dsn"`
}

// DeliveryConfig holds defaults for the sheet endpoint. Stored settings
// take precedence when set.
type DeliveryConfig struct {
	Endpoint   string `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	Token      string `mapstructure:"token" yaml:"token" json:"token"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	Client     string `mapstructure:"client" yaml:"client" json:"client"`
}

// RecognitionConfig configures the recognizers.
type RecognitionConfig struct {
	Mode           string   `mapstructure:"mode" yaml:"mode" json:"mode"`
	Language       string   `mapstructure:"language" yaml:"language" json:"language"`
	Engine         string   `mapstructure:"engine" yaml:"engine" json:"engine"`
	GeminiAPIKey   string   `mapstructure:"gemini_api_key" yaml:"gemini_api_key" json:"gemini_api_key"`
	GeminiModel    string   `mapstructure:"gemini_model" yaml:"gemini_model" json:"gemini_model"`
	BarcodeFormats []string `mapstructure:"barcode_formats" yaml:"barcode_formats" json:"barcode_formats"`
	TryHarder      bool     `mapstructure:"try_harder" yaml:"try_harder" json:"try_harder"`
}

// PreprocessConfig holds the default crop and enhancement.
type PreprocessConfig struct {
	Crop    string `mapstructure:"crop" yaml:"crop" json:"crop"`
	Enhance string `mapstructure:"enhance" yaml:"enhance" json:"enhance"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// Rate limiting of analysis requests, per client IP.
	RateLimitEnabled  bool `mapstructure:"rate_limit_enabled" yaml:"rate_limit_enabled" json:"rate_limit_enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int  `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

const (
	EngineTesseract = "tesseract"
	EngineGemini    = "gemini"
)

// DefaultDataDir returns the default storage directory.
func DefaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "scan2sheets")
	}
	return ".scan2sheets"
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Storage: StorageConfig{
			Backend: string(kvstore.BackendFile),
			Path:    DefaultDataDir(),
		},
		Delivery: DeliveryConfig{
			TimeoutSec: 30,
			Client:     "scan2sheets-cli",
		},
		Recognition: RecognitionConfig{
			Mode:        "auto",
			Language:    "eng",
			Engine:      EngineTesseract,
			GeminiModel: "gemini-1.5-flash",
		},
		Preprocess: PreprocessConfig{
			Crop:    "none",
			Enhance: "none",
		},
		Server: ServerConfig{
			Host:              "localhost",
			Port:              8080,
			CORSOrigin:        "*",
			MaxUploadMB:       20,
			TimeoutSec:        60,
			ShutdownTimeout:   10,
			RequestsPerMinute: 30,
			RequestsPerHour:   600,
		},
		Output: OutputConfig{
			Format: "text",
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.LogLevel, validation.Required, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.Storage),
		validation.Field(&c.Delivery),
		validation.Field(&c.Recognition),
		validation.Field(&c.Preprocess),
		validation.Field(&c.Server),
		validation.Field(&c.Output),
	); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (s StorageConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Backend, validation.Required,
			validation.In(string(kvstore.BackendFile), string(kvstore.BackendSQLite), string(kvstore.BackendPostgres), string(kvstore.BackendMemory))),
		validation.Field(&s.Path, validation.When(s.Backend == string(kvstore.BackendFile) || s.Backend == string(kvstore.BackendSQLite), validation.Required)),
		validation.Field(&s.DSN, validation.When(s.Backend == string(kvstore.BackendPostgres), validation.Required)),
	)
}

func (d DeliveryConfig) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Endpoint, is.URL),
		validation.Field(&d.TimeoutSec, validation.Required, validation.Min(1)),
	)
}

func (r RecognitionConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Mode, validation.Required, validation.In("auto", "barcode", "text")),
		validation.Field(&r.Language, validation.Required),
		validation.Field(&r.Engine, validation.Required, validation.In(EngineTesseract, EngineGemini)),
		validation.Field(&r.GeminiAPIKey, validation.When(r.Engine == EngineGemini, validation.Required)),
		validation.Field(&r.BarcodeFormats, validation.By(func(any) error {
			_, err := barcode.ParseFormats(r.BarcodeFormats)
			return err
		})),
	)
}

func (p PreprocessConfig) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Crop, validation.In("none", "center")),
		validation.Field(&p.Enhance, validation.In("none", "grayscale", "contrast", "threshold", "adaptive")),
	)
}

func (s ServerConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&s.MaxUploadMB, validation.Required, validation.Min(1)),
		validation.Field(&s.TimeoutSec, validation.Required, validation.Min(1)),
		validation.Field(&s.ShutdownTimeout, validation.Min(0)),
		validation.Field(&s.RequestsPerMinute, validation.Min(0)),
		validation.Field(&s.RequestsPerHour, validation.Min(0)),
	)
}

func (o OutputConfig) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.Format, validation.In("text", "json", "yaml")),
	)
}

// Timeout returns the delivery timeout as a duration.
func (d DeliveryConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSec) * time.Second
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// MaxUploadBytes returns the upload limit in bytes.
func (s ServerConfig) MaxUploadBytes() int64 {
	return int64(s.MaxUploadMB) << 20
}
