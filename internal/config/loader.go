package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "scan2sheets"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "SCAN2SHEETS"

	// DotEnvFile is loaded into the environment, if present, before
	// environment variables are read. Existing variables win.
	DotEnvFile = ".env"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader over the global viper instance so flag
// bindings made by the commands apply.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWithViper creates a loader over v.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load loads configuration from the search paths, environment variables and
// defaults, then validates it.
func (l *Loader) Load() (*Config, error) {
	cfg, err := l.LoadWithoutValidation()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWithoutValidation is Load without the final Validate call.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	l.v.SetConfigName(ConfigFileName)
	l.v.SetConfigType("yaml")
	l.addConfigPaths()
	l.prepare()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return l.unmarshal()
}

// LoadWithFile loads configuration from a specific file path. An empty path
// falls back to Load.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	if configFile == "" {
		return l.Load()
	}
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configFile)
	}

	l.v.SetConfigFile(configFile)
	l.prepare()

	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}
	cfg, err := l.unmarshal()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (l *Loader) prepare() {
	loadDotEnv(DotEnvFile)
	l.setupEnvironmentVariables()
	l.setDefaults()
}

func (l *Loader) unmarshal() (*Config, error) {
	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	// A comma-joined value that reached us as a single element.
	if len(config.Recognition.BarcodeFormats) == 1 && strings.Contains(config.Recognition.BarcodeFormats[0], ",") {
		config.Recognition.BarcodeFormats = strings.Split(config.Recognition.BarcodeFormats[0], ",")
	}
	return &config, nil
}

// loadDotEnv loads path into the environment without overriding variables
// that are already set.
func loadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		slog.Warn("Failed to load .env file", "path", path, "error", err)
	}
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults registers every key so AutomaticEnv can resolve it during
// Unmarshal.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("verbose", d.Verbose)

	l.v.SetDefault("storage.backend", d.Storage.Backend)
	l.v.SetDefault("storage.path", d.Storage.Path)
	l.v.SetDefault("storage.dsn", d.Storage.DSN)

	l.v.SetDefault("delivery.endpoint", d.Delivery.Endpoint)
	l.v.SetDefault("delivery.token", d.Delivery.Token)
	l.v.SetDefault("delivery.timeout_sec", d.Delivery.TimeoutSec)
	l.v.SetDefault("delivery.client", d.Delivery.Client)

	l.v.SetDefault("recognition.mode", d.Recognition.Mode)
	l.v.SetDefault("recognition.language", d.Recognition.Language)
	l.v.SetDefault("recognition.engine", d.Recognition.Engine)
	l.v.SetDefault("recognition.gemini_api_key", d.Recognition.GeminiAPIKey)
	l.v.SetDefault("recognition.gemini_model", d.Recognition.GeminiModel)
	l.v.SetDefault("recognition.barcode_formats", d.Recognition.BarcodeFormats)
	l.v.SetDefault("recognition.try_harder", d.Recognition.TryHarder)

	l.v.SetDefault("preprocess.crop", d.Preprocess.Crop)
	l.v.SetDefault("preprocess.enhance", d.Preprocess.Enhance)

	l.v.SetDefault("server.host", d.Server.Host)
	l.v.SetDefault("server.port", d.Server.Port)
	l.v.SetDefault("server.cors_origin", d.Server.CORSOrigin)
	l.v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	l.v.SetDefault("server.timeout_sec", d.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	l.v.SetDefault("server.rate_limit_enabled", d.Server.RateLimitEnabled)
	l.v.SetDefault("server.requests_per_minute", d.Server.RequestsPerMinute)
	l.v.SetDefault("server.requests_per_hour", d.Server.RequestsPerHour)

	l.v.SetDefault("output.format", d.Output.Format)
}

// GenerateDefaultConfigFile writes the default configuration to filename
// (scan2sheets.yaml when empty).
func GenerateDefaultConfigFile(filename string) error {
	l := NewLoaderWithViper(viper.New())
	l.setDefaults()
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	return l.v.WriteConfigAs(filename)
}

// GetConfigSearchPaths returns the directories searched for a config file,
// in order.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	home, homeErr := os.UserHomeDir()
	if homeErr == nil {
		paths = append(paths, home)
	}
	if configDir, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && configDir != "" {
		paths = append(paths, filepath.Join(configDir, "scan2sheets"))
	} else if homeErr == nil {
		paths = append(paths, filepath.Join(home, ".config", "scan2sheets"))
	}

	return append(paths, "/etc/scan2sheets")
}
