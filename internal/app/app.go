// Package app wires storage, recognition and delivery together from a
// loaded configuration. The CLI commands and the HTTP server share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MeKo-Tech/scan2sheets/internal/barcode"
	"github.com/MeKo-Tech/scan2sheets/internal/config"
	"github.com/MeKo-Tech/scan2sheets/internal/delivery"
	"github.com/MeKo-Tech/scan2sheets/internal/kvstore"
	"github.com/MeKo-Tech/scan2sheets/internal/outbox"
	"github.com/MeKo-Tech/scan2sheets/internal/recognize"
	"github.com/MeKo-Tech/scan2sheets/internal/settings"
	"github.com/MeKo-Tech/scan2sheets/internal/textocr"
	"github.com/MeKo-Tech/scan2sheets/internal/textocr/tesseract"
)

// App holds the long-lived components of one process.
type App struct {
	Config     *config.Config
	Store      kvstore.Store
	Settings   *settings.Store
	Outbox     *outbox.Outbox
	Recognizer *recognize.Orchestrator
	Logger     *slog.Logger

	now func() time.Time
}

type options struct {
	store   kvstore.Store
	sink    delivery.Sink
	decoder barcode.Decoder
	engine  textocr.Engine
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// Option overrides a component New would otherwise build from config.
type Option func(*options)

// WithStore uses kv instead of opening the configured backend. The App
// takes ownership and closes it.
func WithStore(kv kvstore.Store) Option { return func(o *options) { o.store = kv } }

// WithSink replaces the HTTP delivery sink.
func WithSink(s delivery.Sink) Option { return func(o *options) { o.sink = s } }

// WithDecoder replaces the gozxing decoder.
func WithDecoder(d barcode.Decoder) Option { return func(o *options) { o.decoder = d } }

// WithEngine replaces the configured text engine.
func WithEngine(e textocr.Engine) Option { return func(o *options) { o.engine = e } }

// WithLogger sets the logger handed to every component.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithClock sets the clock used for payload timestamps and entry times.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithIDGenerator sets the history entry id generator.
func WithIDGenerator(fn func() string) Option { return func(o *options) { o.newID = fn } }

// New builds an App from cfg.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	o := options{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	kv := o.store
	if kv == nil {
		var err error
		kv, err = kvstore.Open(kvstore.Backend(cfg.Storage.Backend), cfg.Storage.Path, cfg.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
	}

	sink := o.sink
	if sink == nil {
		sink = delivery.NewHTTPSink(cfg.Delivery.Timeout(), o.logger)
	}

	dec := o.decoder
	if dec == nil {
		formats, err := barcode.ParseFormats(cfg.Recognition.BarcodeFormats)
		if err != nil {
			_ = kv.Close()
			return nil, err
		}
		dec = barcode.NewGozxingDecoder(barcode.Options{Formats: formats, TryHarder: cfg.Recognition.TryHarder})
	}

	engine := o.engine
	if engine == nil {
		engine = NewEngine(cfg.Recognition)
	}

	outboxOpts := []outbox.Option{outbox.WithLogger(o.logger), outbox.WithClock(o.now)}
	if o.newID != nil {
		outboxOpts = append(outboxOpts, outbox.WithIDGenerator(o.newID))
	}

	a := &App{
		Config: cfg,
		Store:  kv,
		Settings: settings.NewStore(kv, o.logger).WithDefaults(settings.Settings{
			Mode:    cfg.Recognition.Mode,
			OCRLang: cfg.Recognition.Language,
		}),
		Outbox:     outbox.New(kv, sink, outboxOpts...),
		Recognizer: recognize.New(dec, engine, recognize.WithLogger(o.logger)),
		Logger:     o.logger,
		now:        o.now,
	}
	o.logger.Debug("Application wired",
		"storage", cfg.Storage.Backend,
		"engine", engine.Name(),
		"formats", strings.Join(cfg.Recognition.BarcodeFormats, ","),
	)
	return a, nil
}

// NewEngine returns the text engine selected by cfg.
func NewEngine(cfg config.RecognitionConfig) textocr.Engine {
	if cfg.Engine == config.EngineGemini {
		return textocr.NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel, 0)
	}
	return tesseract.New()
}

// Close releases the storage backend.
func (a *App) Close() error {
	return a.Store.Close()
}

// Now returns the App clock's current time.
func (a *App) Now() time.Time { return a.now() }

// Profile is the effective delivery and recognition setup: stored settings
// first, configuration second.
type Profile struct {
	Endpoint string
	Token    string
	Mode     recognize.Mode
	Language string
}

// Profile resolves the effective profile.
func (a *App) Profile(ctx context.Context) (Profile, error) {
	s, err := a.Settings.Load(ctx)
	if err != nil {
		return Profile{}, err
	}
	mode, err := recognize.ParseMode(s.Mode)
	if err != nil {
		mode = recognize.ModeAuto
	}
	return Profile{
		Endpoint: firstNonEmpty(s.ScriptURL, a.Config.Delivery.Endpoint),
		Token:    firstNonEmpty(s.SecretToken, a.Config.Delivery.Token),
		Mode:     mode,
		Language: s.OCRLang,
	}, nil
}

// Payload builds a payload stamped with the App clock and client name.
func (a *App) Payload(token string, sourceType recognize.SourceType, value, notes string) outbox.Payload {
	return outbox.BuildPayload(token, string(sourceType), value, notes, a.Config.Delivery.Client, a.now())
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
