package app

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/scan2sheets/internal/barcode"
	"github.com/MeKo-Tech/scan2sheets/internal/config"
	"github.com/MeKo-Tech/scan2sheets/internal/delivery"
	"github.com/MeKo-Tech/scan2sheets/internal/recognize"
	"github.com/MeKo-Tech/scan2sheets/internal/settings"
	"github.com/MeKo-Tech/scan2sheets/internal/textocr"
)

func memoryConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Storage.Backend = "memory"
	cfg.Delivery.Endpoint = "https://cfg.example/exec"
	cfg.Delivery.Token = "cfg-token"
	cfg.Recognition.Mode = "text"
	cfg.Recognition.Language = "deu"
	return &cfg
}

func TestNew_MemoryBackend(t *testing.T) {
	a, err := New(memoryConfig(), WithSink(delivery.SinkFunc(func(context.Context, string, any) error { return nil })))
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	assert.NotNil(t, a.Outbox)
	assert.NotNil(t, a.Recognizer)
	assert.NotNil(t, a.Settings)
}

func TestNew_Errors(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	cfg := memoryConfig()
	cfg.Recognition.BarcodeFormats = []string{"hologram"}
	_, err = New(cfg)
	assert.Error(t, err)

	cfg = memoryConfig()
	cfg.Storage.Backend = "tape"
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestProfile_SettingsOverrideConfig(t *testing.T) {
	ctx := context.Background()
	a, err := New(memoryConfig())
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	p, err := a.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, Profile{Endpoint: "https://cfg.example/exec", Token: "cfg-token", Mode: recognize.ModeText, Language: "deu"}, p)

	_, err = a.Settings.Save(ctx, settings.Settings{ScriptURL: "https://saved/exec", Mode: "barcode", OCRLang: "eng"})
	require.NoError(t, err)

	p, err = a.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://saved/exec", p.Endpoint)
	assert.Equal(t, "cfg-token", p.Token, "an empty stored token falls back to config")
	assert.Equal(t, recognize.ModeBarcode, p.Mode)
	assert.Equal(t, "eng", p.Language)
}

func TestPayload_UsesClockAndClient(t *testing.T) {
	fixed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	cfg := memoryConfig()
	cfg.Delivery.Client = "test-client"
	a, err := New(cfg, WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	p := a.Payload(" tok ", recognize.SourceBarcode, " 123 ", "")
	assert.Equal(t, "tok", p.Token)
	assert.Equal(t, "123", p.Value)
	assert.Equal(t, "BARCODE", p.SourceType)
	assert.Equal(t, "test-client", p.Client)
	assert.Equal(t, "2026-03-04T05:06:07.000Z", p.Timestamp)
	assert.Equal(t, fixed, a.Now())
}

type stubEngine struct{}

func (stubEngine) Name() string { return "stub" }
func (stubEngine) Recognize(context.Context, []byte, string, textocr.ProgressFunc) (string, error) {
	return "hello", nil
}

func TestNew_InjectedRecognizers(t *testing.T) {
	dec := barcode.DecoderFunc(func(context.Context, image.Image) (barcode.Result, error) {
		return barcode.Result{}, barcode.ErrNotFound
	})
	a, err := New(memoryConfig(), WithDecoder(dec), WithEngine(stubEngine{}))
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	res, err := a.Recognizer.Analyze(context.Background(), img, recognize.ModeAuto, "eng", nil)
	require.NoError(t, err)
	assert.Equal(t, recognize.SourceHandwriting, res.SourceType)
	assert.Equal(t, "hello", res.Value)
}

func TestNewEngine(t *testing.T) {
	assert.Equal(t, "tesseract", NewEngine(config.RecognitionConfig{Engine: config.EngineTesseract}).Name())
	assert.Equal(t, "gemini", NewEngine(config.RecognitionConfig{Engine: config.EngineGemini, GeminiAPIKey: "k"}).Name())
}
