package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/scan2sheets/internal/app"
	"github.com/MeKo-Tech/scan2sheets/internal/barcode"
	"github.com/MeKo-Tech/scan2sheets/internal/config"
	"github.com/MeKo-Tech/scan2sheets/internal/kvstore"
	"github.com/MeKo-Tech/scan2sheets/internal/outbox"
	"github.com/MeKo-Tech/scan2sheets/internal/testutil"
	"github.com/MeKo-Tech/scan2sheets/internal/textocr"
)

const (
	testEndpoint = "https://sheet.example/exec"
	testToken    = "tok-secret-1234"
)

// recordingSink captures delivered payloads and fails while failWith is set.
type recordingSink struct {
	mu       sync.Mutex
	payloads []outbox.Payload
	failWith error
}

func (s *recordingSink) Deliver(_ context.Context, _ string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.payloads = append(s.payloads, payload.(outbox.Payload))
	return nil
}

func (s *recordingSink) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

func (s *recordingSink) delivered() []outbox.Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbox.Payload(nil), s.payloads...)
}

// stubEngine returns a fixed text and reports one progress step.
type stubEngine struct {
	text string
	err  error
}

func (e stubEngine) Name() string { return "stub" }

func (e stubEngine) Recognize(_ context.Context, _ []byte, _ string, onProgress textocr.ProgressFunc) (string, error) {
	textocr.Report(onProgress, 0.5)
	return e.text, e.err
}

type harness struct {
	app     *app.App
	server  *Server
	handler http.Handler
	sink    *recordingSink
	// barcode is the value the fake decoder reports; empty means not found.
	barcode string
}

type harnessOption func(*config.Config, *Config)

func withRateLimit(perMinute int) harnessOption {
	return func(_ *config.Config, sc *Config) {
		sc.RateLimit = RateLimitConfig{Enabled: true, RequestsPerMinute: perMinute}
	}
}

func withoutDelivery() harnessOption {
	return func(cfg *config.Config, _ *Config) {
		cfg.Delivery.Endpoint = ""
		cfg.Delivery.Token = ""
	}
}

func newHarness(t *testing.T, engine textocr.Engine, opts ...harnessOption) *harness {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Storage.Backend = string(kvstore.BackendMemory)
	cfg.Delivery.Endpoint = testEndpoint
	cfg.Delivery.Token = testToken
	sc := Config{CORSOrigin: "*", Version: "test"}
	for _, opt := range opts {
		opt(&cfg, &sc)
	}

	h := &harness{sink: &recordingSink{}}
	dec := barcode.DecoderFunc(func(context.Context, image.Image) (barcode.Result, error) {
		if h.barcode == "" {
			return barcode.Result{}, barcode.ErrNotFound
		}
		return barcode.Result{Format: barcode.FormatQR, Value: h.barcode}, nil
	})

	clock := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	a, err := app.New(&cfg,
		app.WithStore(kvstore.NewMemoryStore()),
		app.WithSink(h.sink),
		app.WithDecoder(dec),
		app.WithEngine(engine),
		app.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		app.WithClock(func() time.Time { return clock }),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	h.app = a
	h.server = NewServer(a, nil, sc)
	h.handler = h.server.Routes()
	return h
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

func (h *harness) doJSON(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return h.do(req)
}

// uploadRequest builds a multipart /analyze request. A nil img omits the
// file part.
func uploadRequest(t *testing.T, img image.Image, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if img != nil {
		part, err := mw.CreateFormFile("image", "scan.png")
		require.NoError(t, err)
		_, err = part.Write(testutil.PNG(t, img))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/analyze", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

var errSheetDown = errors.New("sheet unavailable")
