package support

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http/httptest"
	"os"
	"sync"

	"github.com/MeKo-Tech/scan2sheets/internal/kvstore"
	"github.com/MeKo-Tech/scan2sheets/internal/textocr"
)

// TestContext holds the state of one scenario.
type TestContext struct {
	// Command execution state
	LastArgs   []string
	LastOutput string
	LastError  error

	// Test environment
	TempDir string
	Store   *kvstore.MemoryStore
	Engine  textocr.Engine

	// Images maps scenario names to source files; Sources keeps the
	// decoded originals for pixel comparisons.
	Images  map[string]string
	Sources map[string]image.Image

	// Sheet endpoints started by the scenario, newest last.
	Endpoints []*SheetEndpoint
}

// fixedEngine answers every recognition with the same text.
type fixedEngine struct{ text string }

func (e fixedEngine) Name() string { return "fixed" }

func (e fixedEngine) Recognize(_ context.Context, _ []byte, _ string, onProgress textocr.ProgressFunc) (string, error) {
	textocr.Report(onProgress, 1)
	return e.text, nil
}

// NewTestContext creates a scenario context with an empty in-memory store.
func NewTestContext() (*TestContext, error) {
	tempDir, err := os.MkdirTemp("", "scan2sheets-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	return &TestContext{
		TempDir: tempDir,
		Store:   kvstore.NewMemoryStore(),
		Engine:  fixedEngine{text: "Hello World"},
		Images:  map[string]string{},
		Sources: map[string]image.Image{},
	}, nil
}

// Endpoint returns the most recently started sheet endpoint.
func (testCtx *TestContext) Endpoint() (*SheetEndpoint, error) {
	if len(testCtx.Endpoints) == 0 {
		return nil, errors.New("no sheet endpoint was started")
	}
	return testCtx.Endpoints[len(testCtx.Endpoints)-1], nil
}

// Cleanup stops endpoints and removes temporary files.
func (testCtx *TestContext) Cleanup() error {
	for _, ep := range testCtx.Endpoints {
		ep.Close()
	}
	testCtx.Endpoints = nil
	return os.RemoveAll(testCtx.TempDir)
}

// SheetEndpoint is a fake spreadsheet web app.
type SheetEndpoint struct {
	*httptest.Server

	mu       sync.Mutex
	received []map[string]any
	closed   bool
}

// Received returns the decoded bodies posted so far.
func (ep *SheetEndpoint) Received() []map[string]any {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return append([]map[string]any(nil), ep.received...)
}

// Close shuts the server down once.
func (ep *SheetEndpoint) Close() {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	if !ep.closed {
		ep.closed = true
		ep.Server.Close()
	}
}
