package cmd

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/MeKo-Tech/scan2sheets/internal/app"
	"github.com/MeKo-Tech/scan2sheets/internal/kvstore"
	"github.com/MeKo-Tech/scan2sheets/internal/outbox"
	"github.com/MeKo-Tech/scan2sheets/internal/textocr"
)

type stubEngine struct{ text string }

func (e stubEngine) Name() string { return "stub" }

func (e stubEngine) Recognize(_ context.Context, _ []byte, _ string, onProgress textocr.ProgressFunc) (string, error) {
	textocr.Report(onProgress, 1)
	return e.text, nil
}

// fakeSink records payloads and fails while err is set.
type fakeSink struct {
	mu       sync.Mutex
	err      error
	payloads []outbox.Payload
}

func (s *fakeSink) Deliver(_ context.Context, _ string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.payloads = append(s.payloads, payload.(outbox.Payload))
	return nil
}

// testEnv shares one in-memory store across command runs.
type testEnv struct {
	store *kvstore.MemoryStore
	sink  *fakeSink
	opts  []app.Option
}

func newTestEnv(text string) *testEnv {
	env := &testEnv{store: kvstore.NewMemoryStore(), sink: &fakeSink{}}
	env.opts = []app.Option{
		app.WithStore(env.store),
		app.WithSink(env.sink),
		app.WithEngine(stubEngine{text: text}),
	}
	return env
}

// run executes the CLI and returns stdout.
func (env *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(env.opts...)
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.Execute()
	return stdout.String(), err
}
