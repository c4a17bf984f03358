package batch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/scan2sheets/internal/geometry"
	"github.com/MeKo-Tech/scan2sheets/internal/preprocess"
	"github.com/MeKo-Tech/scan2sheets/internal/recognize"
	"github.com/MeKo-Tech/scan2sheets/internal/testutil"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeAnalyzer names the result after the image width and fails for
// widths listed in fail.
type fakeAnalyzer struct {
	fail    map[int]bool
	delay   time.Duration
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (f *fakeAnalyzer) Run(ctx context.Context, req recognize.Request, _ recognize.Progress) (recognize.Analysis, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return recognize.Analysis{}, ctx.Err()
		}
	}

	w := req.Image.Bounds().Dx()
	if f.fail[w] {
		return recognize.Analysis{}, recognize.ErrEmptyRecognition
	}
	return recognize.Analysis{
		Result:    recognize.Result{SourceType: recognize.SourceHandwriting, Value: "w" + strconv.Itoa(w)},
		Processed: imaging.Clone(req.Image),
		Plan:      preprocess.Plan{Global: geometry.Rect{W: w, H: req.Image.Bounds().Dy()}},
	}, nil
}

func writeImages(t *testing.T, dir string, widths ...int) []string {
	t.Helper()
	var paths []string
	for i, w := range widths {
		name := string(rune('a'+i)) + ".png"
		paths = append(paths, testutil.WritePNG(t, dir, name, testutil.Gradient(w, 20)))
	}
	return paths
}

func TestProcess_OrderAndErrors(t *testing.T) {
	dir := t.TempDir()
	writeImages(t, dir, 30, 40, 50)
	testutil.WritePNG(t, dir, "d.png", testutil.Gradient(10, 10))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "e.png"), []byte("not an image"), 0o600))

	a := &fakeAnalyzer{fail: map[int]bool{40: true}}
	var mu sync.Mutex
	var seen []string
	res, err := Process(context.Background(), a, []string{dir}, Config{Workers: 2}, discard, func(it Item) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, it.File)
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 5)
	assert.Len(t, seen, 5)
	assert.Equal(t, 2, res.Workers)

	assert.Equal(t, "w30", res.Items[0].Result.Value)
	assert.Equal(t, filepath.Join(dir, "a.png"), res.Items[0].File)
	require.NotNil(t, res.Items[0].Region)
	assert.Equal(t, geometry.Rect{W: 30, H: 20}, *res.Items[0].Region)

	assert.False(t, res.Items[1].OK())
	assert.Equal(t, recognize.ErrEmptyRecognition.Error(), res.Items[1].Error)
	assert.Equal(t, "w50", res.Items[2].Result.Value)
	assert.Equal(t, "w10", res.Items[3].Result.Value)
	assert.False(t, res.Items[4].OK(), "undecodable files are reported per item")
	assert.NotEmpty(t, res.Items[4].Error)

	assert.Equal(t, Stats{Total: 5, Recognized: 3, Failed: 2}, res.Stats())
}

func TestProcess_WorkerLimit(t *testing.T) {
	dir := t.TempDir()
	writeImages(t, dir, 11, 12, 13, 14, 15, 16)

	a := &fakeAnalyzer{delay: 20 * time.Millisecond}
	res, err := Process(context.Background(), a, []string{dir}, Config{Workers: 2}, discard, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Stats().Recognized)
	assert.LessOrEqual(t, a.maxSeen.Load(), int32(2))
}

func TestProcess_WorkersCappedByFiles(t *testing.T) {
	dir := t.TempDir()
	writeImages(t, dir, 21)
	res, err := Process(context.Background(), &fakeAnalyzer{}, []string{dir}, Config{Workers: 8}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Workers)
}

func TestProcess_NoImages(t *testing.T) {
	_, err := Process(context.Background(), &fakeAnalyzer{}, []string{t.TempDir()}, Config{}, discard, nil)
	assert.ErrorIs(t, err, ErrNoImages)
}

func TestProcess_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeImages(t, dir, 11, 12, 13)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Process(ctx, &fakeAnalyzer{}, []string{dir}, Config{Workers: 1}, discard, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
