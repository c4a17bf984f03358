package cmd

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/scan2sheets/internal/outbox"
	"github.com/MeKo-Tech/scan2sheets/internal/testutil"
)

func writeBatchDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	testutil.WritePNG(t, dir, "a.png", testutil.Gradient(80, 40))
	testutil.WritePNG(t, filepath.Join(dir, "sub"), "b.png", testutil.Gradient(60, 40))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.png"), []byte("nope"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("skip"), 0o600))
	return dir
}

func TestBatchCommand_CSV(t *testing.T) {
	env := newTestEnv("batch value")
	dir := writeBatchDir(t)

	out, err := env.run(t, "batch", dir, "--recursive", "--mode", "text", "--format", "csv")
	require.NoError(t, err)

	rows, err := csv.NewReader(bytes.NewBufferString(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, filepath.Join(dir, "a.png"), rows[1][0])
	assert.Equal(t, "batch value", rows[1][3])
	assert.Equal(t, filepath.Join(dir, "broken.png"), rows[2][0])
	assert.NotEmpty(t, rows[2][5])
	assert.Equal(t, filepath.Join(dir, "sub", "b.png"), rows[3][0])
}

func TestBatchCommand_PendingJSON(t *testing.T) {
	env := newTestEnv("batch value")
	dir := writeBatchDir(t)

	out, err := env.run(t, "batch", dir, "--mode", "text", "--exclude", "broken*", "--pending", "--format", "json")
	require.NoError(t, err)

	var got batchOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 1, got.Stats.Total, "top level only, broken file excluded")
	assert.Equal(t, 1, got.Stats.Recognized)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, outbox.StatusPending, got.Entries[0].Status)
	assert.Empty(t, env.sink.payloads)
}

func TestBatchCommand_SendFailure(t *testing.T) {
	env := newTestEnv("batch value")
	saveTestSettings(t, env)
	env.sink.err = assert.AnError
	dir := writeBatchDir(t)

	out, err := env.run(t, "batch", dir, "-r", "--mode", "text", "--send")
	require.ErrorIs(t, err, errDeliveryFailed)
	assert.Contains(t, out, "Recognized: 2")
	assert.Contains(t, out, "Failed: 1")

	out, err = env.run(t, "history", "list", "--status", "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "batch value")
}

func TestBatchCommand_Errors(t *testing.T) {
	env := newTestEnv("x")

	_, err := env.run(t, "batch", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no image files found")

	_, err = env.run(t, "batch", writeBatchDir(t), "--mode", "text", "--send")
	require.ErrorIs(t, err, outbox.ErrMissingEndpoint)

	_, err = env.run(t, "batch", writeBatchDir(t), "--format", "xml")
	require.Error(t, err)
}
