package batch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	return path
}

func TestDiscover_EmptyArgs(t *testing.T) {
	files, err := Discover(nil, false, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDiscover_Directory(t *testing.T) {
	dir := t.TempDir()
	png := touch(t, filepath.Join(dir, "image.png"))
	jpg := touch(t, filepath.Join(dir, "photo.JPG"))
	touch(t, filepath.Join(dir, "notes.txt"))
	touch(t, filepath.Join(dir, "nested", "deep.png"))

	files, err := Discover([]string{dir}, false, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{png, jpg}, files, "supported extensions only, top level only")
}

func TestDiscover_Recursive(t *testing.T) {
	dir := t.TempDir()
	top := touch(t, filepath.Join(dir, "a.png"))
	deep := touch(t, filepath.Join(dir, "nested", "more", "b.webp"))

	files, err := Discover([]string{dir}, true, nil, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{top, deep}, files)
}

func TestDiscover_Patterns(t *testing.T) {
	dir := t.TempDir()
	keep := touch(t, filepath.Join(dir, "scan_001.png"))
	touch(t, filepath.Join(dir, "scan_002_thumb.png"))
	touch(t, filepath.Join(dir, "other.png"))

	files, err := Discover([]string{dir}, false, []string{"scan_*"}, []string{"*_thumb.*"})
	require.NoError(t, err)
	assert.Equal(t, []string{keep}, files)
}

func TestDiscover_ExplicitFilesAndDuplicates(t *testing.T) {
	dir := t.TempDir()
	png := touch(t, filepath.Join(dir, "a.png"))
	txt := touch(t, filepath.Join(dir, "b.txt"))

	files, err := Discover([]string{png, txt, dir}, false, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{png}, files)
}

func TestDiscover_MissingPath(t *testing.T) {
	_, err := Discover([]string{filepath.Join(t.TempDir(), "missing")}, false, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot access")
}

func TestShouldIncludeFile(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		include []string
		exclude []string
		want    bool
	}{
		{"supported extension", "/x/a.png", nil, nil, true},
		{"unsupported extension", "/x/a.pdf", nil, nil, false},
		{"include overrides extension check", "/x/a.raw", []string{"*.raw"}, nil, true},
		{"exclude wins", "/x/a.png", []string{"*.png"}, []string{"a.*"}, false},
		{"include miss", "/x/a.png", []string{"*.jpg"}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldIncludeFile(tt.path, tt.include, tt.exclude))
		})
	}
}
