package rewrite

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRevMapSetAndGet(t *testing.T) {
	r := NewRevMap()
	require.False(t, r.Has("a"))

	r.SetHash("a", "b")
	ok := r.Has("a")
	require.True(t, ok)
	v, ok := r.Get("a")
	require.True(t, ok)
	require.Equal(t, "b", v)
}

func TestRevMapSaveLoadRoundTrip(t *testing.T) {
	r := NewRevMap()
	r.SetHash("old1", "new1")
	r.SetHash("old2", "new2")

	path := filepath.Join(t.TempDir(), "revmap")
	require.NoError(t, r.Save(path))

	loaded, err := LoadRevMap(path)
	require.NoError(t, err)
	require.Equal(t, 2, loaded.Len())
	v, ok := loaded.Get("old1")
	require.True(t, ok)
	require.Equal(t, "new1", v)
}

func TestLoadRevMapMissingFileIsEmpty(t *testing.T) {
	r, err := LoadRevMap(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	require.Equal(t, 0, r.Len())
}

func TestLoadRevMapEmptyPathIsEmpty(t *testing.T) {
	r, err := LoadRevMap("")
	require.NoError(t, err)
	require.Equal(t, 0, r.Len())
}

func TestRevMapSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "revmap")
	require.NoError(t, os.WriteFile(path, []byte("onlyonecolumn\nold new\n\n"), 0o644))

	r, err := LoadRevMap(path)
	require.NoError(t, err)
	require.Equal(t, 1, r.Len())
	v, ok := r.Get("old")
	require.True(t, ok)
	require.Equal(t, "new", v)
}
