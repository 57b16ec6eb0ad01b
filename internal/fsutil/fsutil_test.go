package fsutil

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSONCreatesValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "doc.json")

	require.NoError(t, WriteJSON(path, map[string]int{"a": 1}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got map[string]int
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 1, got["a"])

	leftovers, err := TempFiles(path)
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestWriteJSONFailureKeepsOldFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, WriteJSON(path, map[string]int{"a": 1}))

	// NaN cannot be marshaled, so nothing may touch the destination.
	err := WriteJSON(path, map[string]float64{"bad": math.NaN()})
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))

	leftovers, err := TempFiles(path)
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestWriteFileRenameFailureRemovesTemp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, os.MkdirAll(filepath.Join(path, "occupied"), 0o755))

	err := WriteFile(path, []byte(`{"a":1}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "renaming temp file")

	leftovers, err := TempFiles(path)
	require.NoError(t, err)
	assert.Empty(t, leftovers)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.json")
	dst := filepath.Join(dir, "snapshots", "dst.json")
	require.NoError(t, os.WriteFile(src, []byte(`{"x":1}`), 0o600))

	require.NoError(t, CopyFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, `{"x":1}`, string(data))
	assert.True(t, Exists(dst))
}
