package media

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupFileStore(t *testing.T) (*LocalFileStore, string) {
	t.Helper()
	root := t.TempDir()
	store, err := NewLocalFileStore(root)
	require.NoError(t, err)
	return store, root
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("fake image data"), 0644))
}

func TestResolveFile(t *testing.T) {
	store, root := setupFileStore(t)
	writeFile(t, filepath.Join(root, "album", "a.jpg"))

	path, err := store.ResolveFile("album/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "album", "a.jpg"), path)
}

func TestResolveFileVanished(t *testing.T) {
	store, _ := setupFileStore(t)

	_, err := store.ResolveFile("gone.jpg")
	assert.ErrorIs(t, err, ErrFileVanished)
}

func TestResolveFileTraversalForbidden(t *testing.T) {
	store, root := setupFileStore(t)

	outside := filepath.Join(filepath.Dir(root), "escape.jpg")
	writeFile(t, outside)
	t.Cleanup(func() { os.Remove(outside) })

	_, err := store.ResolveFile("../escape.jpg")
	assert.ErrorIs(t, err, ErrFileForbidden)
}

func TestResolveFileSiblingRootForbidden(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "files")
	require.NoError(t, os.MkdirAll(root, 0755))
	store, err := NewLocalFileStore(root)
	require.NoError(t, err)

	// a directory whose name extends the root must not pass the escape check
	writeFile(t, filepath.Join(parent, "files-private", "secret.jpg"))

	_, err = store.ResolveFile("../files-private/secret.jpg")
	assert.ErrorIs(t, err, ErrFileForbidden)
}

func TestResolveFileExtensionForbidden(t *testing.T) {
	store, root := setupFileStore(t)
	writeFile(t, filepath.Join(root, "notes.txt"))

	_, err := store.ResolveFile("notes.txt")
	assert.ErrorIs(t, err, ErrFileForbidden)
}

func TestNewLocalFileStoreValidation(t *testing.T) {
	_, err := NewLocalFileStore(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "plain.jpg")
	writeFile(t, file)
	_, err = NewLocalFileStore(file)
	assert.Error(t, err, "root must be a directory")
}
