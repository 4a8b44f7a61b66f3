package library

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func setupLibrary(t *testing.T) *Library {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello world!"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("nested"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0644))

	lib, err := New(dir)
	require.NoError(t, err)
	return lib
}

func TestResolveHappyPath(t *testing.T) {
	lib := setupLibrary(t)
	r, err := lib.Resolve("a.txt")
	require.NoError(t, err)
	require.EqualValues(t, 12, r.Size)
}

func TestResolveNested(t *testing.T) {
	lib := setupLibrary(t)
	r, err := lib.Resolve("sub/b.txt")
	require.NoError(t, err)
	require.EqualValues(t, 6, r.Size)
}

func TestResolveRejectsTraversal(t *testing.T) {
	lib := setupLibrary(t)
	_, err := lib.Resolve("../etc/passwd")
	require.ErrorIs(t, err, ErrPathEscape)
}

func TestResolveRejectsMissingFile(t *testing.T) {
	lib := setupLibrary(t)
	_, err := lib.Resolve("nope.txt")
	require.ErrorIs(t, err, ErrFileNotFound)
}

func TestResolveRejectsDirectory(t *testing.T) {
	lib := setupLibrary(t)
	_, err := lib.Resolve("sub")
	require.ErrorIs(t, err, ErrNotRegularFile)
}

func TestList(t *testing.T) {
	lib := setupLibrary(t)
	files, err := lib.List()
	require.NoError(t, err)
	require.Equal(t, []string{"a.txt", "sub/b.txt"}, files)
}
