package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fs8io/fs8"
)

func TestReadListFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "list.txt")
	require.NoError(t, os.WriteFile(path, []byte(
		"plain.txt\r\n"+
			"source.bin  archive/name.bin trailing-junk\n"+
			"\n"+
			"last.dat\n"), 0o644))

	entries, err := readListFile(path)
	require.NoError(t, err)
	assert.Equal(t, []fs8.BuildEntry{
		{SourcePath: "plain.txt"},
		{SourcePath: "source.bin", ArchiveName: "archive/name.bin"},
		{SourcePath: "last.dat"},
	}, entries)
}

func TestWalkDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub", ".hidden"), 0o755))
	for _, name := range []string{"keep.txt", "skip.log", ".dotfile", "sub/nested.bin", "sub/.hidden/deep.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, filepath.FromSlash(name)), []byte("x"), 0o644))
	}

	entries, err := walkDir(dir, []string{"*.log"}, true)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.ArchiveName)
	}
	assert.ElementsMatch(t, []string{"keep.txt", "sub/nested.bin"}, names)
}

func TestRunPacksDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))
	out := filepath.Join(t.TempDir(), "out.fs8")

	code := run([]string{"--level:1", dir, out})
	require.Equal(t, 0, code)
	require.NoError(t, fs8.VerifySignature(out))

	handle := fs8.New()
	require.NoError(t, handle.OpenFile(out))
	defer handle.Close()
	data, err := handle.ReadFile("a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestRunBadArgs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, run(nil))
	assert.Equal(t, 1, run([]string{"--bogus", "a", "b"}))
	assert.Equal(t, 1, run([]string{"--level:x", "a", "b"}))
}
