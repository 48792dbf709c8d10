package fs8

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeSources materializes files under a fresh temp dir and returns it.
func writeSources(tb testing.TB, files map[string][]byte) string {
	tb.Helper()
	dir := tb.TempDir()
	for name, data := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(tb, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(tb, os.WriteFile(path, data, 0o644))
	}
	return dir
}

// buildPack builds a signed pack from the given files and returns its
// path.
func buildPack(tb testing.TB, files map[string][]byte, opts ...BuildOption) string {
	tb.Helper()
	dir := writeSources(tb, files)
	entries := make([]BuildEntry, 0, len(files))
	for name := range files {
		entries = append(entries, BuildEntry{SourcePath: filepath.FromSlash(name), ArchiveName: name})
	}
	out := filepath.Join(tb.TempDir(), "test.fs8")
	require.NoError(tb, Build(dir, entries, out, opts...))
	return out
}

func randomBytes(tb testing.TB, n int) []byte {
	tb.Helper()
	rng := rand.New(rand.NewSource(42))
	b := make([]byte, n)
	_, err := rng.Read(b)
	require.NoError(tb, err)
	return b
}

func TestBuildAndRead(t *testing.T) {
	t.Parallel()

	payload := randomBytes(t, 256)
	pack := buildPack(t, map[string][]byte{
		"a.txt":   []byte("hello"),
		"b/c.bin": payload,
	}, WithCompressionLevel(1))

	require.NoError(t, VerifySignature(pack))

	handle := New(WithRegistry(NewRegistry()))
	require.NoError(t, handle.OpenFile(pack))
	defer handle.Close()

	data, err := handle.ReadFile("a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	data, err = handle.ReadFile("B/C.bin")
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	assert.False(t, handle.Exists("x"))
	assert.Equal(t, int64(5), handle.Size("a.txt"))
}

func TestBuildEmptyEntry(t *testing.T) {
	t.Parallel()

	pack := buildPack(t, map[string][]byte{"empty": {}})

	handle := New(WithRegistry(NewRegistry()))
	require.NoError(t, handle.OpenFile(pack))
	defer handle.Close()

	assert.True(t, handle.Exists("empty"))
	assert.Equal(t, int64(0), handle.Size("empty"))

	n, err := handle.Read("empty", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	buf := make([]byte, 10)
	n, err = handle.Read("empty", buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	data, err := handle.ReadFile("empty")
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestBuildRejects(t *testing.T) {
	t.Parallel()

	t.Run("no entries", func(t *testing.T) {
		t.Parallel()
		out := filepath.Join(t.TempDir(), "out.fs8")
		err := Build(t.TempDir(), nil, out)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("missing source", func(t *testing.T) {
		t.Parallel()
		out := filepath.Join(t.TempDir(), "out.fs8")
		err := Build(t.TempDir(), []BuildEntry{{SourcePath: "absent.txt"}}, out)
		require.Error(t, err)
		_, statErr := os.Stat(out)
		assert.True(t, os.IsNotExist(statErr), "failed build must not leave output behind")
	})
}

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	pack := buildPack(t, map[string][]byte{"a.txt": []byte("payload bytes here")})

	t.Run("valid pack", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, VerifySignature(pack))
	})

	t.Run("tampered blob", func(t *testing.T) {
		t.Parallel()
		data, err := os.ReadFile(pack)
		require.NoError(t, err)
		data[30] ^= 0xFF
		tampered := filepath.Join(t.TempDir(), "tampered.fs8")
		require.NoError(t, os.WriteFile(tampered, data, 0o644))
		assert.ErrorIs(t, VerifySignature(tampered), ErrSignatureMismatch)
	})

	t.Run("not a pack", func(t *testing.T) {
		t.Parallel()
		junk := filepath.Join(t.TempDir(), "junk.fs8")
		require.NoError(t, os.WriteFile(junk, []byte("definitely not a pack"), 0o644))
		assert.ErrorIs(t, VerifySignature(junk), ErrCorruptArchive)
	})

	t.Run("memory image", func(t *testing.T) {
		t.Parallel()
		data, err := os.ReadFile(pack)
		require.NoError(t, err)
		assert.NoError(t, VerifySignatureData(data))
		data[30] ^= 0xFF
		assert.ErrorIs(t, VerifySignatureData(data), ErrSignatureMismatch)
	})
}

func TestHexOutput(t *testing.T) {
	t.Parallel()

	files := map[string][]byte{"a.bin": randomBytes(t, 2048)}
	binary := buildPack(t, files)
	binSize := fileSize(t, binary)

	hexPack := buildPack(t, files, WithHexOutput())
	hexData, err := os.ReadFile(hexPack)
	require.NoError(t, err)

	assert.Equal(t, "0x", string(hexData[:2]))
	for _, c := range string(hexData) {
		assert.Contains(t, "0123456789ABCDEFx,\n", string(c))
	}
	assert.Greater(t, int64(len(hexData)), binSize)

	// The transcription is destructive.
	handle := New(WithRegistry(NewRegistry()))
	assert.Error(t, handle.OpenFile(hexPack))
}

func fileSize(tb testing.TB, path string) int64 {
	tb.Helper()
	st, err := os.Stat(path)
	require.NoError(tb, err)
	return st.Size()
}

func TestConvertToHex32RoundTripsThroughTemp(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "raw.bin")
	require.NoError(t, os.WriteFile(path, []byte{1, 0, 0, 0}, 0o644))
	require.NoError(t, ConvertToHex32(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0x1,", string(data))

	_, err = os.Stat(path + ".hex.tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not survive")
}
