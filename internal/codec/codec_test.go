package codec

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		data []byte
	}{
		{"text", bytes.Repeat([]byte("compress me "), 100)},
		{"single byte", []byte{0x42}},
		{"random", randomBytes(t, 64<<10)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			compressed, err := Compress(tc.data, 1)
			require.NoError(t, err)

			out := make([]byte, len(tc.data))
			require.NoError(t, Decompress(out, compressed, len(tc.data)))
			assert.Equal(t, tc.data, out)
		})
	}
}

func TestCompressLevels(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("levels of compression "), 500)
	for _, level := range []int{1, 3, 9, 19} {
		compressed, err := Compress(data, level)
		require.NoError(t, err, "level %d", level)

		out := make([]byte, len(data))
		require.NoError(t, Decompress(out, compressed, len(data)))
		assert.Equal(t, data, out, "level %d", level)
	}
}

func TestDecompressErrors(t *testing.T) {
	t.Parallel()

	data := []byte("some payload to compress")
	compressed, err := Compress(data, 1)
	require.NoError(t, err)

	t.Run("undersized destination", func(t *testing.T) {
		t.Parallel()
		err := Decompress(make([]byte, 4), compressed, len(data))
		assert.Error(t, err)
	})

	t.Run("length mismatch", func(t *testing.T) {
		t.Parallel()
		err := Decompress(make([]byte, len(data)+10), compressed, len(data)+10)
		assert.Error(t, err)
	})

	t.Run("garbage input", func(t *testing.T) {
		t.Parallel()
		err := Decompress(make([]byte, 16), []byte("not a zstd frame"), 16)
		assert.Error(t, err)
	})
}

func TestPoolReuse(t *testing.T) {
	t.Parallel()

	data := randomBytes(t, 1<<10)
	for range 32 {
		compressed, err := Compress(data, 1)
		require.NoError(t, err)
		out := make([]byte, len(data))
		require.NoError(t, Decompress(out, compressed, len(data)))
		require.Equal(t, data, out)
	}
}

func randomBytes(tb testing.TB, n int) []byte {
	tb.Helper()
	rng := rand.New(rand.NewSource(1))
	b := make([]byte, n)
	_, err := rng.Read(b)
	require.NoError(tb, err)
	return b
}
