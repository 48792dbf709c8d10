// Package codec wraps zstd compression and decompression behind pooled
// contexts so that repeated calls amortize context allocation. Pools are
// process-wide; sync.Pool keeps contexts per P, which gives each worker
// its own context under steady load.
package codec

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// maxDecoderMemory bounds a single decoded frame (256MB).
const maxDecoderMemory = 256 << 20

var decoders = sync.Pool{
	New: func() any {
		dec, err := zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(maxDecoderMemory),
		)
		if err != nil {
			return nil
		}
		return dec
	},
}

// encoders holds one pool per effective zstd encoder level.
var encoders [zstd.SpeedBestCompression + 1]sync.Pool

// Compress compresses src at the given zstd level and returns the
// compressed bytes. Level follows zstd conventions (1 = fastest).
func Compress(src []byte, level int) ([]byte, error) {
	lvl := zstd.EncoderLevelFromZstd(level)
	pool := &encoders[lvl]
	enc, _ := pool.Get().(*zstd.Encoder)
	if enc == nil {
		var err error
		enc, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(lvl),
			zstd.WithEncoderConcurrency(1),
			zstd.WithLowerEncoderMem(true),
		)
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
	}
	out := enc.EncodeAll(src, nil)
	pool.Put(enc)
	return out, nil
}

// Decompress decompresses src into dst, which must have capacity for
// expectedLen bytes. It fails when the frame does not decode to exactly
// expectedLen bytes.
func Decompress(dst, src []byte, expectedLen int) error {
	if cap(dst) < expectedLen {
		return fmt.Errorf("destination capacity %d below %d", cap(dst), expectedLen)
	}
	dec, _ := decoders.Get().(*zstd.Decoder)
	if dec == nil {
		var err error
		dec, err = zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(maxDecoderMemory),
		)
		if err != nil {
			return fmt.Errorf("create zstd decoder: %w", err)
		}
	}
	out, err := dec.DecodeAll(src, dst[:0])
	decoders.Put(dec)
	if err != nil {
		return fmt.Errorf("zstd decompress: %w", err)
	}
	if len(out) != expectedLen {
		return fmt.Errorf("decompressed %d bytes, want %d", len(out), expectedLen)
	}
	if len(out) > 0 && &out[0] != &dst[:1][0] {
		copy(dst[:expectedLen], out)
	}
	return nil
}
