package container

import (
	"encoding/binary"
	"fmt"
)

const (
	// SignatureSize is the total size of a type-1 signature record.
	SignatureSize = 12

	// SignatureTypeHash is the rolling-hash signature type.
	SignatureTypeHash = 1
)

// Hasher computes the 32-bit rolling content hash over a byte stream.
//
// Input is consumed as little-endian 32-bit words; any trailing tail
// shorter than four bytes is dropped. This tail behavior is part of the
// on-disk contract and must not be "fixed".
type Hasher struct {
	h   uint32
	rem [4]byte
	n   int
}

// Update folds p into the running hash. Partial words are carried across
// calls so chunked input hashes identically to contiguous input.
func (hs *Hasher) Update(p []byte) {
	if hs.n > 0 {
		for len(p) > 0 && hs.n < 4 {
			hs.rem[hs.n] = p[0]
			hs.n++
			p = p[1:]
		}
		if hs.n < 4 {
			return
		}
		hs.step(binary.LittleEndian.Uint32(hs.rem[:]))
		hs.n = 0
	}
	for len(p) >= 4 {
		hs.step(binary.LittleEndian.Uint32(p))
		p = p[4:]
	}
	hs.n = copy(hs.rem[:], p)
}

func (hs *Hasher) step(word uint32) {
	hs.h += word + hs.h*33 + 1 + (hs.h >> 6)
}

// Sum returns the hash of all complete words seen so far. Carried tail
// bytes are ignored.
func (hs *Hasher) Sum() uint32 {
	return hs.h
}

// Write folds p into the hash and never fails, so a Hasher can sit on
// the receiving end of io.Copy.
func (hs *Hasher) Write(p []byte) (int, error) {
	hs.Update(p)
	return len(p), nil
}

// EncodeSignature serializes a type-1 signature record.
func EncodeSignature(hash uint32) [SignatureSize]byte {
	var buf [SignatureSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], SignatureSize)
	binary.LittleEndian.PutUint32(buf[4:8], SignatureTypeHash)
	binary.LittleEndian.PutUint32(buf[8:12], hash)
	return buf
}

// ParseSignature decodes a signature record and returns the stored hash.
func ParseSignature(buf []byte) (uint32, error) {
	if len(buf) < SignatureSize {
		return 0, fmt.Errorf("signature too short: %d bytes", len(buf))
	}
	size := binary.LittleEndian.Uint32(buf[0:4])
	typ := binary.LittleEndian.Uint32(buf[4:8])
	if typ != SignatureTypeHash {
		return 0, fmt.Errorf("unsupported signature type %d", typ)
	}
	if size != SignatureSize {
		return 0, fmt.Errorf("bad signature size %d", size)
	}
	return binary.LittleEndian.Uint32(buf[8:12]), nil
}

// AlignSignature returns the number of zero padding bytes needed to
// align a signature record starting at off to an 8-byte boundary.
func AlignSignature(off int64) int {
	if off%8 == 0 {
		return 0
	}
	return int(8 - off%8)
}
