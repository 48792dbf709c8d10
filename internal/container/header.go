package container

import (
	"encoding/binary"
	"fmt"
)

const (
	// Magic identifies an FS8 pack.
	Magic = "FS8."

	// HeaderSize is the fixed size of the pack header in bytes.
	HeaderSize = 24

	// Version is the only supported container version.
	Version = 1
)

// versionBytes is the exact four-byte form written by the builder.
// Parsing is lenient and accepts any leading-integer form.
var versionBytes = [4]byte{'1', ' ', ' ', ' '}

// Header describes the two trailing-structure offsets recorded in the
// fixed pack header.
type Header struct {
	// TableOffset is the absolute offset of the file-info table.
	TableOffset int64

	// SignatureOffset is the absolute offset of the signature record.
	SignatureOffset int64
}

// EncodeHeader serializes h into the fixed 24-byte header layout.
func EncodeHeader(h Header) [HeaderSize]byte {
	var buf [HeaderSize]byte
	copy(buf[0:4], Magic)
	copy(buf[4:8], versionBytes[:])
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.TableOffset))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.SignatureOffset))
	return buf
}

// ParseHeader validates the magic and version and returns the recorded
// offsets. buf must hold at least HeaderSize bytes.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("header too short: %d bytes", len(buf))
	}
	if string(buf[0:4]) != Magic {
		return Header{}, fmt.Errorf("bad magic %q", buf[0:4])
	}
	if v := parseLeadingInt(buf[4:8]); v != Version {
		return Header{}, fmt.Errorf("unsupported version %d", v)
	}
	return Header{
		TableOffset:     int64(binary.LittleEndian.Uint64(buf[8:16])),
		SignatureOffset: int64(binary.LittleEndian.Uint64(buf[16:24])),
	}, nil
}

// parseLeadingInt mimics atoi over the four version bytes: skip leading
// spaces, accept an optional sign, stop at the first non-digit.
func parseLeadingInt(b []byte) int {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t') {
		i++
	}
	neg := false
	if i < len(b) && (b[i] == '+' || b[i] == '-') {
		neg = b[i] == '-'
		i++
	}
	n := 0
	for ; i < len(b) && b[i] >= '0' && b[i] <= '9'; i++ {
		n = n*10 + int(b[i]-'0')
	}
	if neg {
		return -n
	}
	return n
}
