package container

import (
	"encoding/binary"
	"fmt"
)

const (
	// MaxTableSize caps the serialized file-info table payload.
	MaxTableSize = 64 << 20

	// MaxNameLen caps a single archive name.
	MaxNameLen = 512
)

// BlobInfo locates one compressed blob inside a pack.
type BlobInfo struct {
	Offset           int64
	CompressedSize   int64
	DecompressedSize int64
}

// blobInfoSize is the serialized size of the three int64 fields.
const blobInfoSize = 24

// NormalizeName lowercases ASCII letters and rewrites backslashes to
// forward slashes. Archive names are stored and looked up in this form.
func NormalizeName(name string) string {
	b := []byte(name)
	changed := false
	for i, c := range b {
		switch {
		case c >= 'A' && c <= 'Z':
			b[i] = c + ('a' - 'A')
			changed = true
		case c == '\\':
			b[i] = '/'
			changed = true
		}
	}
	if !changed {
		return name
	}
	return string(b)
}

// EncodeTable serializes the file-info table: a little-endian uint32
// payload length followed by one record per entry. Names are normalized
// before writing. Record layout: int16 name length, name bytes, then
// offset, compressed size, and decompressed size as little-endian int64.
func EncodeTable(infos map[string]BlobInfo) ([]byte, error) {
	size := 4
	for name := range infos {
		if len(name) > MaxNameLen {
			return nil, fmt.Errorf("name too long: %d bytes", len(name))
		}
		size += 2 + len(name) + blobInfoSize
	}
	if size-4 > MaxTableSize {
		return nil, fmt.Errorf("table too large: %d bytes", size-4)
	}

	buf := make([]byte, 4, size)
	binary.LittleEndian.PutUint32(buf, uint32(size-4))
	for name, info := range infos {
		name = NormalizeName(name)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(name)))
		buf = append(buf, name...)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(info.Offset))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(info.CompressedSize))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(info.DecompressedSize))
	}
	return buf, nil
}

// ParseTable parses a table payload (without the leading uint32 length)
// into a name-to-blob map. The payload must be consumed exactly.
func ParseTable(payload []byte) (map[string]BlobInfo, error) {
	if len(payload) > MaxTableSize {
		return nil, fmt.Errorf("table too large: %d bytes", len(payload))
	}
	infos := make(map[string]BlobInfo)
	rest := payload
	for len(rest) > 0 {
		if len(rest) < 2 {
			return nil, fmt.Errorf("truncated name length")
		}
		nameLen := int(binary.LittleEndian.Uint16(rest))
		rest = rest[2:]
		if nameLen > MaxNameLen {
			return nil, fmt.Errorf("name length %d exceeds %d", nameLen, MaxNameLen)
		}
		if len(rest) < nameLen {
			return nil, fmt.Errorf("truncated name")
		}
		name := string(rest[:nameLen])
		rest = rest[nameLen:]
		if len(rest) < blobInfoSize {
			return nil, fmt.Errorf("truncated blob info for %q", name)
		}
		infos[name] = BlobInfo{
			Offset:           int64(binary.LittleEndian.Uint64(rest[0:8])),
			CompressedSize:   int64(binary.LittleEndian.Uint64(rest[8:16])),
			DecompressedSize: int64(binary.LittleEndian.Uint64(rest[16:24])),
		}
		rest = rest[blobInfoSize:]
	}
	return infos, nil
}
