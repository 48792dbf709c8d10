package fs8

import "errors"

// Sentinel errors for pack operations.
var (
	// ErrCorruptArchive is returned when a pack fails structural
	// validation or a blob fails to decompress.
	ErrCorruptArchive = errors.New("fs8: corrupt archive")

	// ErrNotFound is returned when the requested archive name is absent.
	ErrNotFound = errors.New("fs8: file not found")

	// ErrBufferTooSmall is returned when the destination buffer cannot
	// hold the decompressed blob.
	ErrBufferTooSmall = errors.New("fs8: buffer too small")

	// ErrInvalidArgument is returned for empty paths, empty memory
	// sources, and handles with no open pack.
	ErrInvalidArgument = errors.New("fs8: invalid argument")

	// ErrSignatureMismatch is returned when the recomputed content hash
	// does not match the stored signature.
	ErrSignatureMismatch = errors.New("fs8: signature mismatch")
)
