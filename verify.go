package fs8

import (
	"fmt"
	"io"
	"os"

	"github.com/fs8io/fs8/internal/container"
)

// VerifySignature recomputes the content hash of the pack at path and
// compares it against the stored trailing signature. It returns nil
// when they match, ErrSignatureMismatch when they differ, and
// ErrCorruptArchive when the file is not structurally a signed pack.
func VerifySignature(path string) error {
	f, err := os.Open(path)
	if err != nil {
		msg := fmt.Sprintf("cannot open %s: %v", path, err)
		logError(msg)
		return fmt.Errorf("fs8: %s", msg)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		msg := fmt.Sprintf("cannot stat %s: %v", path, err)
		logError(msg)
		return fmt.Errorf("fs8: %s", msg)
	}

	var hdr [container.HeaderSize]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		return corrupt(path, fmt.Errorf("read header: %w", err))
	}
	h, err := container.ParseHeader(hdr[:])
	if err != nil {
		return corrupt(path, err)
	}
	if h.SignatureOffset < container.HeaderSize ||
		h.SignatureOffset+container.SignatureSize > st.Size() {
		return corrupt(path, fmt.Errorf("signature offset %d out of bounds", h.SignatureOffset))
	}

	var sigBuf [container.SignatureSize]byte
	if _, err := f.ReadAt(sigBuf[:], h.SignatureOffset); err != nil {
		return corrupt(path, fmt.Errorf("read signature: %w", err))
	}
	stored, err := container.ParseSignature(sigBuf[:])
	if err != nil {
		return corrupt(path, err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		msg := fmt.Sprintf("cannot seek %s: %v", path, err)
		logError(msg)
		return fmt.Errorf("fs8: %s", msg)
	}
	var hs container.Hasher
	if _, err := io.Copy(&hs, io.LimitReader(f, h.SignatureOffset)); err != nil {
		msg := fmt.Sprintf("cannot hash %s: %v", path, err)
		logError(msg)
		return fmt.Errorf("fs8: %s", msg)
	}
	if hs.Sum() != stored {
		return fmt.Errorf("%w: %s", ErrSignatureMismatch, path)
	}
	return nil
}

// VerifySignatureData is VerifySignature over an in-memory pack image.
func VerifySignatureData(data []byte) error {
	h, err := container.ParseHeader(data)
	if err != nil {
		return corrupt("memory pack", err)
	}
	if h.SignatureOffset < container.HeaderSize ||
		h.SignatureOffset+container.SignatureSize > int64(len(data)) {
		return corrupt("memory pack", fmt.Errorf("signature offset %d out of bounds", h.SignatureOffset))
	}
	stored, err := container.ParseSignature(data[h.SignatureOffset:])
	if err != nil {
		return corrupt("memory pack", err)
	}
	var hs container.Hasher
	hs.Update(data[:h.SignatureOffset])
	if hs.Sum() != stored {
		return fmt.Errorf("%w: memory pack", ErrSignatureMismatch)
	}
	return nil
}

func corrupt(what string, err error) error {
	msg := fmt.Sprintf("corrupt pack %s: %v", what, err)
	logError(msg)
	return fmt.Errorf("%w: %s", ErrCorruptArchive, msg)
}
