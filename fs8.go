package fs8

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fs8io/fs8/internal/container"
)

// FileSystem is a reader handle over one open pack. A handle holds at
// most one partition reference; reopening releases the previous one.
// The zero value is not usable; construct with New.
//
// A FileSystem is safe for concurrent reads, but Open and Close must
// not race with other methods on the same handle.
type FileSystem struct {
	reg    *Registry
	logger *slog.Logger
	part   *partition
}

// Option configures a FileSystem.
type Option func(*FileSystem)

// WithRegistry binds the handle to an explicit registry instead of the
// process-wide default.
func WithRegistry(reg *Registry) Option {
	return func(fs *FileSystem) {
		fs.reg = reg
	}
}

// WithLogger sets the structured logger for the handle.
func WithLogger(logger *slog.Logger) Option {
	return func(fs *FileSystem) {
		fs.logger = logger
	}
}

// New returns a FileSystem with no pack open.
func New(opts ...Option) *FileSystem {
	fs := &FileSystem{}
	for _, opt := range opts {
		opt(fs)
	}
	if fs.reg == nil {
		fs.reg = DefaultRegistry()
	}
	return fs
}

// OpenFile binds the handle to the pack at path, releasing any prior
// binding first. The path is resolved to its absolute form so that two
// spellings of the same pack share one partition.
func (fs *FileSystem) OpenFile(path string) error {
	if path == "" {
		logError("empty pack path")
		return fmt.Errorf("%w: empty path", ErrInvalidArgument)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		msg := fmt.Sprintf("cannot resolve %s: %v", path, err)
		logError(msg)
		return fmt.Errorf("fs8: %s", msg)
	}
	fs.closeCurrent()
	p, err := fs.reg.acquireFile(abs)
	if err != nil {
		return err
	}
	fs.part = p
	return nil
}

// OpenMemory binds the handle to an in-memory pack image. The caller
// must keep data alive and unmodified while the pack is open.
func (fs *FileSystem) OpenMemory(data []byte) error {
	fs.closeCurrent()
	p, err := fs.reg.acquireMemory(data)
	if err != nil {
		return err
	}
	fs.part = p
	return nil
}

// Exists reports whether name is present in the open pack. The name is
// normalized like every query: ASCII-lowercased, backslashes rewritten
// to forward slashes.
func (fs *FileSystem) Exists(name string) bool {
	if fs.part == nil {
		return false
	}
	return fs.part.exists(container.NormalizeName(name))
}

// Size returns the decompressed size of name, or 0 when the name is
// absent or no pack is open.
func (fs *FileSystem) Size(name string) int64 {
	if fs.part == nil {
		return 0
	}
	return fs.part.size(container.NormalizeName(name))
}

// Read decompresses the named blob into dst and returns the number of
// bytes written. dst must be able to hold the blob's full decompressed
// size; ErrBufferTooSmall reports when it cannot.
func (fs *FileSystem) Read(name string, dst []byte) (int, error) {
	if err := fs.check(); err != nil {
		return 0, err
	}
	return fs.part.fetch(container.NormalizeName(name), dst)
}

// ReadFile returns the named blob's decompressed bytes.
func (fs *FileSystem) ReadFile(name string) ([]byte, error) {
	return fs.readFile(name, false)
}

// ReadFileWithZero returns the named blob's decompressed bytes with a
// trailing zero byte appended, for consumers that want a C-string view
// of text content.
func (fs *FileSystem) ReadFileWithZero(name string) ([]byte, error) {
	return fs.readFile(name, true)
}

func (fs *FileSystem) readFile(name string, zero bool) ([]byte, error) {
	if err := fs.check(); err != nil {
		return nil, err
	}
	norm := container.NormalizeName(name)
	size := fs.part.size(norm)
	if size == 0 && !fs.part.exists(norm) {
		return nil, ErrNotFound
	}
	extra := 0
	if zero {
		extra = 1
	}
	buf := make([]byte, size, size+int64(extra))
	if _, err := fs.part.fetch(norm, buf); err != nil {
		return nil, err
	}
	if zero {
		buf = append(buf, 0)
	}
	return buf, nil
}

// Names returns every archive name in the open pack, in unspecified
// order.
func (fs *FileSystem) Names() []string {
	if fs.part == nil {
		return nil
	}
	return fs.part.names()
}

// Close releases the handle's partition reference. The partition stays
// in the registry for future opens; only its file handle closes when no
// references remain.
func (fs *FileSystem) Close() {
	fs.closeCurrent()
}

func (fs *FileSystem) closeCurrent() {
	if fs.part != nil {
		fs.reg.release(fs.part)
		fs.part = nil
	}
}

func (fs *FileSystem) check() error {
	if fs.part == nil {
		logError("no pack open")
		return fmt.Errorf("%w: no pack open", ErrInvalidArgument)
	}
	return nil
}
