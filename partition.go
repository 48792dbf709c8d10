package fs8

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fs8io/fs8/internal/codec"
	"github.com/fs8io/fs8/internal/container"
)

// defaultCacheThreshold is the decompressed size below which blobs are
// retained in the partition's small-blob cache.
const defaultCacheThreshold = 64 << 10

// partition is one loaded pack: its parsed file-info table, its backing
// storage (an on-demand file handle or a caller-supplied byte slice), and
// the small-blob cache. Partitions are owned by a Registry and shared by
// every FileSystem bound to the same source.
type partition struct {
	// Identity. Exactly one of path/mem is set.
	path string
	mem  []byte

	infos map[string]container.BlobInfo

	mu    sync.Mutex
	cache map[string][]byte
	group singleflight.Group

	// File-backed state, guarded by mu.
	file  *os.File
	mtime time.Time

	lastAccess atomic.Int64
	refs       int

	cacheThreshold int64
	logger         *slog.Logger
}

func (p *partition) fileBacked() bool { return p.path != "" }

func (p *partition) touch() {
	p.lastAccess.Store(time.Now().UnixNano())
}

func (p *partition) log() *slog.Logger {
	if p.logger != nil {
		return p.logger
	}
	return slog.New(slog.DiscardHandler)
}

// exists reports whether name is present. name must be normalized.
func (p *partition) exists(name string) bool {
	p.touch()
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.infos[name]
	return ok
}

// size returns the decompressed size of name, or 0 when absent. name
// must be normalized.
func (p *partition) size(name string) int64 {
	p.touch()
	p.mu.Lock()
	defer p.mu.Unlock()
	info, ok := p.infos[name]
	if !ok {
		return 0
	}
	return info.DecompressedSize
}

// names returns every archive name in unspecified order.
func (p *partition) names() []string {
	p.touch()
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.infos))
	for name := range p.infos {
		out = append(out, name)
	}
	return out
}

// fetch decompresses the named blob into dst and returns the number of
// bytes written. name must be normalized. dst must be able to hold the
// blob's decompressed size.
func (p *partition) fetch(name string, dst []byte) (int, error) {
	p.touch()
	p.mu.Lock()
	info, ok := p.infos[name]
	if !ok {
		p.mu.Unlock()
		return 0, ErrNotFound
	}
	if info.DecompressedSize > int64(len(dst)) {
		p.mu.Unlock()
		return 0, ErrBufferTooSmall
	}
	if info.DecompressedSize == 0 {
		p.mu.Unlock()
		return 0, nil
	}
	n := int(info.DecompressedSize)
	if cached, ok := p.cache[name]; ok {
		copy(dst, cached)
		p.mu.Unlock()
		return n, nil
	}
	p.mu.Unlock()

	// Collapse concurrent loads of the same blob; every waiter copies
	// the shared result out into its own destination.
	v, err, _ := p.group.Do(name, func() (any, error) {
		return p.loadBlob(name, info)
	})
	if err != nil {
		return 0, err
	}
	copy(dst, v.([]byte))
	return n, nil
}

// loadBlob reads and decompresses one blob, installing it into the
// small-blob cache when it fits under the threshold. The returned slice
// is owned by the partition when cached, by the caller otherwise.
func (p *partition) loadBlob(name string, info container.BlobInfo) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cached, ok := p.cache[name]; ok {
		return cached, nil
	}

	var src []byte
	if p.fileBacked() {
		if err := p.ensureOpenLocked(); err != nil {
			return nil, err
		}
		src = make([]byte, info.CompressedSize)
		if _, err := p.file.ReadAt(src, info.Offset); err != nil {
			msg := fmt.Sprintf("read error for %q in %s: %v", name, p.path, err)
			p.log().Error("blob read failed", "name", name, "pack", p.path, "error", err)
			logError(msg)
			return nil, fmt.Errorf("fs8: %s", msg)
		}
	} else {
		end := info.Offset + info.CompressedSize
		if info.Offset < 0 || end > int64(len(p.mem)) {
			msg := fmt.Sprintf("blob %q out of bounds in memory pack", name)
			p.log().Error("blob out of bounds", "name", name)
			logError(msg)
			return nil, fmt.Errorf("%w: %s", ErrCorruptArchive, msg)
		}
		src = p.mem[info.Offset:end]
	}

	out := make([]byte, info.DecompressedSize)
	if err := codec.Decompress(out, src, int(info.DecompressedSize)); err != nil {
		msg := fmt.Sprintf("zstd decompression error for %q: %v", name, err)
		p.log().Error("decompression failed", "name", name, "error", err)
		logError(msg)
		return nil, fmt.Errorf("%w: %s", ErrCorruptArchive, msg)
	}

	if info.DecompressedSize < p.cacheThreshold {
		p.cache[name] = out
	}
	return out, nil
}

// ensureOpenLocked opens the backing file if needed. When the on-disk
// mtime no longer matches the recorded one the open is refused; the
// partition is recreated on the next registry acquire instead.
func (p *partition) ensureOpenLocked() error {
	if p.file != nil {
		return nil
	}
	st, err := os.Stat(p.path)
	if err != nil {
		msg := fmt.Sprintf("cannot stat %s: %v", p.path, err)
		p.log().Error("stat failed", "pack", p.path, "error", err)
		logError(msg)
		return fmt.Errorf("fs8: %s", msg)
	}
	if !st.ModTime().Equal(p.mtime) {
		msg := fmt.Sprintf("%s changed on disk; reopen refused", p.path)
		p.log().Warn("pack changed on disk", "pack", p.path)
		logError(msg)
		return fmt.Errorf("fs8: %s", msg)
	}
	f, err := os.Open(p.path)
	if err != nil {
		msg := fmt.Sprintf("cannot reopen %s: %v", p.path, err)
		p.log().Error("reopen failed", "pack", p.path, "error", err)
		logError(msg)
		return fmt.Errorf("fs8: %s", msg)
	}
	p.file = f
	return nil
}

// closeIfIdle closes the file handle when the partition has been idle
// longer than idleAfter and the on-disk mtime no longer matches. Stable
// files keep their handle; see the registry sweep.
func (p *partition) closeIfIdle(now time.Time, idleAfter time.Duration) {
	if !p.fileBacked() {
		return
	}
	last := time.Unix(0, p.lastAccess.Load())
	if now.Sub(last) <= idleAfter {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return
	}
	st, err := os.Stat(p.path)
	if err == nil && st.ModTime().Equal(p.mtime) {
		return
	}
	if err := p.file.Close(); err != nil {
		p.log().Warn("close failed", "pack", p.path, "error", err)
	}
	p.file = nil
}

// closeHandle drops the open file handle, if any. The registry calls
// this when the last reference is released and at teardown.
func (p *partition) closeHandle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file != nil {
		if err := p.file.Close(); err != nil {
			p.log().Warn("close failed", "pack", p.path, "error", err)
		}
		p.file = nil
	}
}
