package fs8

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fs8io/fs8/internal/container"
)

const (
	// defaultIdleCloseAfter is how long a file-backed partition may sit
	// unaccessed before the sweep considers closing its handle.
	defaultIdleCloseAfter = 500 * time.Millisecond

	// defaultSweepInterval throttles Tick.
	defaultSweepInterval = 100 * time.Millisecond
)

// Registry is a shared set of live partitions keyed by absolute pack
// path or by memory-source identity. It deduplicates loads so that many
// FileSystem handles over the same pack share one parsed table and one
// small-blob cache. All methods are safe for concurrent use.
type Registry struct {
	mu         sync.Mutex
	partitions []*partition
	lastSweep  time.Time

	idleAfter      time.Duration
	sweepEvery     time.Duration
	cacheThreshold int64
	logger         *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithIdleCloseAfter sets the idle duration after which the sweep may
// close a file-backed partition's handle.
func WithIdleCloseAfter(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.idleAfter = d
	}
}

// WithSweepInterval sets the minimum interval between sweeps; Tick
// calls inside the interval return immediately.
func WithSweepInterval(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.sweepEvery = d
	}
}

// WithCacheThreshold sets the decompressed size below which blobs are
// retained in the small-blob cache.
func WithCacheThreshold(n int64) RegistryOption {
	return func(r *Registry) {
		r.cacheThreshold = n
	}
}

// WithRegistryLogger sets the structured logger used by the registry
// and its partitions.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		idleAfter:      defaultIdleCloseAfter,
		sweepEvery:     defaultSweepInterval,
		cacheThreshold: defaultCacheThreshold,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	return NewRegistry()
})

// DefaultRegistry returns the process-wide registry used by FileSystem
// handles that were not given an explicit one.
func DefaultRegistry() *Registry {
	return defaultRegistry()
}

func (r *Registry) log() *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return slog.New(slog.DiscardHandler)
}

// acquireFile returns a referenced partition for the pack at absPath,
// loading it on first use and recreating it when the file changed on
// disk since the last load.
func (r *Registry) acquireFile(absPath string) (*partition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.partitions {
		if p.path != absPath {
			continue
		}
		p.mu.Lock()
		open := p.file != nil
		recorded := p.mtime
		p.mu.Unlock()

		if open {
			p.refs++
			p.touch()
			return p, nil
		}
		st, err := os.Stat(absPath)
		if err != nil {
			msg := fmt.Sprintf("cannot stat %s: %v", absPath, err)
			r.log().Error("stat failed", "pack", absPath, "error", err)
			logError(msg)
			return nil, fmt.Errorf("fs8: %s", msg)
		}
		if st.ModTime().Equal(recorded) {
			f, err := os.Open(absPath)
			if err != nil {
				msg := fmt.Sprintf("cannot reopen %s: %v", absPath, err)
				r.log().Error("reopen failed", "pack", absPath, "error", err)
				logError(msg)
				return nil, fmt.Errorf("fs8: %s", msg)
			}
			p.mu.Lock()
			p.file = f
			p.mu.Unlock()
			p.refs++
			p.touch()
			return p, nil
		}

		// Changed on disk: keep the partition's identity but rebuild
		// its table and drop the stale cache.
		file, infos, mtime, err := r.loadPackFile(absPath)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		if p.file != nil {
			p.file.Close()
		}
		p.file = file
		p.mtime = mtime
		p.cache = make(map[string][]byte)
		p.infos = infos
		p.mu.Unlock()
		p.refs++
		p.touch()
		return p, nil
	}

	file, infos, mtime, err := r.loadPackFile(absPath)
	if err != nil {
		return nil, err
	}
	p := &partition{
		path:           absPath,
		infos:          infos,
		cache:          make(map[string][]byte),
		file:           file,
		mtime:          mtime,
		refs:           1,
		cacheThreshold: r.cacheThreshold,
		logger:         r.logger,
	}
	p.touch()
	r.partitions = append(r.partitions, p)
	return p, nil
}

// acquireMemory returns a referenced partition over a caller-supplied
// pack image. Identity is the slice's backing array, so two opens of
// the same buffer share one partition.
func (r *Registry) acquireMemory(data []byte) (*partition, error) {
	if len(data) == 0 {
		logError("invalid pointer for memory pack")
		return nil, fmt.Errorf("%w: empty memory source", ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.partitions {
		if p.fileBacked() || len(p.mem) == 0 {
			continue
		}
		if &p.mem[0] == &data[0] {
			p.refs++
			p.touch()
			return p, nil
		}
	}

	infos, err := parsePackImage(data)
	if err != nil {
		msg := fmt.Sprintf("cannot load memory pack: %v", err)
		r.log().Error("memory pack load failed", "error", err)
		logError(msg)
		return nil, fmt.Errorf("%w: %s", ErrCorruptArchive, msg)
	}
	p := &partition{
		mem:            data,
		infos:          infos,
		cache:          make(map[string][]byte),
		refs:           1,
		cacheThreshold: r.cacheThreshold,
		logger:         r.logger,
	}
	p.touch()
	r.partitions = append(r.partitions, p)
	return p, nil
}

// release drops one reference. When the count reaches zero the file
// handle is closed; the partition itself stays registered so its table
// and cache survive for the next open.
func (r *Registry) release(p *partition) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	p.refs--
	if p.refs < 0 {
		msg := fmt.Sprintf("reference count below zero for %s", p.identity())
		r.log().Error("refcount underflow", "pack", p.identity())
		logError(msg)
		p.refs = 0
		return
	}
	if p.refs == 0 && p.fileBacked() {
		p.closeHandle()
	}
}

// Tick runs the idle sweep. Callers invoke it periodically; calls
// within the sweep interval return immediately.
func (r *Registry) Tick() {
	now := time.Now()

	r.mu.Lock()
	if now.Sub(r.lastSweep) < r.sweepEvery {
		r.mu.Unlock()
		return
	}
	r.lastSweep = now
	parts := make([]*partition, len(r.partitions))
	copy(parts, r.partitions)
	r.mu.Unlock()

	for _, p := range parts {
		p.closeIfIdle(now, r.idleAfter)
	}
}

// Close releases every partition and empties the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	parts := r.partitions
	r.partitions = nil
	r.mu.Unlock()

	for _, p := range parts {
		p.closeHandle()
	}
}

// refCount reports the current reference count for the partition
// backing absPath, or 0 when it is not loaded.
func (r *Registry) refCount(absPath string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.partitions {
		if p.path == absPath {
			return p.refs
		}
	}
	return 0
}

// partitionCount reports how many partitions are currently registered.
func (r *Registry) partitionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.partitions)
}

func (p *partition) identity() string {
	if p.fileBacked() {
		return p.path
	}
	return "memory pack"
}

// loadPackFile opens a pack, parses its header and file-info table, and
// returns the open handle, the table, and the recorded mtime.
func (r *Registry) loadPackFile(absPath string) (*os.File, map[string]container.BlobInfo, time.Time, error) {
	fail := func(kind, msg string, err error) (*os.File, map[string]container.BlobInfo, time.Time, error) {
		full := fmt.Sprintf("%s %s: %v", msg, absPath, err)
		r.log().Error(kind, "pack", absPath, "error", err)
		logError(full)
		return nil, nil, time.Time{}, fmt.Errorf("fs8: %s", full)
	}

	f, err := os.Open(absPath)
	if err != nil {
		return fail("open failed", "cannot open", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return fail("stat failed", "cannot stat", err)
	}

	var hdr [container.HeaderSize]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		f.Close()
		return fail("header read failed", "cannot read header of", err)
	}
	h, err := container.ParseHeader(hdr[:])
	if err != nil {
		f.Close()
		full := fmt.Sprintf("corrupt header in %s: %v", absPath, err)
		r.log().Error("corrupt header", "pack", absPath, "error", err)
		logError(full)
		return nil, nil, time.Time{}, fmt.Errorf("%w: %s", ErrCorruptArchive, full)
	}

	var lenBuf [4]byte
	if _, err := f.ReadAt(lenBuf[:], h.TableOffset); err != nil {
		f.Close()
		return fail("table read failed", "cannot read table length of", err)
	}
	tableLen := binary.LittleEndian.Uint32(lenBuf[:])
	if tableLen > container.MaxTableSize {
		f.Close()
		full := fmt.Sprintf("table size %d exceeds limit in %s", tableLen, absPath)
		r.log().Error("oversized table", "pack", absPath, "size", tableLen)
		logError(full)
		return nil, nil, time.Time{}, fmt.Errorf("%w: %s", ErrCorruptArchive, full)
	}
	payload := make([]byte, tableLen)
	if _, err := f.ReadAt(payload, h.TableOffset+4); err != nil {
		f.Close()
		return fail("table read failed", "cannot read table of", err)
	}
	infos, err := container.ParseTable(payload)
	if err != nil {
		f.Close()
		full := fmt.Sprintf("corrupt table in %s: %v", absPath, err)
		r.log().Error("corrupt table", "pack", absPath, "error", err)
		logError(full)
		return nil, nil, time.Time{}, fmt.Errorf("%w: %s", ErrCorruptArchive, full)
	}
	return f, infos, st.ModTime(), nil
}

// parsePackImage parses the header and table of an in-memory pack,
// bounds-checking the table offset and length against the image size.
// Blob ranges are not checked here; loadBlob checks each one on fetch.
func parsePackImage(data []byte) (map[string]container.BlobInfo, error) {
	h, err := container.ParseHeader(data)
	if err != nil {
		return nil, err
	}
	if h.TableOffset < container.HeaderSize || h.TableOffset+4 > int64(len(data)) {
		return nil, fmt.Errorf("table offset %d out of bounds", h.TableOffset)
	}
	tableLen := binary.LittleEndian.Uint32(data[h.TableOffset:])
	if tableLen > container.MaxTableSize {
		return nil, fmt.Errorf("table size %d exceeds limit", tableLen)
	}
	start := h.TableOffset + 4
	if start+int64(tableLen) > int64(len(data)) {
		return nil, fmt.Errorf("table length %d out of bounds", tableLen)
	}
	return container.ParseTable(data[start : start+int64(tableLen)])
}
