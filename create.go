package fs8

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fs8io/fs8/internal/codec"
	"github.com/fs8io/fs8/internal/container"
)

// DefaultCompressionLevel is the zstd level used when none is given.
const DefaultCompressionLevel = 3

// BuildEntry names one source file and the archive name it is stored
// under. An empty ArchiveName stores the entry under SourcePath.
type BuildEntry struct {
	SourcePath  string
	ArchiveName string
}

type buildConfig struct {
	level  int
	hex    bool
	logger *slog.Logger
}

// BuildOption configures Build.
type BuildOption func(*buildConfig)

// WithCompressionLevel sets the zstd compression level (1 = fastest).
func WithCompressionLevel(level int) BuildOption {
	return func(c *buildConfig) {
		c.level = level
	}
}

// WithHexOutput rewrites the finished pack as an ASCII C-array
// transcription. The result is no longer a valid binary pack.
func WithHexOutput() BuildOption {
	return func(c *buildConfig) {
		c.hex = true
	}
}

// WithBuildLogger sets the structured logger for the build.
func WithBuildLogger(logger *slog.Logger) BuildOption {
	return func(c *buildConfig) {
		c.logger = logger
	}
}

// Build packs the given entries into a new pack at outPath. Source
// paths are resolved relative to baseDir when it is non-empty. The
// finished pack carries a trailing integrity signature; on any failure
// the output file is removed.
func Build(baseDir string, entries []BuildEntry, outPath string, opts ...BuildOption) error {
	cfg := buildConfig{level: DefaultCompressionLevel}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if outPath == "" || len(entries) == 0 {
		logError("nothing to pack")
		return fmt.Errorf("%w: no entries or empty output path", ErrInvalidArgument)
	}

	if err := writePack(baseDir, entries, outPath, cfg.level, logger); err != nil {
		os.Remove(outPath)
		return err
	}
	if err := signPack(outPath); err != nil {
		os.Remove(outPath)
		return err
	}
	if cfg.hex {
		if err := ConvertToHex32(outPath); err != nil {
			os.Remove(outPath)
			return err
		}
	}
	return nil
}

func writePack(baseDir string, entries []BuildEntry, outPath string, level int, logger *slog.Logger) error {
	out, err := os.Create(outPath)
	if err != nil {
		msg := fmt.Sprintf("cannot create %s: %v", outPath, err)
		logger.Error("create failed", "path", outPath, "error", err)
		logError(msg)
		return fmt.Errorf("fs8: %s", msg)
	}
	defer out.Close()

	// Placeholder header; the real offsets are rewritten at the end.
	var hdr [container.HeaderSize]byte
	if _, err := out.Write(hdr[:]); err != nil {
		return writeErr(outPath, err, logger)
	}
	pos := int64(container.HeaderSize)

	infos := make(map[string]container.BlobInfo, len(entries))
	for _, e := range entries {
		name := e.ArchiveName
		if name == "" {
			name = e.SourcePath
		}
		src := e.SourcePath
		if baseDir != "" {
			src = filepath.Join(baseDir, src)
		}
		data, err := os.ReadFile(src)
		if err != nil {
			msg := fmt.Sprintf("cannot read source %s: %v", src, err)
			logger.Error("source read failed", "source", src, "error", err)
			logError(msg)
			return fmt.Errorf("fs8: %s", msg)
		}

		info := container.BlobInfo{
			Offset:           pos,
			DecompressedSize: int64(len(data)),
		}
		if len(data) > 0 {
			compressed, err := codec.Compress(data, level)
			if err != nil {
				msg := fmt.Sprintf("cannot compress %s: %v", src, err)
				logger.Error("compression failed", "source", src, "error", err)
				logError(msg)
				return fmt.Errorf("fs8: %s", msg)
			}
			if _, err := out.Write(compressed); err != nil {
				return writeErr(outPath, err, logger)
			}
			info.CompressedSize = int64(len(compressed))
			pos += info.CompressedSize
		}
		infos[container.NormalizeName(name)] = info
		logger.Debug("packed entry", "name", name,
			"size", info.DecompressedSize, "compressed", info.CompressedSize)
	}

	tableOffset := pos
	table, err := container.EncodeTable(infos)
	if err != nil {
		msg := fmt.Sprintf("cannot encode table: %v", err)
		logger.Error("table encode failed", "error", err)
		logError(msg)
		return fmt.Errorf("fs8: %s", msg)
	}
	if _, err := out.Write(table); err != nil {
		return writeErr(outPath, err, logger)
	}
	pos += int64(len(table))

	signatureOffset := pos
	if pad := container.AlignSignature(pos); pad > 0 {
		if _, err := out.Write(make([]byte, pad)); err != nil {
			return writeErr(outPath, err, logger)
		}
		signatureOffset = pos + int64(pad)
	}

	final := container.EncodeHeader(container.Header{
		TableOffset:     tableOffset,
		SignatureOffset: signatureOffset,
	})
	if _, err := out.WriteAt(final[:], 0); err != nil {
		return writeErr(outPath, err, logger)
	}
	if err := out.Close(); err != nil {
		return writeErr(outPath, err, logger)
	}
	return nil
}

func writeErr(outPath string, err error, logger *slog.Logger) error {
	msg := fmt.Sprintf("cannot write %s: %v", outPath, err)
	logger.Error("write failed", "path", outPath, "error", err)
	logError(msg)
	return fmt.Errorf("fs8: %s", msg)
}

// signPack hashes the finished file and appends the type-1 signature
// record at the offset recorded in the header.
func signPack(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		msg := fmt.Sprintf("cannot open %s for signing: %v", path, err)
		logError(msg)
		return fmt.Errorf("fs8: %s", msg)
	}
	defer f.Close()

	var hs container.Hasher
	if _, err := io.Copy(&hs, f); err != nil {
		msg := fmt.Sprintf("cannot hash %s: %v", path, err)
		logError(msg)
		return fmt.Errorf("fs8: %s", msg)
	}
	sig := container.EncodeSignature(hs.Sum())
	if _, err := f.Write(sig[:]); err != nil {
		msg := fmt.Sprintf("cannot append signature to %s: %v", path, err)
		logError(msg)
		return fmt.Errorf("fs8: %s", msg)
	}
	return f.Close()
}

// ConvertToHex32 rewrites the file at path as an ASCII C-array of
// 32-bit words. The transformation is destructive: the result is no
// longer a valid pack. The rewrite goes through a temporary file that
// is renamed over the original on success.
func ConvertToHex32(path string) error {
	in, err := os.Open(path)
	if err != nil {
		msg := fmt.Sprintf("cannot open %s: %v", path, err)
		logError(msg)
		return fmt.Errorf("fs8: %s", msg)
	}
	defer in.Close()

	tmpPath := path + ".hex.tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		msg := fmt.Sprintf("cannot create %s: %v", tmpPath, err)
		logError(msg)
		return fmt.Errorf("fs8: %s", msg)
	}

	if err := container.WriteHex32(out, in); err != nil {
		out.Close()
		os.Remove(tmpPath)
		msg := fmt.Sprintf("cannot transcribe %s: %v", path, err)
		logError(msg)
		return fmt.Errorf("fs8: %s", msg)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		msg := fmt.Sprintf("cannot finish %s: %v", tmpPath, err)
		logError(msg)
		return fmt.Errorf("fs8: %s", msg)
	}
	in.Close()
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		msg := fmt.Sprintf("cannot replace %s: %v", path, err)
		logError(msg)
		return fmt.Errorf("fs8: %s", msg)
	}
	return nil
}
