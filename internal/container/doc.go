// Package container implements the byte-level FS8 pack layout: the fixed
// 24-byte header, the file-info table, the trailing signature record, the
// rolling content hash, and the hex32 transcription used for embedding
// packs in C sources.
//
// The package opens no files of its own; WriteHex32 streams through the
// io.Reader and io.Writer its caller supplies, and everything else works
// on byte slices.
package container
