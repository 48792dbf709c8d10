// Package fs8 reads and builds FS8 packs: read-optimized archives that
// bundle many named blobs into one container, each blob independently
// zstd-compressed for on-demand decompression.
//
// A pack is opened through a [FileSystem] handle backed by a shared
// [Registry] of loaded partitions, so many readers of the same pack share
// one parsed file table and one small-blob cache:
//
//	fs := fs8.New()
//	if err := fs.OpenFile("assets.fs8"); err != nil {
//	    return err
//	}
//	defer fs.Close()
//	data, err := fs.ReadFile("textures/logo.png")
//
// Archive names are case-insensitive ASCII; backslashes are rewritten to
// forward slashes on both insertion and lookup.
//
// Packs are produced at build time with [Build] and carry a trailing
// integrity signature checked by [VerifySignature]. Writing into an
// existing pack is not supported.
package fs8
