// Package checkpoint saves and restores solver state.
//
// A checkpoint is a single self-describing blob: a header naming the
// manifest codec and payload compression, the manifest, the payload and a
// CRC32C trailer. The payload holds the residual history followed by the
// scalar fields of every workspace region.
//
//	st := checkpoint.New(blobstore.NewLocalStore(dir),
//		checkpoint.WithCompression(checkpoint.CompressionLZ4))
//	err := st.Save(ctx, checkpoint.Name("run/", it), checkpoint.Snapshot{...})
//
// Blobs are streamed through the store's Create so a failed save never
// leaves a partial checkpoint behind.
package checkpoint
