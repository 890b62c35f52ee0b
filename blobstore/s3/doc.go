// Package s3 provides an Amazon S3 implementation of blobstore.Store.
//
// # Usage
//
//	store, err := s3.NewFromConfig(ctx, "my-bucket", "checkpoints/", "us-east-1")
//
// # Features
//
//   - Multipart streaming uploads for Create
//   - CRC32C checksums on Put
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
