package spargo

import (
	"context"
	"fmt"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/spargo/blobstore"
	"github.com/hupe1980/spargo/blobstore/minio"
	"github.com/hupe1980/spargo/blobstore/s3"
	"github.com/hupe1980/spargo/config"
)

// ParseTarget splits a checkpoint target into scheme, bucket and prefix.
// Targets without a scheme are local directories and yield ("file", "", path).
func ParseTarget(target string) (scheme, bucket, prefix string, err error) {
	scheme, rest, ok := strings.Cut(target, "://")
	if !ok {
		return "file", "", target, nil
	}
	switch scheme {
	case "file":
		return scheme, "", rest, nil
	case "s3", "minio":
		bucket, prefix, _ = strings.Cut(rest, "/")
		if bucket == "" {
			return "", "", "", fmt.Errorf("%w: %q has no bucket", ErrUnsupportedTarget, target)
		}
		return scheme, bucket, prefix, nil
	default:
		return "", "", "", fmt.Errorf("%w: %q", ErrUnsupportedTarget, target)
	}
}

// OpenBlobStore resolves cfg.Target into a blob store: a local directory,
// "s3://bucket/prefix" using the default AWS credential chain, or
// "minio://bucket/prefix" using cfg.MinIO.
func OpenBlobStore(ctx context.Context, cfg config.CheckpointConfig) (blobstore.Store, error) {
	scheme, bucket, prefix, err := ParseTarget(cfg.Target)
	if err != nil {
		return nil, err
	}
	switch scheme {
	case "s3":
		return s3.NewFromConfig(ctx, bucket, prefix, cfg.Region)
	case "minio":
		client, err := miniogo.New(cfg.MinIO.Endpoint, &miniogo.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
			Secure: cfg.MinIO.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("spargo: minio client: %w", err)
		}
		return minio.NewStore(client, bucket, prefix), nil
	default:
		return blobstore.NewLocalStore(prefix), nil
	}
}
