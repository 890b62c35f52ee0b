package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/spargo/blobstore"
	"github.com/hupe1980/spargo/resource"
	"github.com/hupe1980/spargo/space"
)

const suffix = ".spck"

// Name returns the blob name of the checkpoint taken at iteration.
// Names sort by iteration.
func Name(prefix string, iteration int) string {
	return fmt.Sprintf("%sckpt-%08d%s", prefix, iteration, suffix)
}

// ParseName returns the iteration encoded in a checkpoint name.
func ParseName(name string) (int, bool) {
	i := strings.LastIndex(name, "ckpt-")
	if i < 0 || !strings.HasSuffix(name, suffix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(name[i+len("ckpt-"):], suffix))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Store saves and loads solver checkpoints in a blob store.
type Store struct {
	blobs  blobstore.Store
	opts   options
	logger *slog.Logger
}

// New returns a checkpoint store writing to blobs.
func New(blobs blobstore.Store, opts ...Option) *Store {
	o := applyOptions(opts)
	return &Store{blobs: blobs, opts: o, logger: o.logger}
}

// Save writes snapshot s as name. The blob is streamed through the
// controller's IO limit and only becomes visible once complete.
func (s *Store) Save(ctx context.Context, name string, snap Snapshot) error {
	start := time.Now()
	data, err := Encode(snap, s.opts.codec, s.opts.compression, s.opts.now())
	if err != nil {
		return err
	}

	rc := s.opts.controller
	if err := rc.AcquireBackground(ctx); err != nil {
		return fmt.Errorf("checkpoint: save %s: %w", name, err)
	}
	defer rc.ReleaseBackground()

	w, err := s.blobs.Create(ctx, name)
	if err != nil {
		return fmt.Errorf("checkpoint: save %s: %w", name, err)
	}
	var dst io.Writer = w
	if rc != nil {
		dst = resource.NewRateLimitedWriter(ctx, w, rc)
	}
	if _, err := io.Copy(dst, bytes.NewReader(data)); err != nil {
		_ = w.Abort()
		return fmt.Errorf("checkpoint: save %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("checkpoint: save %s: %w", name, err)
	}

	s.logger.Info("checkpoint saved",
		"name", name,
		"iteration", snap.Iteration,
		"bytes", len(data),
		"compression", s.opts.compression.String(),
		"duration", time.Since(start),
	)
	return nil
}

// Load reads checkpoint name and restores its fields into regions. Pass nil
// regions to read only the manifest and residual history.
func (s *Store) Load(ctx context.Context, name string, regions []*space.Region) (*Manifest, error) {
	data, err := s.blobs.Get(ctx, name)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("checkpoint: load %s: %w", name, err)
	}
	man, payload, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	if regions != nil {
		if err := Restore(man, payload, regions); err != nil {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
	}
	s.logger.Info("checkpoint loaded", "name", name, "iteration", man.Iteration, "bytes", len(data))
	return man, nil
}

// List returns the checkpoint names under prefix in iteration order.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	names, err := s.blobs.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: list %q: %w", prefix, err)
	}
	out := names[:0]
	for _, n := range names {
		if _, ok := ParseName(n); ok {
			out = append(out, n)
		}
	}
	return out, nil
}

// Latest returns the name of the newest checkpoint under prefix.
func (s *Store) Latest(ctx context.Context, prefix string) (string, error) {
	names, err := s.List(ctx, prefix)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%w: no checkpoint under %q", ErrNotFound, prefix)
	}
	return names[len(names)-1], nil
}

// Prune deletes all but the newest keep checkpoints under prefix.
func (s *Store) Prune(ctx context.Context, prefix string, keep int) error {
	names, err := s.List(ctx, prefix)
	if err != nil {
		return err
	}
	if keep < 0 {
		keep = 0
	}
	for _, n := range names[:max(0, len(names)-keep)] {
		if err := s.blobs.Delete(ctx, n); err != nil {
			return fmt.Errorf("checkpoint: prune %s: %w", n, err)
		}
		s.logger.Debug("checkpoint pruned", "name", n)
	}
	return nil
}
