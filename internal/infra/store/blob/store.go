package blobstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/you-humble/camstage/internal/domain"
	"github.com/you-humble/camstage/internal/infra/store/blob/replicator"

	"golang.org/x/sync/errgroup"
)

type tier interface {
	Save(ctx context.Context, reader io.Reader, key string, size int64) (int64, string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Stat(ctx context.Context, key string) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]string, error)
}

// store writes uploads to local disk first and, when a remote tier is
// configured, replicates them to MinIO in the background. Reads fall back to
// the remote tier so any replica can serve a blob another replica received.
type store struct {
	local      tier
	remote     tier
	replicator *replicator.Replicator
}

// NewLocalOnly serves blobs from disk without a remote tier.
func NewLocalOnly(local *localStore) *store {
	return &store{local: local}
}

func NewAsyncStore(
	ctx context.Context,
	local *localStore,
	remote *minioStore,
	queueSize,
	workerNum,
	maxRetries int,
) *store {
	repl := replicator.New(local, remote, queueSize, workerNum, maxRetries)
	repl.Start(ctx)

	return &store{
		local:      local,
		remote:     remote,
		replicator: repl,
	}
}

func (s *store) Close(ctx context.Context) error {
	if s.replicator == nil {
		return nil
	}
	return s.replicator.Stop(ctx)
}

func (s *store) Save(ctx context.Context, reader io.Reader, key string, size int64) (int64, error) {
	written, hash, err := s.local.Save(ctx, reader, key, size)
	if err != nil {
		return 0, err
	}

	if s.replicator != nil {
		ok := s.replicator.Enqueue(replicator.Job{Key: key, Size: written, Hash: hash})
		if !ok {
			slog.Error("blobStore: replication queue full, blob saved only locally",
				slog.String("key", key),
				slog.Int64("size", written),
			)
		}
	}

	return written, nil
}

func (s *store) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	rc, size, err := s.local.Open(ctx, key)
	if err == nil || s.remote == nil || !errors.Is(err, domain.ErrBlobNotFound) {
		return rc, size, err
	}

	return s.remote.Open(ctx, key)
}

func (s *store) Stat(ctx context.Context, key string) (int64, error) {
	size, err := s.local.Stat(ctx, key)
	if err == nil || s.remote == nil || !errors.Is(err, domain.ErrBlobNotFound) {
		return size, err
	}

	return s.remote.Stat(ctx, key)
}

// DeleteOlderThan cleans both tiers independently and reports the number of
// distinct blobs removed from either.
func (s *store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	var localKeys, remoteKeys []string

	eg, eCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		localKeys, err = s.local.DeleteOlderThan(eCtx, cutoff)
		return err
	})
	if s.remote != nil {
		eg.Go(func() error {
			var err error
			remoteKeys, err = s.remote.DeleteOlderThan(eCtx, cutoff)
			return err
		})
	}
	err := eg.Wait()

	seen := make(map[string]struct{}, len(localKeys)+len(remoteKeys))
	for _, k := range localKeys {
		seen[k] = struct{}{}
	}
	for _, k := range remoteKeys {
		seen[k] = struct{}{}
	}

	return len(seen), err
}
