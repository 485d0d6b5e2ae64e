package replicator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

type Source interface {
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)
}

type Sink interface {
	Save(ctx context.Context, reader io.Reader, key string, size int64) (int64, string, error)
}

// Job copies one blob from the local tier to the remote tier.
type Job struct {
	Key     string
	Size    int64
	Hash    string
	Attempt int
}

// Replicator pushes freshly uploaded blobs to the remote tier in the
// background. Jobs that fail are requeued until maxRetries is reached.
type Replicator struct {
	src Source
	dst Sink

	queue      chan Job
	workerNum  int
	maxRetries int

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func New(src Source, dst Sink, queueSize, workerNum, maxRetries int) *Replicator {
	if queueSize <= 0 {
		queueSize = 100
	}
	if workerNum <= 0 {
		workerNum = 1
	}

	return &Replicator{
		src:        src,
		dst:        dst,
		queue:      make(chan Job, queueSize),
		workerNum:  workerNum,
		maxRetries: max(maxRetries, 0),
		cancel:     func() {},
	}
}

func (r *Replicator) Start(ctx context.Context) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	r.wg.Add(r.workerNum)
	for i := range r.workerNum {
		go r.worker(ctx, i)
	}
}

// Stop closes the queue and waits for workers until ctx expires.
func (r *Replicator) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		r.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		r.cancel()
		return ctx.Err()
	case <-doneCh:
	}

	r.cancel()
	slog.Info("replicator: stopped")
	return nil
}

func (r *Replicator) Enqueue(job Job) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return false
	}

	select {
	case r.queue <- job:
		return true
	default:
		return false
	}
}

func (r *Replicator) worker(ctx context.Context, id int) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-r.queue:
			if !ok {
				return
			}
			r.handle(ctx, id, job)
		}
	}
}

func (r *Replicator) handle(ctx context.Context, workerID int, job Job) {
	l := slog.With(
		slog.String("key", job.Key),
		slog.Int("attempt", job.Attempt),
		slog.Int("worker", workerID),
	)

	err := r.copy(ctx, job)
	if err == nil {
		l.Debug("replicator: blob replicated", slog.Int64("size", job.Size))
		return
	}

	if job.Attempt >= r.maxRetries {
		l.Error("replication failed, max retries exceeded", slog.String("error", err.Error()))
		return
	}

	job.Attempt++
	if !r.Enqueue(job) {
		l.Error("replication failed and queue is unavailable, dropping job", slog.String("error", err.Error()))
		return
	}
	l.Warn("replication failed, job requeued", slog.String("error", err.Error()))
}

func (r *Replicator) copy(ctx context.Context, job Job) error {
	rc, size, err := r.src.Open(ctx, job.Key)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer rc.Close()

	if job.Size > 0 {
		size = job.Size
	}

	written, hash, err := r.dst.Save(ctx, rc, job.Key, size)
	if err != nil {
		return fmt.Errorf("save to remote: %w", err)
	}
	if written != size {
		return fmt.Errorf("remote wrote %d bytes, want %d", written, size)
	}
	if job.Hash != "" && hash != "" && job.Hash != hash {
		return fmt.Errorf("hash mismatch: local=%s remote=%s", job.Hash, hash)
	}

	return nil
}
