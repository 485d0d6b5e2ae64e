package taskstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/you-humble/camstage/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type store interface {
	CreateTask(ctx context.Context, p domain.CreateTaskParams) (string, error)
	Task(ctx context.Context, id string) (domain.Task, error)
	MarkCompleted(ctx context.Context, id string, rawResponse []byte, at time.Time) (domain.Task, bool, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

func stores(t *testing.T) map[string]store {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return map[string]store{
		"memory": NewMemoryTaskStore(),
		"redis":  NewRedisTaskStore(rdb),
	}
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	createdAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		intent domain.Intent
	}{
		{name: "no intent", intent: nil},
		{name: "blob intent", intent: domain.BlobIntent{Key: "b1"}},
		{name: "app intent", intent: domain.AppIntent{AppID: "com.example.timer"}},
	}

	for storeName, s := range stores(t) {
		for _, tt := range tests {
			t.Run(storeName+"/"+tt.name, func(t *testing.T) {
				id, err := s.CreateTask(ctx, domain.CreateTaskParams{Intent: tt.intent, CreatedAt: createdAt})
				if err != nil {
					t.Fatalf("CreateTask() error = %v", err)
				}
				if id == "" {
					t.Fatal("CreateTask() returned empty id")
				}

				got, err := s.Task(ctx, id)
				if err != nil {
					t.Fatalf("Task() error = %v", err)
				}
				if got.ID != id {
					t.Errorf("ID = %q, want %q", got.ID, id)
				}
				if got.Intent != tt.intent {
					t.Errorf("Intent = %#v, want %#v", got.Intent, tt.intent)
				}
				if !got.CreatedAt.Equal(createdAt) {
					t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, createdAt)
				}
				if _, ok := got.State.(domain.Created); !ok {
					t.Errorf("State = %#v, want Created", got.State)
				}
			})
		}
	}
}

func TestCreateRejectsEmptyIntentRef(t *testing.T) {
	ctx := context.Background()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.CreateTask(ctx, domain.CreateTaskParams{Intent: domain.BlobIntent{}}); err == nil {
				t.Error("CreateTask() with empty blob key should fail")
			}
			if _, err := s.CreateTask(ctx, domain.CreateTaskParams{Intent: domain.AppIntent{}}); err == nil {
				t.Error("CreateTask() with empty app id should fail")
			}
		})
	}
}

func TestUnknownTask(t *testing.T) {
	ctx := context.Background()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Task(ctx, "missing"); !errors.Is(err, domain.ErrTaskNotFound) {
				t.Errorf("Task() error = %v, want ErrTaskNotFound", err)
			}
			if _, _, err := s.MarkCompleted(ctx, "missing", []byte("x"), time.Now()); !errors.Is(err, domain.ErrTaskNotFound) {
				t.Errorf("MarkCompleted() error = %v, want ErrTaskNotFound", err)
			}
		})
	}
}

func TestMarkCompletedIsIdempotent(t *testing.T) {
	ctx := context.Background()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			id, err := s.CreateTask(ctx, domain.CreateTaskParams{})
			if err != nil {
				t.Fatalf("CreateTask() error = %v", err)
			}

			first, transitioned, err := s.MarkCompleted(ctx, id, []byte("first"), time.Now())
			if err != nil {
				t.Fatalf("MarkCompleted() error = %v", err)
			}
			if !transitioned {
				t.Error("first MarkCompleted() should transition")
			}
			c, ok := first.Completed()
			if !ok || string(c.RawResponse) != "first" {
				t.Errorf("state after first call = %#v", first.State)
			}

			second, transitioned, err := s.MarkCompleted(ctx, id, []byte("second"), time.Now())
			if err != nil {
				t.Fatalf("second MarkCompleted() error = %v", err)
			}
			if transitioned {
				t.Error("second MarkCompleted() should not transition")
			}
			c, ok = second.Completed()
			if !ok || string(c.RawResponse) != "first" {
				t.Errorf("raw response after second call = %q, want %q", c.RawResponse, "first")
			}
		})
	}
}

func TestMarkCompletedConcurrent(t *testing.T) {
	ctx := context.Background()
	const n = 20

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			id, err := s.CreateTask(ctx, domain.CreateTaskParams{Intent: domain.BlobIntent{Key: "b1"}})
			if err != nil {
				t.Fatalf("CreateTask() error = %v", err)
			}

			var (
				wg     sync.WaitGroup
				mu     sync.Mutex
				winner int
			)
			for i := range n {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, transitioned, err := s.MarkCompleted(ctx, id, []byte{byte('a' + i)}, time.Now())
					if err != nil {
						t.Errorf("MarkCompleted() error = %v", err)
						return
					}
					if transitioned {
						mu.Lock()
						winner++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			if winner != 1 {
				t.Errorf("transitions = %d, want 1", winner)
			}
		})
	}
}

func TestDeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	cutoff := now.Add(-60 * time.Minute)

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			oldID, err := s.CreateTask(ctx, domain.CreateTaskParams{CreatedAt: now.Add(-61 * time.Minute)})
			if err != nil {
				t.Fatalf("CreateTask() error = %v", err)
			}
			oldDone, err := s.CreateTask(ctx, domain.CreateTaskParams{CreatedAt: now.Add(-90 * time.Minute)})
			if err != nil {
				t.Fatalf("CreateTask() error = %v", err)
			}
			if _, _, err := s.MarkCompleted(ctx, oldDone, []byte("{}"), now); err != nil {
				t.Fatalf("MarkCompleted() error = %v", err)
			}
			freshID, err := s.CreateTask(ctx, domain.CreateTaskParams{CreatedAt: now.Add(-59 * time.Minute)})
			if err != nil {
				t.Fatalf("CreateTask() error = %v", err)
			}

			deleted, err := s.DeleteOlderThan(ctx, cutoff)
			if err != nil {
				t.Fatalf("DeleteOlderThan() error = %v", err)
			}
			if deleted != 2 {
				t.Errorf("deleted = %d, want 2", deleted)
			}

			for _, id := range []string{oldID, oldDone} {
				if _, err := s.Task(ctx, id); !errors.Is(err, domain.ErrTaskNotFound) {
					t.Errorf("Task(%s) error = %v, want ErrTaskNotFound", id, err)
				}
			}
			if _, err := s.Task(ctx, freshID); err != nil {
				t.Errorf("fresh task missing: %v", err)
			}

			again, err := s.DeleteOlderThan(ctx, cutoff)
			if err != nil {
				t.Fatalf("second DeleteOlderThan() error = %v", err)
			}
			if again != 0 {
				t.Errorf("second sweep deleted = %d, want 0", again)
			}
		})
	}
}
