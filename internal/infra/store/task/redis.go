package taskstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/you-humble/camstage/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	stateCreated   = "created"
	stateCompleted = "completed"

	intentBlob = "blob"
	intentApp  = "app"
)

// markCompleted flips state created -> completed and stores the raw body.
// Returns -1 for a missing task, 0 if it was already completed, 1 otherwise.
var markCompleted = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
if redis.call('HGET', KEYS[1], 'state') == ARGV[3] then
	return 0
end
redis.call('HSET', KEYS[1], 'state', ARGV[3], 'raw_response', ARGV[1], 'completed_at', ARGV[2])
return 1
`)

type redisTaskStore struct {
	rdb redis.Cmdable
}

// NewRedisTaskStore keeps each task in a hash and indexes creation time in a
// sorted set for the retention sweep.
func NewRedisTaskStore(rdb redis.Cmdable) *redisTaskStore {
	return &redisTaskStore{rdb: rdb}
}

func (s *redisTaskStore) CreateTask(ctx context.Context, p domain.CreateTaskParams) (string, error) {
	kind, ref, err := encodeIntent(p.Intent)
	if err != nil {
		return "", err
	}

	taskID := uuid.NewString()
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	pipe := s.rdb.TxPipeline()

	pipe.HSet(ctx, taskKey(taskID), map[string]any{
		"id":          taskID,
		"intent_kind": kind,
		"intent_ref":  ref,
		"created_at":  createdAt.UnixNano(),
		"state":       stateCreated,
	})
	pipe.ZAdd(ctx, tasksByCreatedKey(), redis.Z{
		Score:  float64(createdAt.UnixMilli()),
		Member: taskID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("redis pipeline CreateTask: %w", err)
	}

	return taskID, nil
}

func (s *redisTaskStore) Task(ctx context.Context, id string) (domain.Task, error) {
	res, err := s.rdb.HGetAll(ctx, taskKey(id)).Result()
	if err != nil {
		return domain.Task{}, fmt.Errorf("redis HGetAll: %w", err)
	}
	if len(res) == 0 {
		return domain.Task{}, domain.ErrTaskNotFound
	}

	return decodeTask(id, res)
}

func (s *redisTaskStore) MarkCompleted(
	ctx context.Context,
	id string,
	rawResponse []byte,
	at time.Time,
) (domain.Task, bool, error) {
	res, err := markCompleted.Run(ctx, s.rdb,
		[]string{taskKey(id)},
		string(rawResponse), at.UnixNano(), stateCompleted,
	).Int()
	if err != nil {
		return domain.Task{}, false, fmt.Errorf("redis MarkCompleted: %w", err)
	}
	if res < 0 {
		return domain.Task{}, false, domain.ErrTaskNotFound
	}

	t, err := s.Task(ctx, id)
	if err != nil {
		return domain.Task{}, false, err
	}

	return t, res == 1, nil
}

func (s *redisTaskStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, tasksByCreatedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ZRangeByScore: %w", err)
	}

	deleted := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return deleted, ctx.Err()
		}

		pipe := s.rdb.TxPipeline()
		pipe.Del(ctx, taskKey(id))
		pipe.ZRem(ctx, tasksByCreatedKey(), id)

		if _, err := pipe.Exec(ctx); err != nil {
			slog.Warn("redis delete task",
				slog.String("task_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		deleted++
	}

	return deleted, nil
}

func decodeTask(id string, res map[string]string) (domain.Task, error) {
	t := domain.Task{ID: id}

	switch res["intent_kind"] {
	case "":
	case intentBlob:
		t.Intent = domain.BlobIntent{Key: res["intent_ref"]}
	case intentApp:
		t.Intent = domain.AppIntent{AppID: res["intent_ref"]}
	default:
		return domain.Task{}, fmt.Errorf("task %s: unknown intent kind %q", id, res["intent_kind"])
	}

	if v := res["created_at"]; v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return domain.Task{}, fmt.Errorf("task %s: parse created_at: %w", id, err)
		}
		t.CreatedAt = time.Unix(0, n)
	}

	switch res["state"] {
	case stateCompleted:
		c := domain.Completed{RawResponse: []byte(res["raw_response"])}
		if v := res["completed_at"]; v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				c.CompletedAt = time.Unix(0, n)
			}
		}
		t.State = c
	default:
		t.State = domain.Created{}
	}

	return t, nil
}

func encodeIntent(in domain.Intent) (kind, ref string, err error) {
	switch v := in.(type) {
	case nil:
		return "", "", nil
	case domain.BlobIntent:
		if v.Key == "" {
			return "", "", errors.New("blob intent without key")
		}
		return intentBlob, v.Key, nil
	case domain.AppIntent:
		if v.AppID == "" {
			return "", "", errors.New("app intent without app id")
		}
		return intentApp, v.AppID, nil
	default:
		return "", "", fmt.Errorf("unsupported intent %T", in)
	}
}

func taskKey(id string) string {
	return "task:" + id
}

func tasksByCreatedKey() string {
	return "tasks:by_created"
}
