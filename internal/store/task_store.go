package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tunegift/api/internal/model"
)

// ErrTaskNotFound is returned for unknown or expired task ids.
var ErrTaskNotFound = errors.New("task not found")

// taskTTL evicts task records untouched for a day. Every save refreshes it.
const taskTTL = 24 * time.Hour

// TaskStore is the registry of in-flight and recently finished tasks,
// shared between the poll worker (writer) and the status endpoint (reader).
type TaskStore interface {
	Create(ctx context.Context, task *model.GenerationTask) error
	Get(ctx context.Context, taskID string) (*model.GenerationTask, error)
	// Update applies mutate to the stored task and saves the result.
	// Returning an error from mutate aborts the save.
	Update(ctx context.Context, taskID string, mutate func(*model.GenerationTask) error) (*model.GenerationTask, error)
}

// RedisTaskStore keeps task records as JSON values with a TTL, so any
// instance can serve status reads and a restart does not strand tasks.
type RedisTaskStore struct {
	redis *redis.Client
}

func NewRedisTaskStore(redisClient *redis.Client) *RedisTaskStore {
	return &RedisTaskStore{redis: redisClient}
}

func taskKey(taskID string) string {
	return fmt.Sprintf("task:%s", taskID)
}

func (s *RedisTaskStore) Create(ctx context.Context, task *model.GenerationTask) error {
	return s.save(ctx, task)
}

func (s *RedisTaskStore) Get(ctx context.Context, taskID string) (*model.GenerationTask, error) {
	data, err := s.redis.Get(ctx, taskKey(taskID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}

	var task model.GenerationTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *RedisTaskStore) Update(ctx context.Context, taskID string, mutate func(*model.GenerationTask) error) (*model.GenerationTask, error) {
	task, err := s.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := mutate(task); err != nil {
		return nil, err
	}
	if err := s.save(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *RedisTaskStore) save(ctx context.Context, task *model.GenerationTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, taskKey(task.TaskID), data, taskTTL).Err()
}
