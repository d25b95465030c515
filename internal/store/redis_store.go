package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clipforge/api/internal/model"
)

var (
	// ErrNotFound is returned for unknown, consumed or expired keys.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable is returned when the backing store cannot be reached.
	// Callers degrade to logged no-ops rather than crashing.
	ErrUnavailable = errors.New("job store unavailable")
)

const (
	jobKeyPrefix  = "job:"
	taskKeyPrefix = "task:"

	lockStripes = 64
)

// TaskRef maps an external render task id back to its owning job and slot.
type TaskRef struct {
	JobID string `json:"jobId"`
	Slot  int    `json:"slot"`
}

// RedisStore persists job records and task mappings in Redis with a uniform
// TTL. Read-modify-write on a single job is serialized through a striped lock
// so concurrent callbacks for the same job cannot race past each other.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration

	locks [lockStripes]sync.Mutex

	// healthy reflects the outcome of the most recent Redis round trip and is
	// reported on /health so degraded mode is observable.
	healthy atomic.Bool
}

// NewRedisStore creates a store with the given retention window.
func NewRedisStore(redisClient *redis.Client, ttl time.Duration) *RedisStore {
	s := &RedisStore{
		redis: redisClient,
		ttl:   ttl,
	}
	s.healthy.Store(true)
	return s
}

// Available reports whether the last store operation reached Redis.
func (s *RedisStore) Available() bool {
	return s.healthy.Load()
}

// TTL returns the retention window applied to all records.
func (s *RedisStore) TTL() time.Duration {
	return s.ttl
}

func (s *RedisStore) lockFor(jobID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(jobID))
	return &s.locks[h.Sum32()%lockStripes]
}

func (s *RedisStore) classify(err error) error {
	if err == nil {
		s.healthy.Store(true)
		return nil
	}
	if errors.Is(err, redis.Nil) {
		s.healthy.Store(true)
		return ErrNotFound
	}
	s.healthy.Store(false)
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// CreateJob persists a new job record under the retention window.
func (s *RedisStore) CreateJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.classify(s.redis.Set(ctx, jobKeyPrefix+job.ID, data, s.ttl).Err())
}

// GetJob loads a job record. Returns ErrNotFound for unknown or expired ids.
func (s *RedisStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, jobKeyPrefix+jobID).Bytes()
	if err != nil {
		return nil, s.classify(err)
	}
	s.healthy.Store(true)

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("corrupt job record %s: %w", jobID, err)
	}
	return &job, nil
}

// UpdateJob applies fn to a fresh copy of the job record and writes it back,
// bumping updatedAt and refreshing the TTL. The whole read-modify-write runs
// under the job's lock; fn returning an error aborts the write.
func (s *RedisStore) UpdateJob(ctx context.Context, jobID string, fn func(*model.Job) error) (*model.Job, error) {
	mu := s.lockFor(jobID)
	mu.Lock()
	defer mu.Unlock()

	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if err := fn(job); err != nil {
		return nil, err
	}
	job.UpdatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	if err := s.classify(s.redis.Set(ctx, jobKeyPrefix+job.ID, data, s.ttl).Err()); err != nil {
		return nil, err
	}
	return job, nil
}

// MapTask records the task id -> (job, slot) association under the same
// retention window as the owning job.
func (s *RedisStore) MapTask(ctx context.Context, taskID, jobID string, slot int) error {
	data, err := json.Marshal(TaskRef{JobID: jobID, Slot: slot})
	if err != nil {
		return err
	}
	return s.classify(s.redis.Set(ctx, taskKeyPrefix+taskID, data, s.ttl).Err())
}

// ResolveTask looks up the owning job and slot for an external task id.
func (s *RedisStore) ResolveTask(ctx context.Context, taskID string) (TaskRef, error) {
	data, err := s.redis.Get(ctx, taskKeyPrefix+taskID).Bytes()
	if err != nil {
		return TaskRef{}, s.classify(err)
	}
	s.healthy.Store(true)

	var ref TaskRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return TaskRef{}, fmt.Errorf("corrupt task mapping %s: %w", taskID, err)
	}
	return ref, nil
}
