package devbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medcast/podcast-tracker/internal/model"
)

const (
	jobKeyPrefix = "podcast:job:"
	queueKey     = "podcast:queue"
	jobTTL       = 24 * time.Hour
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrQueueEmpty     = errors.New("queue empty")
	ErrInvalidRequest = errors.New("invalid request")
)

// JobRecord is the simulated pipeline's view of a podcast job
type JobRecord struct {
	ID              string                  `json:"id"`
	Title           string                  `json:"title"`
	Description     string                  `json:"description,omitempty"`
	DocumentIDs     []string                `json:"documentIds"`
	SynthesisStyle  model.SynthesisStyle    `json:"synthesisStyle"`
	Specialty       string                  `json:"specialty,omitempty"`
	Status          model.JobStatus         `json:"status"`
	AudioURL        string                  `json:"audioUrl,omitempty"`
	AudioPath       string                  `json:"audioPath,omitempty"`
	DurationSeconds *float64                `json:"duration,omitempty"`
	ErrorMessage    string                  `json:"errorMessage,omitempty"`
	Diagnostics     *model.DiagnosticBundle `json:"diagnostics,omitempty"`
	CreatedAt       time.Time               `json:"createdAt"`
	StartedAt       *time.Time              `json:"startedAt,omitempty"`
	CompletedAt     *time.Time              `json:"completedAt,omitempty"`
}

// JobStore persists jobs and the FIFO processing queue
type JobStore interface {
	SaveJob(ctx context.Context, job *JobRecord) error
	GetJob(ctx context.Context, jobID string) (*JobRecord, error)
	Enqueue(ctx context.Context, jobID string) error
	Dequeue(ctx context.Context) (string, error)
	QueuePosition(ctx context.Context, jobID string) (int, error)
	QueueLength(ctx context.Context) (int, error)
}

// RedisStore implements JobStore with a string key per job and a list queue
type RedisStore struct {
	redis redis.Cmdable
}

func NewRedisStore(redisClient redis.Cmdable) *RedisStore {
	return &RedisStore{redis: redisClient}
}

func (s *RedisStore) SaveJob(ctx context.Context, job *JobRecord) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, jobKeyPrefix+job.ID, data, jobTTL).Err()
}

func (s *RedisStore) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	data, err := s.redis.Get(ctx, jobKeyPrefix+jobID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	var job JobRecord
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("corrupt job record %s: %w", jobID, err)
	}
	return &job, nil
}

func (s *RedisStore) Enqueue(ctx context.Context, jobID string) error {
	return s.redis.RPush(ctx, queueKey, jobID).Err()
}

func (s *RedisStore) Dequeue(ctx context.Context) (string, error) {
	id, err := s.redis.LPop(ctx, queueKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrQueueEmpty
	}
	return id, err
}

// QueuePosition returns the 1-based position of jobID, 0 when not queued
func (s *RedisStore) QueuePosition(ctx context.Context, jobID string) (int, error) {
	idx, err := s.redis.LPos(ctx, queueKey, jobID, redis.LPosArgs{}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return int(idx) + 1, nil
}

func (s *RedisStore) QueueLength(ctx context.Context) (int, error) {
	n, err := s.redis.LLen(ctx, queueKey).Result()
	return int(n), err
}
