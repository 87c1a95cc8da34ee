package devbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/medcast/podcast-tracker/internal/model"
)

const (
	TaskTypeProcessQueue = "podcast:process-queue"
	QueueName            = "podcast"

	// uniqueWindow collapses nudges that arrive while a sweep is pending
	uniqueWindow = 10 * time.Second
)

// TaskEnqueuer is the part of asynq.Client the service needs
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Service implements the remote podcast pipeline endpoints
type Service struct {
	store      JobStore
	tasks      TaskEnqueuer
	waitPerJob time.Duration
	logger     logrus.FieldLogger
	now        func() time.Time
}

func NewService(store JobStore, tasks TaskEnqueuer, waitPerJob time.Duration, logger logrus.FieldLogger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		store:      store,
		tasks:      tasks,
		waitPerJob: waitPerJob,
		logger:     logger.WithField("component", "devbackend"),
		now:        time.Now,
	}
}

// Submit saves a queued job and appends it to the processing queue
func (s *Service) Submit(ctx context.Context, req *model.SubmitGenerationRequest) (*model.SubmitGenerationResponse, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidRequest)
	}
	if len(req.DocumentIDs) == 0 {
		return nil, fmt.Errorf("%w: documentIds must not be empty", ErrInvalidRequest)
	}

	job := &JobRecord{
		ID:             uuid.New().String(),
		Title:          req.Title,
		Description:    req.Description,
		DocumentIDs:    req.DocumentIDs,
		SynthesisStyle: req.SynthesisStyle,
		Specialty:      req.Specialty,
		Status:         model.JobStatusQueued,
		CreatedAt:      s.now(),
	}
	if err := s.store.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}
	if err := s.store.Enqueue(ctx, job.ID); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	pos, err := s.store.QueuePosition(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue position: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"job_id": job.ID, "position": pos}).Info("podcast job queued")

	resp := &model.SubmitGenerationResponse{JobID: job.ID, Status: job.Status}
	if pos > 0 {
		wait := pos * int(s.waitPerJob/time.Second)
		resp.QueuePosition = &pos
		resp.EstimatedWaitTimeSeconds = &wait
	}
	return resp, nil
}

// Nudge schedules one queue sweep. Duplicate nudges inside the unique
// window are absorbed.
func (s *Service) Nudge(ctx context.Context) error {
	return s.enqueueSweep(ctx, asynq.Unique(uniqueWindow))
}

// followUp schedules the next sweep from inside a running one. The running
// task still holds the unique lock, so this enqueue must not be unique.
func (s *Service) followUp(ctx context.Context) error {
	return s.enqueueSweep(ctx)
}

func (s *Service) enqueueSweep(ctx context.Context, extra ...asynq.Option) error {
	opts := append([]asynq.Option{
		asynq.Queue(QueueName),
		asynq.MaxRetry(0),
		asynq.Retention(time.Hour),
	}, extra...)
	_, err := s.tasks.EnqueueContext(ctx, asynq.NewTask(TaskTypeProcessQueue, nil), opts...)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// Status reports a job the way podcast-status does
func (s *Service) Status(ctx context.Context, jobID string) (*model.JobStatusResponse, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	resp := &model.JobStatusResponse{
		Status:          job.Status,
		AudioURL:        job.AudioURL,
		AudioPath:       job.AudioPath,
		DurationSeconds: job.DurationSeconds,
		ErrorMessage:    job.ErrorMessage,
	}
	if job.Status.IsWaiting() {
		pos, err := s.store.QueuePosition(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if pos > 0 {
			resp.QueuePosition = &pos
		}
	}
	if !job.Diagnostics.IsEmpty() {
		data, err := json.Marshal(job.Diagnostics)
		if err != nil {
			return nil, err
		}
		resp.DebugInfo = data
	}
	return resp, nil
}
