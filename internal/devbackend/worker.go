package devbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/medcast/podcast-tracker/internal/model"
)

// WorkerConfig tunes the simulated pipeline
type WorkerConfig struct {
	StepDuration time.Duration
	FailureRate  float64
	AudioBaseURL string
	Seed         int64
}

// Worker drains the podcast queue one job per task
type Worker struct {
	service *Service
	cfg     WorkerConfig
	logger  logrus.FieldLogger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewWorker(service *Service, cfg WorkerConfig, logger logrus.FieldLogger) *Worker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Worker{
		service: service,
		cfg:     cfg,
		logger:  logger.WithField("component", "devbackend_worker"),
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// ProcessTask handles podcast:process-queue. An empty queue is not an error.
func (w *Worker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	store := w.service.store
	jobID, err := store.Dequeue(ctx)
	if errors.Is(err, ErrQueueEmpty) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to dequeue job: %w", err)
	}

	job, err := store.GetJob(ctx, jobID)
	if errors.Is(err, ErrJobNotFound) {
		w.logger.WithField("job_id", jobID).Warn("queued job expired, skipping")
		return w.continueDraining(ctx)
	}
	if err != nil {
		return err
	}

	if err := w.run(ctx, job); err != nil {
		return err
	}
	return w.continueDraining(ctx)
}

func (w *Worker) continueDraining(ctx context.Context) error {
	n, err := w.service.store.QueueLength(ctx)
	if err != nil || n == 0 {
		return err
	}
	return w.service.followUp(ctx)
}

func (w *Worker) run(ctx context.Context, job *JobRecord) error {
	log := w.logger.WithField("job_id", job.ID)
	store := w.service.store

	started := w.service.now()
	job.Status = model.JobStatusGenerating
	job.StartedAt = &started
	if err := store.SaveJob(ctx, job); err != nil {
		return err
	}
	log.Info("generating podcast")

	failAt := model.PipelineStep(0)
	if w.roll() < w.cfg.FailureRate {
		failAt = model.PipelineSteps[w.intn(len(model.PipelineSteps))]
	}

	for _, step := range model.PipelineSteps {
		if err := sleep(ctx, w.cfg.StepDuration); err != nil {
			log.Info("podcast job cancelled")
			return err
		}

		result := buildStepResult(job, step, w.cfg.StepDuration, step != failAt)
		job.Diagnostics = mergeStep(job.Diagnostics, step, result)

		if step == failAt {
			return w.fail(ctx, job, fmt.Sprintf("pipeline step %s failed", step))
		}
		if err := store.SaveJob(ctx, job); err != nil {
			return err
		}
		log.WithField("step", step.String()).Debug("pipeline step done")
	}

	job.Diagnostics.Validation = validate(job.Diagnostics)
	duration := estimateDuration(job)
	now := w.service.now()
	job.Status = model.JobStatusCompleted
	job.AudioPath = fmt.Sprintf("podcasts/%s.mp3", job.ID)
	if w.cfg.AudioBaseURL != "" {
		job.AudioURL = fmt.Sprintf("%s/%s.mp3", w.cfg.AudioBaseURL, job.ID)
	}
	job.DurationSeconds = &duration
	job.CompletedAt = &now
	log.WithField("duration", duration).Info("podcast completed")
	return store.SaveJob(ctx, job)
}

func (w *Worker) fail(ctx context.Context, job *JobRecord, msg string) error {
	now := w.service.now()
	job.Status = model.JobStatusFailed
	job.ErrorMessage = msg
	job.CompletedAt = &now
	w.logger.WithField("job_id", job.ID).WithField("error", msg).Warn("podcast failed")
	return w.service.store.SaveJob(ctx, job)
}

func (w *Worker) roll() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rng.Float64()
}

func (w *Worker) intn(n int) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rng.Intn(n)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func mergeStep(bundle *model.DiagnosticBundle, step model.PipelineStep, r *model.StepResult) *model.DiagnosticBundle {
	if bundle == nil {
		bundle = &model.DiagnosticBundle{}
	}
	bundle.SetStep(step, r)
	return bundle
}

// buildStepResult fabricates the pipeline output a real step would emit
func buildStepResult(job *JobRecord, step model.PipelineStep, took time.Duration, success bool) *model.StepResult {
	var payload interface{}
	switch step {
	case model.StepDocumentOverview:
		payload = map[string]interface{}{
			"documentCount": len(job.DocumentIDs),
			"specialty":     job.Specialty,
		}
	case model.StepContentMapping:
		payload = map[string]interface{}{
			"topics": []string{"background", "key findings", "clinical implications"},
		}
	case model.StepOutline:
		payload = map[string]interface{}{
			"title":    job.Title,
			"sections": []string{"intro", "discussion", "takeaways"},
		}
	case model.StepScript:
		payload = map[string]interface{}{
			"style": job.SynthesisStyle,
			"turns": 12 + 6*len(job.DocumentIDs),
		}
	}
	if !success {
		payload = map[string]string{"error": fmt.Sprintf("%s did not produce output", step)}
	}
	data, _ := json.Marshal(payload)
	return &model.StepResult{
		Success: success,
		Timing:  float64(took.Milliseconds()),
		Payload: data,
	}
}

func validate(bundle *model.DiagnosticBundle) *model.ValidationResult {
	v := &model.ValidationResult{Flags: map[string]bool{}}
	for _, step := range model.PipelineSteps {
		r := bundle.Step(step)
		ok := r != nil && r.Success
		v.Flags[fmt.Sprintf("step%dSucceeded", int(step))] = ok
		if !ok {
			v.Errors = append(v.Errors, fmt.Sprintf("%s missing or failed", step))
		}
	}
	return v
}

// estimateDuration assumes roughly four minutes of audio per source document
func estimateDuration(job *JobRecord) float64 {
	return float64(180 + 240*len(job.DocumentIDs))
}
