package tracker

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/medcast/podcast-tracker/internal/model"
)

func TestEstimateProgress(t *testing.T) {
	tests := []struct {
		name     string
		status   model.JobStatus
		elapsed  time.Duration
		previous int
		want     int
	}{
		{"pending", model.JobStatusPending, 0, 0, 10},
		{"queued", model.JobStatusQueued, 3 * time.Minute, 0, 10},
		{"generating at start", model.JobStatusGenerating, 0, 0, 20},
		{"generating halfway", model.JobStatusGenerating, 300 * time.Second, 0, 55},
		{"generating at window end", model.JobStatusGenerating, 10 * time.Minute, 0, 90},
		{"generating saturates", model.JobStatusGenerating, time.Hour, 0, 90},
		{"generating negative elapsed", model.JobStatusGenerating, -time.Minute, 0, 20},
		{"completed", model.JobStatusCompleted, 0, 0, 100},
		{"failed pinned", model.JobStatusFailed, 0, 40, 100},
		{"never regresses", model.JobStatusQueued, 0, 55, 55},
		{"previous out of range", model.JobStatusQueued, 0, 250, 100},
		{"unknown status keeps previous", model.JobStatus("paused"), 0, 33, 33},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateProgress(tt.status, tt.elapsed, tt.previous))
		})
	}
}

func TestEstimateProgress_MonotonicUnderRandomInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	statuses := model.ValidJobStatuses

	for run := 0; run < 200; run++ {
		previous := 0
		for step := 0; step < 30; step++ {
			status := statuses[rng.Intn(len(statuses))]
			elapsed := time.Duration(rng.Intn(1200)) * time.Second
			got := EstimateProgress(status, elapsed, previous)

			assert.GreaterOrEqual(t, got, previous)
			assert.GreaterOrEqual(t, got, 0)
			assert.LessOrEqual(t, got, 100)
			previous = got
		}
	}
}

func TestStepLabel(t *testing.T) {
	pos := 4
	queued := model.Job{Status: model.JobStatusQueued, QueuePosition: &pos}
	assert.Equal(t, "Waiting in queue (position 4)", StepLabel(queued, nil))
	assert.Equal(t, "Waiting in queue", StepLabel(model.Job{Status: model.JobStatusQueued}, nil))

	generating := model.Job{Status: model.JobStatusGenerating}
	assert.Equal(t, "Analyzing documents", StepLabel(generating, nil))
	assert.Equal(t, "Drafting outline", StepLabel(generating, &model.DiagnosticBundle{
		DocumentOverview: &model.StepResult{Success: true},
		ContentMapping:   &model.StepResult{Success: true},
	}))
	assert.Equal(t, "Synthesizing audio", StepLabel(generating, &model.DiagnosticBundle{
		Script: &model.StepResult{Success: true},
	}))

	assert.Equal(t, "Podcast ready", StepLabel(model.Job{Status: model.JobStatusCompleted}, nil))
	assert.Equal(t, "Generation failed", StepLabel(model.Job{Status: model.JobStatusFailed}, nil))
}
