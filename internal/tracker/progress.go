package tracker

import (
	"fmt"
	"math"
	"time"

	"github.com/medcast/podcast-tracker/internal/model"
)

const (
	waitingPercent   = 10
	rampStartPercent = 20
	rampCeilPercent  = 90
	completePercent  = 100
	rampSpanPercent  = rampCeilPercent - rampStartPercent

	// generationWindow is the assumed duration of the generating phase.
	generationWindow = 10 * time.Minute
)

// EstimateProgress derives a synthetic percentage since the backend reports
// none. The result never drops below previous and stays within [0,100].
func EstimateProgress(status model.JobStatus, elapsed time.Duration, previous int) int {
	var computed int
	switch status {
	case model.JobStatusPending, model.JobStatusQueued:
		computed = waitingPercent
	case model.JobStatusGenerating:
		if elapsed < 0 {
			elapsed = 0
		}
		ramp := rampStartPercent + elapsed.Seconds()/generationWindow.Seconds()*rampSpanPercent
		computed = int(math.Floor(math.Min(rampCeilPercent, ramp)))
	case model.JobStatusCompleted, model.JobStatusFailed:
		computed = completePercent
	}
	if computed < previous {
		computed = previous
	}
	return clampPercent(computed)
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// StepLabel describes the current phase for display.
func StepLabel(job model.Job, diag *model.DiagnosticBundle) string {
	switch job.Status {
	case model.JobStatusPending:
		return "Submitting to the generation queue"
	case model.JobStatusQueued:
		if job.QueuePosition != nil {
			return fmt.Sprintf("Waiting in queue (position %d)", *job.QueuePosition)
		}
		return "Waiting in queue"
	case model.JobStatusGenerating:
		switch diag.LatestStep() {
		case model.StepDocumentOverview:
			return "Mapping content"
		case model.StepContentMapping:
			return "Drafting outline"
		case model.StepOutline:
			return "Writing script"
		case model.StepScript:
			return "Synthesizing audio"
		}
		return "Analyzing documents"
	case model.JobStatusCompleted:
		return "Podcast ready"
	case model.JobStatusFailed:
		return "Generation failed"
	}
	return ""
}
