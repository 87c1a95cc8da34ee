package model

import "time"

// Job is the locally tracked view of one podcast generation request
type Job struct {
	ID                       string         `json:"id"`
	Status                   JobStatus      `json:"status"`
	Title                    string         `json:"title"`
	Description              string         `json:"description,omitempty"`
	SynthesisStyle           SynthesisStyle `json:"synthesisStyle"`
	Specialty                string         `json:"specialty,omitempty"`
	DocumentIDs              []string       `json:"documentIds"`
	QueuePosition            *int           `json:"queuePosition,omitempty"`
	EstimatedWaitTimeSeconds *int           `json:"estimatedWaitTimeSeconds,omitempty"`
	AudioURL                 string         `json:"audioUrl,omitempty"`
	DurationSeconds          *float64       `json:"durationSeconds,omitempty"`
	ErrorMessage             string         `json:"errorMessage,omitempty"`
	CreatedAt                time.Time      `json:"createdAt"`
	UpdatedAt                time.Time      `json:"updatedAt"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (j Job) Clone() Job {
	out := j
	out.DocumentIDs = append([]string(nil), j.DocumentIDs...)
	if j.QueuePosition != nil {
		v := *j.QueuePosition
		out.QueuePosition = &v
	}
	if j.EstimatedWaitTimeSeconds != nil {
		v := *j.EstimatedWaitTimeSeconds
		out.EstimatedWaitTimeSeconds = &v
	}
	if j.DurationSeconds != nil {
		v := *j.DurationSeconds
		out.DurationSeconds = &v
	}
	return out
}

// GenerationRequest is what the presentation layer submits
type GenerationRequest struct {
	Title          string         `json:"title" validate:"required,notblank,max=200"`
	Description    string         `json:"description" validate:"omitempty,max=2000"`
	DocumentIDs    []string       `json:"documentIds" validate:"required,min=1,dive,required"`
	SynthesisStyle SynthesisStyle `json:"synthesisStyle" validate:"required,oneof=podcast interview lecture debate"`
	Specialty      string         `json:"specialty" validate:"omitempty,max=100"`
}

// ProgressSnapshot is derived from status and elapsed time, never stored remotely
type ProgressSnapshot struct {
	Percent          int    `json:"percent"`
	CurrentStepLabel string `json:"currentStepLabel"`
}

// LogEntry is one operator-visible event
type LogEntry struct {
	Timestamp time.Time   `json:"timestamp"`
	Level     LogLevel    `json:"level"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
