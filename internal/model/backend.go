package model

import "encoding/json"

// SubmitGenerationRequest is the wire body for generate-podcast
type SubmitGenerationRequest struct {
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	DocumentIDs    []string       `json:"documentIds"`
	SynthesisStyle SynthesisStyle `json:"synthesisStyle"`
	Specialty      string         `json:"specialty,omitempty"`
}

// SubmitGenerationResponse is returned by generate-podcast
type SubmitGenerationResponse struct {
	JobID                    string    `json:"jobId"`
	Status                   JobStatus `json:"status"`
	QueuePosition            *int      `json:"queuePosition,omitempty"`
	EstimatedWaitTimeSeconds *int      `json:"estimatedWaitTime,omitempty"`
}

// JobStatusResponse is returned by podcast-status
type JobStatusResponse struct {
	Status          JobStatus       `json:"status"`
	QueuePosition   *int            `json:"queuePosition,omitempty"`
	AudioURL        string          `json:"audioUrl,omitempty"`
	AudioPath       string          `json:"audioPath,omitempty"`
	DurationSeconds *float64        `json:"duration,omitempty"`
	ErrorMessage    string          `json:"errorMessage,omitempty"`
	DebugInfo       json.RawMessage `json:"debugInfo,omitempty"`
}
