package model

// Job status as reported by the remote pipeline
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusQueued     JobStatus = "queued"
	JobStatusGenerating JobStatus = "generating"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

var ValidJobStatuses = []JobStatus{
	JobStatusPending, JobStatusQueued, JobStatusGenerating,
	JobStatusCompleted, JobStatusFailed,
}

// IsTerminal reports whether no further transitions are possible.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IsWaiting reports whether the job has not started generating yet.
func (s JobStatus) IsWaiting() bool {
	return s == JobStatusPending || s == JobStatusQueued
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	for _, v := range ValidJobStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Synthesis styles
type SynthesisStyle string

const (
	SynthesisStylePodcast   SynthesisStyle = "podcast"
	SynthesisStyleInterview SynthesisStyle = "interview"
	SynthesisStyleLecture   SynthesisStyle = "lecture"
	SynthesisStyleDebate    SynthesisStyle = "debate"
)

var ValidSynthesisStyles = []SynthesisStyle{
	SynthesisStylePodcast, SynthesisStyleInterview,
	SynthesisStyleLecture, SynthesisStyleDebate,
}

// Log levels
type LogLevel string

const (
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
	LogLevelSuccess LogLevel = "success"
)

// Tracker lifecycle states
type TrackerState string

const (
	TrackerStateIdle       TrackerState = "idle"
	TrackerStateSubmitting TrackerState = "submitting"
	TrackerStateTracking   TrackerState = "tracking"
	TrackerStateCompleted  TrackerState = "completed"
	TrackerStateFailed     TrackerState = "failed"
)

// Pipeline steps reported in diagnostic bundles
type PipelineStep int

const (
	StepDocumentOverview PipelineStep = iota + 1
	StepContentMapping
	StepOutline
	StepScript
)

var PipelineSteps = []PipelineStep{
	StepDocumentOverview, StepContentMapping, StepOutline, StepScript,
}

func (s PipelineStep) String() string {
	switch s {
	case StepDocumentOverview:
		return "document-overview"
	case StepContentMapping:
		return "content-mapping"
	case StepOutline:
		return "outline"
	case StepScript:
		return "script"
	default:
		return "unknown"
	}
}
