package model

// WebSocket message types
const (
	WSMessageTypeSnapshot  = "snapshot"
	WSMessageTypeStarted   = "started"
	WSMessageTypeStatus    = "status"
	WSMessageTypeCompleted = "completed"
	WSMessageTypeFailed    = "failed"
	WSMessageTypeLog       = "log"
	WSMessageTypePing      = "ping"
	WSMessageTypePong      = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSJobMessage carries a job snapshot for started/completed events
type WSJobMessage struct {
	Type  string `json:"type"`
	JobID string `json:"jobId"`
	Job   Job    `json:"job"`
}

// WSStatusMessage represents a status/progress update
type WSStatusMessage struct {
	Type     string           `json:"type"`
	JobID    string           `json:"jobId"`
	Job      Job              `json:"job"`
	Progress ProgressSnapshot `json:"progress"`
}

// WSFailedMessage represents a terminal failure
type WSFailedMessage struct {
	Type  string  `json:"type"`
	JobID string  `json:"jobId"`
	Job   Job     `json:"job"`
	Error WSError `json:"error"`
}

// WSLogMessage tells viewers a log entry was appended
type WSLogMessage struct {
	Type  string   `json:"type"`
	Entry LogEntry `json:"entry"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
