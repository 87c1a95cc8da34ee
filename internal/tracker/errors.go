package tracker

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadySubmitting is returned when a submission is already in flight.
	ErrAlreadySubmitting = errors.New("a generation request is already being submitted")

	// ErrAlreadyTracking is returned when submitting while another job is tracked.
	ErrAlreadyTracking = errors.New("another job is already being tracked")

	// ErrNoActiveJob is returned for commands that need a job.
	ErrNoActiveJob = errors.New("no active job")

	// ErrRestartUnavailable is returned when restart conditions are not met.
	ErrRestartUnavailable = errors.New("restart is only available for failed jobs or jobs queued past the threshold")
)

// ConnectivityMessage is the user-facing message after polling gives up.
const ConnectivityMessage = "Lost connection to the podcast service. Please check your network and try again."

// ValidationError reports a request rejected before reaching the network.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// TransportError wraps network failures and malformed responses.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteFailure is an authoritative failed status from the pipeline.
type RemoteFailure struct {
	JobID   string
	Message string
}

func (e *RemoteFailure) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}

// DiagnosticParseError describes an unusable diagnostic payload.
type DiagnosticParseError struct {
	Slot string
	Err  error
}

func (e *DiagnosticParseError) Error() string {
	if e.Slot == "" {
		return fmt.Sprintf("diagnostics: %v", e.Err)
	}
	return fmt.Sprintf("diagnostics %s: %v", e.Slot, e.Err)
}

func (e *DiagnosticParseError) Unwrap() error { return e.Err }
