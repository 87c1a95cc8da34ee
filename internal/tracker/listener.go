package tracker

import "github.com/medcast/podcast-tracker/internal/model"

// Listener receives lifecycle events for the tracked job. Callbacks run on
// tracker goroutines, never while the controller holds its lock.
type Listener interface {
	OnStarted(job model.Job)
	OnStatusChanged(job model.Job, progress model.ProgressSnapshot)
	OnCompleted(job model.Job)
	OnFailed(job model.Job, err error)
}

// LogListener is implemented by listeners that follow the operator log.
// OnLogAppended may run while the controller holds its lock and must not
// call back into the controller.
type LogListener interface {
	OnLogAppended(entry model.LogEntry)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Started       func(job model.Job)
	StatusChanged func(job model.Job, progress model.ProgressSnapshot)
	Completed     func(job model.Job)
	Failed        func(job model.Job, err error)
	LogAppended   func(entry model.LogEntry)
}

func (f ListenerFuncs) OnStarted(job model.Job) {
	if f.Started != nil {
		f.Started(job)
	}
}

func (f ListenerFuncs) OnStatusChanged(job model.Job, progress model.ProgressSnapshot) {
	if f.StatusChanged != nil {
		f.StatusChanged(job, progress)
	}
}

func (f ListenerFuncs) OnCompleted(job model.Job) {
	if f.Completed != nil {
		f.Completed(job)
	}
}

func (f ListenerFuncs) OnFailed(job model.Job, err error) {
	if f.Failed != nil {
		f.Failed(job, err)
	}
}

func (f ListenerFuncs) OnLogAppended(entry model.LogEntry) {
	if f.LogAppended != nil {
		f.LogAppended(entry)
	}
}
