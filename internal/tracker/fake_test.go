package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/medcast/podcast-tracker/internal/model"
)

var errNetwork = errors.New("connection refused")

// pollResult is one scripted answer to GetJobStatus.
type pollResult struct {
	resp    *model.JobStatusResponse
	err     error
	advance time.Duration
}

func statusOf(status model.JobStatus) pollResult {
	return pollResult{resp: &model.JobStatusResponse{Status: status}}
}

func queuedAt(pos int) pollResult {
	return pollResult{resp: &model.JobStatusResponse{Status: model.JobStatusQueued, QueuePosition: &pos}}
}

func failure() pollResult {
	return pollResult{err: errNetwork}
}

// fakeBackend answers from a script; the last entry repeats once exhausted.
type fakeBackend struct {
	mu        sync.Mutex
	clock     *fakeClock
	script    []pollResult
	polls     int
	nudges    int
	nudgeErr  error
	submitReq *model.SubmitGenerationRequest
	submitErr error
	submit    *model.SubmitGenerationResponse

	// submitGate, when set, blocks SubmitGeneration until closed.
	submitGate chan struct{}
	// pollGate, when set, blocks every GetJobStatus until closed, ignoring ctx.
	pollGate chan struct{}
	// polling receives a value each time GetJobStatus is entered.
	polling chan struct{}
}

func (f *fakeBackend) SubmitGeneration(ctx context.Context, req *model.SubmitGenerationRequest) (*model.SubmitGenerationResponse, error) {
	f.mu.Lock()
	f.submitReq = req
	gate := f.submitGate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	resp := *f.submit
	return &resp, nil
}

func (f *fakeBackend) NudgeQueueProcessor(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nudges++
	return f.nudgeErr
}

func (f *fakeBackend) GetJobStatus(ctx context.Context, jobID string) (*model.JobStatusResponse, error) {
	f.mu.Lock()
	gate, polling := f.pollGate, f.polling
	f.mu.Unlock()

	if polling != nil {
		select {
		case polling <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if len(f.script) == 0 {
		return &model.JobStatusResponse{Status: model.JobStatusQueued}, nil
	}
	next := f.script[0]
	if len(f.script) > 1 {
		f.script = f.script[1:]
	}
	if next.advance > 0 && f.clock != nil {
		f.clock.Advance(next.advance)
	}
	if next.err != nil {
		return nil, next.err
	}
	resp := *next.resp
	return &resp, nil
}

func (f *fakeBackend) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func (f *fakeBackend) nudgeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nudges
}

func (f *fakeBackend) setScript(script ...pollResult) {
	f.mu.Lock()
	f.script = script
	f.mu.Unlock()
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// eventRecorder is a Listener that keeps every event it sees.
type eventRecorder struct {
	mu        sync.Mutex
	started   []model.Job
	statuses  []model.Job
	progress  []model.ProgressSnapshot
	completed []model.Job
	failed    []model.Job
	errs      []error
	logs      []model.LogEntry
	done      chan struct{}
	doneOnce  sync.Once
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{done: make(chan struct{})}
}

func (r *eventRecorder) OnStarted(job model.Job) {
	r.mu.Lock()
	r.started = append(r.started, job)
	r.mu.Unlock()
}

func (r *eventRecorder) OnStatusChanged(job model.Job, progress model.ProgressSnapshot) {
	r.mu.Lock()
	r.statuses = append(r.statuses, job)
	r.progress = append(r.progress, progress)
	r.mu.Unlock()
}

func (r *eventRecorder) OnCompleted(job model.Job) {
	r.mu.Lock()
	r.completed = append(r.completed, job)
	r.mu.Unlock()
	r.doneOnce.Do(func() { close(r.done) })
}

func (r *eventRecorder) OnFailed(job model.Job, err error) {
	r.mu.Lock()
	r.failed = append(r.failed, job)
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	r.doneOnce.Do(func() { close(r.done) })
}

func (r *eventRecorder) OnLogAppended(entry model.LogEntry) {
	r.mu.Lock()
	r.logs = append(r.logs, entry)
	r.mu.Unlock()
}

func (r *eventRecorder) counts() (started, statuses, completed, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.started), len(r.statuses), len(r.completed), len(r.failed)
}

func (r *eventRecorder) snapshot() ([]model.Job, []model.ProgressSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Job(nil), r.statuses...), append([]model.ProgressSnapshot(nil), r.progress...)
}
