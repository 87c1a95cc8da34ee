package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/medcast/podcast-tracker/internal/config"
	"github.com/medcast/podcast-tracker/internal/model"
)

const (
	DefaultPollInterval     = 2 * time.Second
	DefaultRetryDelay       = 2 * time.Second
	DefaultMaxPollFailures  = 3
	DefaultRestartThreshold = 5 * time.Minute
	DefaultWaitPerJob       = 5 * time.Minute
	DefaultNudgeTimeout     = 10 * time.Second
)

var (
	// ErrCancelled is returned by Submit when Cancel interrupts the submission.
	ErrCancelled = errors.New("generation cancelled")

	// ErrClosed is returned once the controller has been closed.
	ErrClosed = errors.New("tracker closed")
)

// Backend is the remote podcast pipeline as seen by the tracker.
type Backend interface {
	StatusFetcher
	SubmitGeneration(ctx context.Context, req *model.SubmitGenerationRequest) (*model.SubmitGenerationResponse, error)
	NudgeQueueProcessor(ctx context.Context) error
}

// AudioURLResolver turns a storage object path into a playable URL.
type AudioURLResolver interface {
	ResolveAudioURL(ctx context.Context, path string) (string, error)
}

// Options configures a Controller.
type Options struct {
	PollInterval      time.Duration
	RetryDelay        time.Duration
	MaxPollFailures   int
	LogCapacity       int
	RestartThreshold  time.Duration
	DefaultWaitPerJob time.Duration
	NudgeTimeout      time.Duration

	Logger    logrus.FieldLogger
	Resolver  AudioURLResolver
	Validator *validator.Validate
	Clock     func() time.Time
}

// DefaultOptions returns the production tracker settings.
func DefaultOptions() Options {
	return Options{
		PollInterval:      DefaultPollInterval,
		RetryDelay:        DefaultRetryDelay,
		MaxPollFailures:   DefaultMaxPollFailures,
		LogCapacity:       DefaultLogCapacity,
		RestartThreshold:  DefaultRestartThreshold,
		DefaultWaitPerJob: DefaultWaitPerJob,
		NudgeTimeout:      DefaultNudgeTimeout,
	}
}

// OptionsFromConfig maps loaded configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	opts.PollInterval = cfg.Tracker.PollInterval
	opts.RetryDelay = cfg.Tracker.RetryDelay
	opts.MaxPollFailures = cfg.Tracker.MaxPollFailures
	opts.LogCapacity = cfg.Tracker.LogCapacity
	opts.RestartThreshold = cfg.Tracker.RestartThreshold
	opts.DefaultWaitPerJob = cfg.Tracker.DefaultWaitPerJob
	if cfg.Backend.NudgeTimeout > 0 {
		opts.NudgeTimeout = cfg.Backend.NudgeTimeout
	}
	return opts
}

// Snapshot is a consistent view of the controller for the presentation layer.
type Snapshot struct {
	State      model.TrackerState     `json:"state"`
	Job        *model.Job             `json:"job,omitempty"`
	Progress   model.ProgressSnapshot `json:"progress"`
	CanRestart bool                   `json:"canRestart"`
}

// session is one tracking run. Poll callbacks carrying a session other than
// the current one are stale and dropped.
type session struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Controller owns a single tracked job from submission to completion or
// failure. It is safe for concurrent use.
type Controller struct {
	backend     Backend
	opts        Options
	logger      logrus.FieldLogger
	validate    *validator.Validate
	now         func() time.Time
	recorder    *LogRecorder
	diagnostics *Aggregator
	poller      *Poller

	mu           sync.Mutex
	state        model.TrackerState
	job          *model.Job
	progress     model.ProgressSnapshot
	queuedSince  time.Time
	session      *session
	submitCancel context.CancelFunc
	submitSeq    uint64
	closed       bool
	wg           sync.WaitGroup

	lmu       sync.RWMutex
	listeners []Listener
}

// NewController creates an idle controller.
func NewController(backend Backend, opts Options) *Controller {
	defaults := DefaultOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaults.PollInterval
	}
	if opts.MaxPollFailures <= 0 {
		opts.MaxPollFailures = defaults.MaxPollFailures
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = defaults.RetryDelay
	}
	if opts.LogCapacity <= 0 {
		opts.LogCapacity = defaults.LogCapacity
	}
	if opts.RestartThreshold <= 0 {
		opts.RestartThreshold = defaults.RestartThreshold
	}
	if opts.DefaultWaitPerJob <= 0 {
		opts.DefaultWaitPerJob = defaults.DefaultWaitPerJob
	}
	if opts.NudgeTimeout <= 0 {
		opts.NudgeTimeout = defaults.NudgeTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Validator == nil {
		opts.Validator = NewValidator()
	} else {
		RegisterRules(opts.Validator)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	logger := opts.Logger.WithField("component", "tracker")
	recorder := NewLogRecorder(opts.LogCapacity, logger.WithField("source", "recorder"))
	recorder.now = opts.Clock

	c := &Controller{
		backend:     backend,
		opts:        opts,
		logger:      logger,
		validate:    opts.Validator,
		now:         opts.Clock,
		recorder:    recorder,
		diagnostics: NewAggregator(recorder),
		poller: NewPoller(backend, PollerConfig{
			Interval:    opts.PollInterval,
			RetryDelay:  opts.RetryDelay,
			MaxFailures: opts.MaxPollFailures,
		}, logger),
		state: model.TrackerStateIdle,
	}
	recorder.OnAppend(c.fanOutLog)
	return c
}

// AddListener subscribes l to lifecycle events.
func (c *Controller) AddListener(l Listener) {
	c.lmu.Lock()
	c.listeners = append(c.listeners, l)
	c.lmu.Unlock()
}

// Submit validates req, submits it to the backend and starts tracking the
// returned job. It blocks only for the submission call.
func (c *Controller) Submit(ctx context.Context, req *model.GenerationRequest) (model.Job, error) {
	if err := ValidateRequest(c.validate, req); err != nil {
		return model.Job{}, err
	}

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return model.Job{}, ErrClosed
	case c.state == model.TrackerStateSubmitting:
		c.mu.Unlock()
		return model.Job{}, ErrAlreadySubmitting
	case c.state == model.TrackerStateTracking:
		c.mu.Unlock()
		return model.Job{}, ErrAlreadyTracking
	}
	c.stopSessionLocked()
	c.resetLocked()
	submitCtx, cancel := context.WithCancel(ctx)
	c.submitSeq++
	seq := c.submitSeq
	c.submitCancel = cancel
	c.state = model.TrackerStateSubmitting
	c.recorder.Info(fmt.Sprintf("Submitting podcast generation %q with %d document(s)", req.Title, len(req.DocumentIDs)), nil)
	c.mu.Unlock()
	defer cancel()

	resp, err := c.backend.SubmitGeneration(submitCtx, &model.SubmitGenerationRequest{
		Title:          req.Title,
		Description:    req.Description,
		DocumentIDs:    append([]string(nil), req.DocumentIDs...),
		SynthesisStyle: req.SynthesisStyle,
		Specialty:      req.Specialty,
	})
	if err == nil {
		err = checkSubmitResponse(resp)
	}

	c.mu.Lock()
	if c.submitSeq != seq || c.state != model.TrackerStateSubmitting {
		c.mu.Unlock()
		return model.Job{}, ErrCancelled
	}
	c.submitCancel = nil
	if err != nil {
		c.state = model.TrackerStateIdle
		c.recorder.Error("Podcast submission failed", err.Error())
		c.mu.Unlock()
		return model.Job{}, &TransportError{Op: "submit generation", Err: err}
	}

	now := c.now()
	job := &model.Job{
		ID:                       resp.JobID,
		Status:                   resp.Status,
		Title:                    req.Title,
		Description:              req.Description,
		SynthesisStyle:           req.SynthesisStyle,
		Specialty:                req.Specialty,
		DocumentIDs:              append([]string(nil), req.DocumentIDs...),
		QueuePosition:            copyInt(resp.QueuePosition),
		EstimatedWaitTimeSeconds: copyInt(resp.EstimatedWaitTimeSeconds),
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	if job.Status == model.JobStatusFailed && job.ErrorMessage == "" {
		job.ErrorMessage = "Podcast generation failed"
	}
	c.fillWaitEstimate(job)
	c.job = job
	c.state = model.TrackerStateTracking
	c.queuedSince = now
	c.progress = c.computeProgressLocked(0)
	c.recorder.Success(fmt.Sprintf("Generation started for job %s", job.ID), nil)
	c.logQueueLocked(nil, job)

	s := c.newSessionLocked()
	snapshot := job.Clone()
	listeners := c.listenersLocked()
	terminal := job.Status.IsTerminal()
	c.mu.Unlock()

	for _, l := range listeners {
		l.OnStarted(snapshot)
	}

	if terminal {
		c.finish(s)
		return snapshot, nil
	}

	c.nudge(s)
	c.startPolling(s, snapshot.ID)
	return snapshot, nil
}

// Cancel stops tracking and returns the controller to idle. An in-flight
// submission or poll is abandoned and its result discarded.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case model.TrackerStateIdle:
		return ErrNoActiveJob
	case model.TrackerStateSubmitting:
		if c.submitCancel != nil {
			c.submitCancel()
			c.submitCancel = nil
		}
		c.submitSeq++
		c.recorder.Warning("Podcast submission cancelled", nil)
	default:
		c.stopSessionLocked()
		if c.job != nil {
			c.recorder.Info(fmt.Sprintf("Stopped tracking job %s", c.job.ID), nil)
		}
	}
	c.state = model.TrackerStateIdle
	c.job = nil
	c.progress = model.ProgressSnapshot{}
	c.diagnostics.Reset()
	return nil
}

// Restart re-nudges the queue processor and resumes polling the same job.
// It is available while queued past the restart threshold or after failure.
func (c *Controller) Restart() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.job == nil {
		c.mu.Unlock()
		return ErrNoActiveJob
	}
	if !c.canRestartLocked() {
		c.mu.Unlock()
		return ErrRestartUnavailable
	}

	c.stopSessionLocked()
	job := c.job
	if c.state == model.TrackerStateFailed {
		job.Status = model.JobStatusPending
		job.ErrorMessage = ""
		c.progress = model.ProgressSnapshot{}
	}
	job.UpdatedAt = c.now()
	c.state = model.TrackerStateTracking
	c.queuedSince = c.now()
	c.progress = c.computeProgressLocked(c.progress.Percent)
	c.recorder.Info(fmt.Sprintf("Restarting generation for job %s", job.ID), nil)

	s := c.newSessionLocked()
	snapshot := job.Clone()
	progress := c.progress
	listeners := c.listenersLocked()
	c.mu.Unlock()

	for _, l := range listeners {
		l.OnStatusChanged(snapshot, progress)
	}
	c.nudge(s)
	c.startPolling(s, snapshot.ID)
	return nil
}

// Close cancels any tracking and waits for background work to stop.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	if c.submitCancel != nil {
		c.submitCancel()
		c.submitCancel = nil
	}
	c.stopSessionLocked()
	c.mu.Unlock()
	c.wg.Wait()
}

// State returns the lifecycle state.
func (c *Controller) State() model.TrackerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Job returns the current job, if any.
func (c *Controller) Job() (model.Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.job == nil {
		return model.Job{}, false
	}
	return c.job.Clone(), true
}

// Progress returns the current progress snapshot.
func (c *Controller) Progress() model.ProgressSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

// Logs returns the retained operator log, oldest first.
func (c *Controller) Logs() []model.LogEntry {
	return c.recorder.Entries()
}

// Diagnostics returns the merged diagnostic bundle, nil if none arrived.
func (c *Controller) Diagnostics() *model.DiagnosticBundle {
	return c.diagnostics.Bundle()
}

// CanRestart reports whether Restart would be accepted now.
func (c *Controller) CanRestart() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.job != nil && c.canRestartLocked()
}

// Snapshot returns state, job, progress and restart availability together.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{State: c.state, Progress: c.progress}
	if c.job != nil {
		job := c.job.Clone()
		snap.Job = &job
		snap.CanRestart = c.canRestartLocked()
	}
	return snap
}

func (c *Controller) canRestartLocked() bool {
	switch c.state {
	case model.TrackerStateFailed:
		return true
	case model.TrackerStateTracking:
		return c.job.Status == model.JobStatusQueued &&
			c.now().Sub(c.queuedSince) >= c.opts.RestartThreshold
	}
	return false
}

func (c *Controller) startPolling(s *session, jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != s || c.closed {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.poller.Run(s.ctx, jobID, PollHandler{
			OnStatus:   func(resp *model.JobStatusResponse) { c.handleStatus(s, resp) },
			OnTerminal: func(*model.JobStatusResponse) { c.finish(s) },
			OnRetry:    func(err error, attempt int) { c.handleRetry(s, err, attempt) },
			OnGiveUp:   func(err error) { c.handleGiveUp(s, err) },
		})
	}()
}

// nudge asks the queue processor to advance. Failures are logged only.
func (c *Controller) nudge(s *session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != s || c.closed {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.NudgeTimeout)
		defer cancel()
		err := c.backend.NudgeQueueProcessor(ctx)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.session != s {
			return
		}
		if err != nil {
			c.recorder.Warning("Could not nudge the queue processor, polling continues", err.Error())
			return
		}
		c.recorder.Info("Queue processor nudged", nil)
	}()
}

func (c *Controller) handleStatus(s *session, resp *model.JobStatusResponse) {
	audioURL := resp.AudioURL
	if resp.Status == model.JobStatusCompleted && audioURL == "" && resp.AudioPath != "" && c.opts.Resolver != nil {
		url, err := c.opts.Resolver.ResolveAudioURL(s.ctx, resp.AudioPath)
		if err != nil {
			c.logger.WithError(err).WithField("path", resp.AudioPath).Warn("failed to resolve audio url")
		} else {
			audioURL = url
		}
	}

	c.mu.Lock()
	if c.session != s || c.job == nil {
		c.mu.Unlock()
		return
	}
	job := c.job
	prev := job.Status
	next := resp.Status

	if !next.Valid() {
		c.recorder.Warning(fmt.Sprintf("Ignored unknown job status %q", next), nil)
		c.mu.Unlock()
		return
	}
	if !validTransition(prev, next) {
		c.recorder.Warning(fmt.Sprintf("Ignored out-of-order status %s after %s", next, prev), nil)
		c.mu.Unlock()
		return
	}

	before := job.Clone()
	job.Status = next
	job.UpdatedAt = c.now()
	switch {
	case next.IsWaiting():
		if resp.QueuePosition != nil && !sameInt(job.QueuePosition, resp.QueuePosition) {
			job.QueuePosition = copyInt(resp.QueuePosition)
			job.EstimatedWaitTimeSeconds = nil
		}
		c.fillWaitEstimate(job)
	case next == model.JobStatusGenerating:
		job.QueuePosition = nil
		job.EstimatedWaitTimeSeconds = nil
	case next == model.JobStatusCompleted:
		job.QueuePosition = nil
		job.EstimatedWaitTimeSeconds = nil
		job.AudioURL = audioURL
		job.DurationSeconds = copyFloat(resp.DurationSeconds)
	case next == model.JobStatusFailed:
		job.QueuePosition = nil
		job.EstimatedWaitTimeSeconds = nil
		job.ErrorMessage = resp.ErrorMessage
		if job.ErrorMessage == "" {
			job.ErrorMessage = "Podcast generation failed"
		}
	}
	if next == model.JobStatusQueued && prev != model.JobStatusQueued {
		c.queuedSince = c.now()
	}

	if c.diagnostics.Ingest(resp.DebugInfo) {
		c.recorder.Info("Received pipeline diagnostics", nil)
	}
	c.progress = c.computeProgressLocked(c.progress.Percent)

	if prev != next {
		c.recorder.Info(fmt.Sprintf("Job %s status changed: %s -> %s", job.ID, prev, next), nil)
	}
	c.logQueueLocked(&before, job)

	snapshot := job.Clone()
	progress := c.progress
	listeners := c.listenersLocked()
	c.mu.Unlock()

	for _, l := range listeners {
		l.OnStatusChanged(snapshot, progress)
	}
}

// finish moves a tracking session into its terminal state once.
func (c *Controller) finish(s *session) {
	c.mu.Lock()
	if c.session != s || c.state != model.TrackerStateTracking || c.job == nil || !c.job.Status.IsTerminal() {
		c.mu.Unlock()
		return
	}
	c.stopSessionLocked()
	job := c.job
	var failure error
	if job.Status == model.JobStatusCompleted {
		c.state = model.TrackerStateCompleted
		msg := fmt.Sprintf("Podcast %q is ready", job.Title)
		if job.DurationSeconds != nil {
			msg = fmt.Sprintf("%s (%s)", msg, formatDuration(*job.DurationSeconds))
		}
		c.recorder.Success(msg, job.AudioURL)
	} else {
		c.state = model.TrackerStateFailed
		failure = &RemoteFailure{JobID: job.ID, Message: job.ErrorMessage}
		c.recorder.Error(fmt.Sprintf("Podcast generation failed: %s", job.ErrorMessage), nil)
	}
	c.progress = c.computeProgressLocked(c.progress.Percent)
	snapshot := job.Clone()
	listeners := c.listenersLocked()
	c.mu.Unlock()

	for _, l := range listeners {
		if failure == nil {
			l.OnCompleted(snapshot)
		} else {
			l.OnFailed(snapshot, failure)
		}
	}
}

func (c *Controller) handleRetry(s *session, err error, attempt int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != s {
		return
	}
	c.recorder.Warning(
		fmt.Sprintf("Status check failed (attempt %d of %d), retrying in %s", attempt, c.opts.MaxPollFailures, c.opts.RetryDelay),
		err.Error(),
	)
}

func (c *Controller) handleGiveUp(s *session, err error) {
	c.mu.Lock()
	if c.session != s || c.job == nil {
		c.mu.Unlock()
		return
	}
	c.stopSessionLocked()
	job := c.job
	job.Status = model.JobStatusFailed
	job.ErrorMessage = ConnectivityMessage
	job.QueuePosition = nil
	job.EstimatedWaitTimeSeconds = nil
	job.UpdatedAt = c.now()
	c.state = model.TrackerStateFailed
	c.progress = c.computeProgressLocked(c.progress.Percent)
	c.recorder.Error(fmt.Sprintf("Gave up after %d failed status checks", c.opts.MaxPollFailures), err.Error())

	snapshot := job.Clone()
	listeners := c.listenersLocked()
	c.mu.Unlock()

	failure := &TransportError{Op: "poll job status", Err: err}
	for _, l := range listeners {
		l.OnFailed(snapshot, failure)
	}
}

func (c *Controller) computeProgressLocked(previous int) model.ProgressSnapshot {
	if c.job == nil {
		return model.ProgressSnapshot{}
	}
	elapsed := c.now().Sub(c.job.CreatedAt)
	return model.ProgressSnapshot{
		Percent:          EstimateProgress(c.job.Status, elapsed, previous),
		CurrentStepLabel: StepLabel(*c.job, c.diagnostics.Bundle()),
	}
}

func (c *Controller) fillWaitEstimate(job *model.Job) {
	if !job.Status.IsWaiting() || job.EstimatedWaitTimeSeconds != nil {
		return
	}
	units := 1
	if job.QueuePosition != nil && *job.QueuePosition > 0 {
		units = *job.QueuePosition
	}
	wait := units * int(c.opts.DefaultWaitPerJob/time.Second)
	job.EstimatedWaitTimeSeconds = &wait
}

func (c *Controller) logQueueLocked(before, job *model.Job) {
	if job.QueuePosition == nil || !job.Status.IsWaiting() {
		return
	}
	if before != nil && before.QueuePosition != nil && *before.QueuePosition == *job.QueuePosition {
		return
	}
	msg := fmt.Sprintf("Job %s is waiting at queue position %d", job.ID, *job.QueuePosition)
	if job.EstimatedWaitTimeSeconds != nil {
		msg = fmt.Sprintf("%s (estimated wait %s)", msg, formatDuration(float64(*job.EstimatedWaitTimeSeconds)))
	}
	c.recorder.Info(msg, nil)
}

func (c *Controller) newSessionLocked() *session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{ctx: ctx, cancel: cancel}
	c.session = s
	return s
}

func (c *Controller) stopSessionLocked() {
	if c.session != nil {
		c.session.cancel()
		c.session = nil
	}
}

func (c *Controller) resetLocked() {
	c.job = nil
	c.progress = model.ProgressSnapshot{}
	c.diagnostics.Reset()
	c.recorder.Clear()
}

func (c *Controller) listenersLocked() []Listener {
	c.lmu.RLock()
	defer c.lmu.RUnlock()
	return append([]Listener(nil), c.listeners...)
}

// fanOutLog runs from the recorder hook, possibly while c.mu is held.
func (c *Controller) fanOutLog(entry model.LogEntry) {
	for _, l := range c.listenersLocked() {
		if ll, ok := l.(LogListener); ok {
			ll.OnLogAppended(entry)
		}
	}
}

// validTransition enforces pending|queued -> generating -> terminal.
// Repeating the current status is allowed so queue updates flow through.
func validTransition(from, to model.JobStatus) bool {
	if from == to {
		return !from.IsTerminal()
	}
	if from.IsTerminal() {
		return false
	}
	switch to {
	case model.JobStatusQueued:
		return from == model.JobStatusPending
	case model.JobStatusGenerating:
		return from.IsWaiting()
	case model.JobStatusCompleted, model.JobStatusFailed:
		return true
	}
	return false
}

func checkSubmitResponse(resp *model.SubmitGenerationResponse) error {
	switch {
	case resp == nil:
		return errors.New("empty submission response")
	case resp.JobID == "":
		return errors.New("submission response missing job id")
	case !resp.Status.Valid():
		return fmt.Errorf("submission response has unknown status %q", resp.Status)
	}
	return nil
}

func formatDuration(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	if d >= time.Minute {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return d.String()
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func sameInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
