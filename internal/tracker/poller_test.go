package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcast/podcast-tracker/internal/model"
)

func testPoller(f StatusFetcher, maxFailures int) *Poller {
	logger, _ := test.NewNullLogger()
	return NewPoller(f, PollerConfig{
		Interval:    time.Millisecond,
		RetryDelay:  time.Millisecond,
		MaxFailures: maxFailures,
	}, logger)
}

type pollLog struct {
	mu        sync.Mutex
	statuses  []model.JobStatus
	terminals int
	retries   []int
	gaveUp    error
}

func (l *pollLog) handler() PollHandler {
	return PollHandler{
		OnStatus: func(resp *model.JobStatusResponse) {
			l.mu.Lock()
			l.statuses = append(l.statuses, resp.Status)
			l.mu.Unlock()
		},
		OnTerminal: func(*model.JobStatusResponse) {
			l.mu.Lock()
			l.terminals++
			l.mu.Unlock()
		},
		OnRetry: func(_ error, attempt int) {
			l.mu.Lock()
			l.retries = append(l.retries, attempt)
			l.mu.Unlock()
		},
		OnGiveUp: func(err error) {
			l.mu.Lock()
			l.gaveUp = err
			l.mu.Unlock()
		},
	}
}

func TestPoller_StopsAtFirstTerminalStatus(t *testing.T) {
	f := &fakeBackend{}
	f.setScript(queuedAt(2), statusOf(model.JobStatusGenerating), statusOf(model.JobStatusCompleted), statusOf(model.JobStatusFailed))

	var log pollLog
	testPoller(f, 3).Run(context.Background(), "job-1", log.handler())

	assert.Equal(t, []model.JobStatus{model.JobStatusQueued, model.JobStatusGenerating, model.JobStatusCompleted}, log.statuses)
	assert.Equal(t, 1, log.terminals)
	assert.Equal(t, 3, f.pollCount())
	assert.Nil(t, log.gaveUp)
}

func TestPoller_SuccessResetsFailureCounter(t *testing.T) {
	f := &fakeBackend{}
	f.setScript(
		failure(), failure(), statusOf(model.JobStatusQueued),
		failure(), failure(), statusOf(model.JobStatusCompleted),
	)

	var log pollLog
	testPoller(f, 3).Run(context.Background(), "job-1", log.handler())

	assert.Equal(t, []int{1, 2, 1, 2}, log.retries)
	assert.Nil(t, log.gaveUp)
	assert.Equal(t, 1, log.terminals)
}

func TestPoller_GivesUpAfterMaxConsecutiveFailures(t *testing.T) {
	f := &fakeBackend{}
	f.setScript(failure())

	var log pollLog
	testPoller(f, 3).Run(context.Background(), "job-1", log.handler())

	require.ErrorIs(t, log.gaveUp, errNetwork)
	assert.Equal(t, []int{1, 2}, log.retries)
	assert.Equal(t, 3, f.pollCount())
	assert.Empty(t, log.statuses)
}

func TestPoller_DiscardsResultAfterCancellation(t *testing.T) {
	gate := make(chan struct{})
	f := &fakeBackend{pollGate: gate, polling: make(chan struct{}, 1)}
	f.setScript(statusOf(model.JobStatusCompleted))

	ctx, cancel := context.WithCancel(context.Background())
	var log pollLog
	done := make(chan struct{})
	go func() {
		defer close(done)
		testPoller(f, 3).Run(ctx, "job-1", log.handler())
	}()

	<-f.polling
	cancel()
	close(gate)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancellation")
	}
	assert.Empty(t, log.statuses)
	assert.Zero(t, log.terminals)
	assert.Nil(t, log.gaveUp)
}

func TestPoller_CancelledBeforeFirstPoll(t *testing.T) {
	f := &fakeBackend{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	NewPoller(f, PollerConfig{Interval: time.Hour}, logger).Run(ctx, "job-1", PollHandler{})

	assert.Zero(t, f.pollCount())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "polling cancelled", hook.LastEntry().Message)
}
