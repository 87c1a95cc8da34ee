package tracker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medcast/podcast-tracker/internal/model"
)

// StatusFetcher is the read-only half of the backend the poller needs.
type StatusFetcher interface {
	GetJobStatus(ctx context.Context, jobID string) (*model.JobStatusResponse, error)
}

// PollerConfig controls cadence and retry behaviour.
type PollerConfig struct {
	Interval    time.Duration
	RetryDelay  time.Duration
	MaxFailures int
}

// PollHandler receives poll outcomes. OnStatus sees every observed status,
// OnTerminal fires once for the first terminal one. OnRetry reports a
// transport failure that will be retried; OnGiveUp ends polling after
// MaxFailures consecutive failures. Nil fields are skipped.
type PollHandler struct {
	OnStatus   func(resp *model.JobStatusResponse)
	OnTerminal func(resp *model.JobStatusResponse)
	OnRetry    func(err error, attempt int)
	OnGiveUp   func(err error)
}

// Poller repeatedly reads job status until a terminal state is observed.
// Only one request is ever in flight per Run call.
type Poller struct {
	fetcher StatusFetcher
	cfg     PollerConfig
	logger  logrus.FieldLogger
}

// NewPoller creates a poller. Zero config values fall back to defaults.
func NewPoller(fetcher StatusFetcher, cfg PollerConfig, logger logrus.FieldLogger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxPollFailures
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Poller{fetcher: fetcher, cfg: cfg, logger: logger}
}

// Run polls jobID until a terminal status, retry exhaustion or ctx
// cancellation. A response that arrives after ctx is cancelled is dropped
// without invoking any handler.
func (p *Poller) Run(ctx context.Context, jobID string, h PollHandler) {
	log := p.logger.WithField("job_id", jobID)
	failures := 0
	delay := p.cfg.Interval
	attempt := 0

	for {
		if !wait(ctx, delay) {
			log.Debug("polling cancelled")
			return
		}

		attempt++
		resp, err := p.fetcher.GetJobStatus(ctx, jobID)
		if ctx.Err() != nil {
			log.WithField("attempt", attempt).Debug("discarding poll result after cancellation")
			return
		}

		if err != nil {
			failures++
			log.WithFields(logrus.Fields{"attempt": attempt, "failures": failures}).WithError(err).Warn("status poll failed")
			if failures >= p.cfg.MaxFailures {
				if h.OnGiveUp != nil {
					h.OnGiveUp(err)
				}
				return
			}
			if h.OnRetry != nil {
				h.OnRetry(err, failures)
			}
			delay = p.cfg.RetryDelay
			continue
		}

		failures = 0
		delay = p.cfg.Interval
		log.WithFields(logrus.Fields{"attempt": attempt, "status": resp.Status}).Debug("status poll")

		if h.OnStatus != nil {
			h.OnStatus(resp)
		}
		if resp.Status.IsTerminal() {
			if h.OnTerminal != nil {
				h.OnTerminal(resp)
			}
			return
		}
	}
}

// wait blocks for d or until ctx is done. It reports whether polling
// should continue.
func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
