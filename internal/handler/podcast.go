package handler

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/medcast/podcast-tracker/internal/model"
	"github.com/medcast/podcast-tracker/internal/tracker"
	"github.com/medcast/podcast-tracker/pkg/response"
)

// Tracker is the controller surface the HTTP API drives.
type Tracker interface {
	Submit(ctx context.Context, req *model.GenerationRequest) (model.Job, error)
	Cancel() error
	Restart() error
	Snapshot() tracker.Snapshot
	Logs() []model.LogEntry
	Diagnostics() *model.DiagnosticBundle
}

type PodcastHandler struct {
	tracker   Tracker
	validator *validator.Validate
}

// NewPodcastHandler registers the tracker's custom rules on v, or builds a
// validator when v is nil.
func NewPodcastHandler(t Tracker, v *validator.Validate) *PodcastHandler {
	if v == nil {
		v = tracker.NewValidator()
	} else {
		tracker.RegisterRules(v)
	}
	return &PodcastHandler{
		tracker:   t,
		validator: v,
	}
}

// Generate handles POST /api/podcasts/generate
func (h *PodcastHandler) Generate(c *fiber.Ctx) error {
	var req model.GenerationRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := tracker.ValidateRequest(h.validator, &req); err != nil {
		return writeError(c, err)
	}

	job, err := h.tracker.Submit(c.UserContext(), &req)
	if err != nil {
		return writeError(c, err)
	}

	return response.Accepted(c, job)
}

// Current handles GET /api/podcasts/current
func (h *PodcastHandler) Current(c *fiber.Ctx) error {
	return response.OK(c, h.tracker.Snapshot())
}

// Logs handles GET /api/podcasts/current/logs
func (h *PodcastHandler) Logs(c *fiber.Ctx) error {
	return response.OK(c, fiber.Map{"logs": h.tracker.Logs()})
}

// Diagnostics handles GET /api/podcasts/current/diagnostics
func (h *PodcastHandler) Diagnostics(c *fiber.Ctx) error {
	return response.OK(c, fiber.Map{"diagnostics": h.tracker.Diagnostics()})
}

// Cancel handles POST /api/podcasts/current/cancel
func (h *PodcastHandler) Cancel(c *fiber.Ctx) error {
	if err := h.tracker.Cancel(); err != nil {
		return writeError(c, err)
	}
	return response.OK(c, h.tracker.Snapshot())
}

// Restart handles POST /api/podcasts/current/restart
func (h *PodcastHandler) Restart(c *fiber.Ctx) error {
	if err := h.tracker.Restart(); err != nil {
		return writeError(c, err)
	}
	return response.OK(c, h.tracker.Snapshot())
}

// writeError maps tracker errors onto API error responses
func writeError(c *fiber.Ctx, err error) error {
	var verr *tracker.ValidationError
	var terr *tracker.TransportError
	switch {
	case errors.As(err, &verr):
		var details interface{}
		if verr.Field != "" {
			details = map[string]string{verr.Field: verr.Message}
		}
		return response.ValidationError(c, "Validation failed", details)
	case errors.As(err, &terr):
		return response.UpstreamError(c, "Podcast service unavailable: "+terr.Err.Error())
	case errors.Is(err, tracker.ErrNoActiveJob):
		return response.NotFound(c, "No active podcast job")
	case errors.Is(err, tracker.ErrAlreadySubmitting),
		errors.Is(err, tracker.ErrAlreadyTracking),
		errors.Is(err, tracker.ErrRestartUnavailable),
		errors.Is(err, tracker.ErrCancelled):
		return response.Conflict(c, err.Error())
	}
	return response.ServiceError(c, err.Error())
}
