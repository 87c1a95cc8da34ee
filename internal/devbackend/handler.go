package devbackend

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/medcast/podcast-tracker/internal/model"
	"github.com/medcast/podcast-tracker/pkg/response"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register mounts the edge function routes on r
func (h *Handler) Register(r fiber.Router) {
	fn := r.Group("/functions/v1")
	fn.Post("/generate-podcast", h.Generate)
	fn.Post("/process-podcast-queue", h.ProcessQueue)
	fn.Get("/podcast-status/:jobId", h.Status)
}

// Generate handles POST /functions/v1/generate-podcast
func (h *Handler) Generate(c *fiber.Ctx) error {
	var req model.SubmitGenerationRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	result, err := h.service.Submit(c.UserContext(), &req)
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			return response.ValidationError(c, err.Error(), nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// ProcessQueue handles POST /functions/v1/process-podcast-queue
func (h *Handler) ProcessQueue(c *fiber.Ctx) error {
	if err := h.service.Nudge(c.UserContext()); err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.Accepted(c, fiber.Map{"scheduled": true})
}

// Status handles GET /functions/v1/podcast-status/:jobId
func (h *Handler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.Status(c.UserContext(), jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// ServiceAuth accepts the tracker's credentials: an HS256 service token when
// jwtSecret is set, else the static API key. With neither configured every
// request passes.
func ServiceAuth(apiKey, jwtSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if apiKey == "" && jwtSecret == "" {
			return c.Next()
		}

		token := strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
		if token == "" {
			return response.Unauthorized(c, "Missing credentials")
		}

		if jwtSecret != "" {
			_, err := jwt.Parse(token, func(*jwt.Token) (interface{}, error) {
				return []byte(jwtSecret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer("podcast-tracker"))
			if err != nil {
				return response.Unauthorized(c, "Invalid service token")
			}
			return c.Next()
		}

		if token != apiKey {
			return response.Unauthorized(c, "Invalid API key")
		}
		return c.Next()
	}
}
