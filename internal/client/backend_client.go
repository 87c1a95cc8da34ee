package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/medcast/podcast-tracker/internal/config"
	"github.com/medcast/podcast-tracker/internal/model"
)

const (
	submitEndpoint = "/functions/v1/generate-podcast"
	nudgeEndpoint  = "/functions/v1/process-podcast-queue"
	statusEndpoint = "/functions/v1/podcast-status/"

	tokenIssuer  = "podcast-tracker"
	tokenSubject = "service"
	tokenTTL     = 60 * time.Second
)

// APIError is a non-2xx answer from the podcast backend.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("podcast backend error (status %d): %s", e.StatusCode, e.Body)
}

// BackendClient talks to the podcast generation edge functions.
type BackendClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	jwtSecret  []byte
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     logrus.FieldLogger
	now        func() time.Time
}

// NewBackendClient creates a client from backend configuration.
func NewBackendClient(cfg *config.BackendConfig, logger logrus.FieldLogger) *BackendClient {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	log := logger.WithField("component", "backend_client")

	c := &BackendClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		limiter:    rate.NewLimiter(rate.Limit(rps), rps),
		logger:     log,
		now:        time.Now,
	}
	if cfg.JWTSecret != "" {
		c.jwtSecret = []byte(cfg.JWTSecret)
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "podcast-queue-nudge",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("circuit breaker state changed")
		},
	})
	return c
}

// SubmitGeneration creates a podcast generation job.
func (c *BackendClient) SubmitGeneration(ctx context.Context, req *model.SubmitGenerationRequest) (*model.SubmitGenerationResponse, error) {
	var result model.SubmitGenerationResponse
	if err := c.post(ctx, submitEndpoint, req, &result); err != nil {
		return nil, err
	}
	if result.JobID == "" {
		return nil, errors.New("malformed response: missing jobId")
	}
	if !result.Status.Valid() {
		return nil, fmt.Errorf("malformed response: unknown status %q", result.Status)
	}
	return &result, nil
}

// NudgeQueueProcessor asks the backend to advance its queue. The call goes
// through a circuit breaker so a dead processor is not hammered.
func (c *BackendClient) NudgeQueueProcessor(ctx context.Context) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.post(ctx, nudgeEndpoint, struct{}{}, nil)
	})
	return err
}

// GetJobStatus reads the authoritative status of a job. debugInfo is left raw.
func (c *BackendClient) GetJobStatus(ctx context.Context, jobID string) (*model.JobStatusResponse, error) {
	var result model.JobStatusResponse
	if err := c.get(ctx, statusEndpoint+url.PathEscape(jobID), &result); err != nil {
		return nil, err
	}
	if !result.Status.Valid() {
		return nil, fmt.Errorf("malformed response: unknown status %q", result.Status)
	}
	return &result, nil
}

// IsConfigured returns true if the client has credentials
func (c *BackendClient) IsConfigured() bool {
	return c.apiKey != "" || len(c.jwtSecret) > 0
}

// post sends a POST request with JSON body
func (c *BackendClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// get sends a GET request and parses JSON response
func (c *BackendClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and parses the response. A nil result
// accepts any 2xx body.
func (c *BackendClient) doRequest(req *http.Request, result interface{}) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	token, err := c.authToken()
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	log := c.logger.WithFields(logrus.Fields{"method": req.Method, "url": req.URL.String()})
	log.Debug("backend request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Warn("backend request failed")
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.WithError(err).Warn("failed to read backend response")
		return fmt.Errorf("failed to read response: %w", err)
	}

	log.WithField("status", resp.StatusCode).Debug("backend response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if result == nil {
		return nil
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		log.WithError(err).WithField("body", string(respBody)).Warn("failed to decode backend response")
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// authToken mints a short-lived service token when a signing secret is set
// and falls back to the static API key otherwise.
func (c *BackendClient) authToken() (string, error) {
	if len(c.jwtSecret) == 0 {
		return c.apiKey, nil
	}
	now := c.now()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   tokenSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign service token: %w", err)
	}
	return signed, nil
}
