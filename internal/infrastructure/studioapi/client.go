package studioapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/riskibarqy/studio-profile/internal/domain/profile"
	idgen "github.com/riskibarqy/studio-profile/internal/platform/id"
	"github.com/riskibarqy/studio-profile/internal/platform/logging"
	"github.com/riskibarqy/studio-profile/internal/platform/resilience"
	"github.com/riskibarqy/studio-profile/internal/usecase"
)

const (
	profilePath = "/profile"
	// profileSchemaVersion selects the response shape of GET /profile.
	profileSchemaVersion = "2"
	maxResponseBytes     = 1 << 20
)

type ClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	AccessToken    string
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
}

// Client talks to the backend platform API on behalf of the signed-in user.
// It never retries; callers see every non-2xx response as an *APIError.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *logging.Logger
	breaker    *resilience.CircuitBreaker
	validate   *validator.Validate
}

func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL, err := validateHTTPBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, crerr.Wrap(err, "invalid API_URL")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient, err = NewHTTPClient(0, false)
		if err != nil {
			return nil, err
		}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		token:      strings.TrimSpace(cfg.AccessToken),
		logger:     logger,
		breaker:    cfg.CircuitBreaker.New(breakerLogger(logger)),
		validate:   validator.New(),
	}, nil
}

// Get fetches the current user's profile. A 404 matches usecase.ErrNotFound.
func (c *Client) Get(ctx context.Context) (profile.Profile, error) {
	raw, err := c.do(ctx, http.MethodGet, profilePath, nil, map[string]string{
		"Version": profileSchemaVersion,
	})
	if err != nil {
		return profile.Profile{}, err
	}
	return c.decodeProfile(raw)
}

// Create provisions a profile with an empty payload.
func (c *Client) Create(ctx context.Context) (profile.Profile, error) {
	raw, err := c.do(ctx, http.MethodPost, profilePath, []byte("{}"), nil)
	if err != nil {
		return profile.Profile{}, err
	}
	return c.decodeProfile(raw)
}

// PostJSON posts an already encoded JSON body and discards the response.
func (c *Client) PostJSON(ctx context.Context, path string, body []byte) error {
	_, err := c.do(ctx, http.MethodPost, path, body, nil)
	return err
}

func (c *Client) decodeProfile(raw []byte) (profile.Profile, error) {
	var out profile.Profile
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return profile.Profile{}, crerr.Wrap(err, "decode profile payload")
	}
	if err := c.validate.Struct(out); err != nil {
		return profile.Profile{}, crerr.Wrap(err, "invalid profile payload")
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, headers map[string]string) ([]byte, error) {
	var raw []byte
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var execErr error
		raw, execErr = c.execute(ctx, method, path, body, headers)
		return execErr
	}, isCircuitFailure)
	if crerr.Is(err, resilience.ErrCircuitOpen) {
		c.logger.WarnContext(ctx, "studio api circuit breaker rejected request", "state", c.breaker.State(), "path", path)
		return nil, fmt.Errorf("%w: studio api is temporarily unavailable", usecase.ErrDependencyUnavailable)
	}
	return raw, err
}

func (c *Client) execute(ctx context.Context, method, path string, body []byte, headers map[string]string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, buildURL(c.baseURL, path), reader)
	if err != nil {
		return nil, crerr.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if requestID := idgen.RequestIDFromContext(ctx); requestID != "" {
		req.Header.Set("X-Request-Id", requestID)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s %s: %w", errStudioTransient, method, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: read response body: %w", errStudioTransient, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := newAPIError(method, path, resp, raw)
		if resp.StatusCode != http.StatusNotFound {
			c.logger.WarnContext(ctx, "studio api non-2xx",
				"method", method,
				"path", path,
				"status_code", resp.StatusCode,
				"request_id", apiErr.RequestID,
			)
		}
		return nil, apiErr
	}

	return raw, nil
}
