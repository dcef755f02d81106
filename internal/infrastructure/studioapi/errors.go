package studioapi

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/studio-profile/internal/usecase"
)

var errStudioTransient = crerr.New("studio api transient failure")

// APIError is a non-2xx response from the backend. Code is always the HTTP
// status, whatever the shape of the body.
type APIError struct {
	Code      int
	Message   string
	RequestID string
	Method    string
	Path      string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("studio api %s %s status=%d: %s", e.Method, e.Path, e.Code, e.Message)
}

// HTTPStatus reports the upstream status code.
func (e *APIError) HTTPStatus() int {
	return e.Code
}

// Is maps the status onto the usecase sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case usecase.ErrNotFound:
		return e.Code == http.StatusNotFound
	case usecase.ErrUnauthorized:
		return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
	case usecase.ErrDependencyUnavailable, errStudioTransient:
		return isRetryableStatus(e.Code)
	default:
		return false
	}
}

func newAPIError(method, path string, resp *http.Response, raw []byte) *APIError {
	return &APIError{
		Code:      resp.StatusCode,
		Message:   errorMessage(resp.StatusCode, raw),
		RequestID: firstNonEmpty(resp.Header.Get("X-Request-Id"), resp.Header.Get("Sb-Request-Id")),
		Method:    method,
		Path:      path,
	}
}

// errorMessage extracts a human message from the usual error body shapes:
// {"message"}, {"msg"}, {"error": "..."}, {"error": {"message"}}, or plain text.
func errorMessage(status int, raw []byte) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return http.StatusText(status)
	}

	var body map[string]any
	if err := sonic.Unmarshal(raw, &body); err != nil {
		return abbreviate(trimmed, 512)
	}

	for _, key := range []string{"message", "msg", "error_description"} {
		if value, ok := body[key].(string); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	switch value := body["error"].(type) {
	case string:
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	case map[string]any:
		if msg, ok := value["message"].(string); ok && strings.TrimSpace(msg) != "" {
			return strings.TrimSpace(msg)
		}
	}

	return http.StatusText(status)
}

func isCircuitFailure(err error) bool {
	return stderrors.Is(err, errStudioTransient)
}

func isRetryableStatus(statusCode int) bool {
	return statusCode == http.StatusRequestTimeout ||
		statusCode == http.StatusTooManyRequests ||
		statusCode >= http.StatusInternalServerError
}
