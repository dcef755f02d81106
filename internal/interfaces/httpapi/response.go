package httpapi

import (
	"context"
	"errors"
	"net/http"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/studio-profile/internal/usecase"
)

const (
	googleAPIVersion = "2.0"
	errorDomain      = "studio-profile"
)

type googleResponseEnvelope struct {
	APIVersion string           `json:"apiVersion"`
	Data       any              `json:"data,omitempty"`
	Error      *googleErrorBody `json:"error,omitempty"`
}

type googleErrorBody struct {
	Code         int               `json:"code"`
	Message      string            `json:"message"`
	Status       string            `json:"status"`
	UpstreamCode int               `json:"upstreamCode,omitempty"`
	Errors       []googleErrorItem `json:"errors,omitempty"`
}

type googleErrorItem struct {
	Domain  string `json:"domain"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type mappedError struct {
	HTTPStatus int
	Reason     string
	Status     string
}

// upstreamStatus is implemented by errors that carry the backend's status.
type upstreamStatus interface {
	HTTPStatus() int
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(payload)
}

func writeSuccess(ctx context.Context, w http.ResponseWriter, status int, data any) {
	writeJSON(ctx, w, status, googleResponseEnvelope{
		APIVersion: googleAPIVersion,
		Data:       data,
	})
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	ctx, span := startSpan(ctx, "httpapi.writeError")
	defer span.End()

	mapped := mapError(err)
	body := &googleErrorBody{
		Code:    mapped.HTTPStatus,
		Message: err.Error(),
		Status:  mapped.Status,
		Errors: []googleErrorItem{
			{
				Domain:  errorDomain,
				Reason:  mapped.Reason,
				Message: err.Error(),
			},
		},
	}
	var upstream upstreamStatus
	if errors.As(err, &upstream) {
		body.UpstreamCode = upstream.HTTPStatus()
	}

	writeJSON(ctx, w, mapped.HTTPStatus, googleResponseEnvelope{
		APIVersion: googleAPIVersion,
		Error:      body,
	})
}

func writeInternalError(ctx context.Context, w http.ResponseWriter) {
	const msg = "internal server error"

	writeJSON(ctx, w, http.StatusInternalServerError, googleResponseEnvelope{
		APIVersion: googleAPIVersion,
		Error: &googleErrorBody{
			Code:    http.StatusInternalServerError,
			Message: msg,
			Status:  "INTERNAL",
			Errors: []googleErrorItem{
				{
					Domain:  errorDomain,
					Reason:  "internalError",
					Message: msg,
				},
			},
		},
	})
}

func mapError(err error) mappedError {
	switch {
	case errors.Is(err, usecase.ErrInvalidInput):
		return mappedError{
			HTTPStatus: http.StatusBadRequest,
			Reason:     "invalidInput",
			Status:     "INVALID_ARGUMENT",
		}
	case errors.Is(err, usecase.ErrNotFound), errors.Is(err, usecase.ErrQueryDisabled):
		return mappedError{
			HTTPStatus: http.StatusNotFound,
			Reason:     "notFound",
			Status:     "NOT_FOUND",
		}
	case errors.Is(err, usecase.ErrUnauthorized):
		return mappedError{
			HTTPStatus: http.StatusUnauthorized,
			Reason:     "unauthorized",
			Status:     "UNAUTHENTICATED",
		}
	case errors.Is(err, usecase.ErrDependencyUnavailable):
		return mappedError{
			HTTPStatus: http.StatusServiceUnavailable,
			Reason:     "dependencyUnavailable",
			Status:     "UNAVAILABLE",
		}
	}

	var upstream upstreamStatus
	if errors.As(err, &upstream) {
		return mappedError{
			HTTPStatus: http.StatusBadGateway,
			Reason:     "upstreamError",
			Status:     "UNKNOWN",
		}
	}

	return mappedError{
		HTTPStatus: http.StatusInternalServerError,
		Reason:     "internalError",
		Status:     "INTERNAL",
	}
}
