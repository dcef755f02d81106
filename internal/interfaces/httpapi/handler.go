package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/riskibarqy/studio-profile/internal/domain/profile"
	"github.com/riskibarqy/studio-profile/internal/platform/logging"
	"github.com/riskibarqy/studio-profile/internal/usecase"
)

const viewSummary = "summary"

type Handler struct {
	profileService *usecase.ProfileService
	logger         *logging.Logger
	validator      *validator.Validate
}

func NewHandler(profileService *usecase.ProfileService, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}

	return &Handler{
		profileService: profileService,
		logger:         logger,
		validator:      validator.New(),
	}
}

type profileQuery struct {
	View string `validate:"omitempty,oneof=full summary"`
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.Healthz")
	defer span.End()

	writeSuccess(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetProfile returns the cached profile, provisioning it on first use.
// ?view=summary returns the derived summary instead of the full record.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetProfile")
	defer span.End()

	query := profileQuery{View: strings.ToLower(strings.TrimSpace(r.URL.Query().Get("view")))}
	if err := h.validateRequest(ctx, query); err != nil {
		writeError(ctx, w, err)
		return
	}

	page := pageFromContext(ctx)
	if query.View == viewSummary {
		summary, err := usecase.QueryProfile(ctx, h.profileService, page, usecase.QueryOptions[profileSummaryDTO]{
			Select: toProfileSummaryDTO,
		})
		if err != nil {
			h.writeProfileError(ctx, w, err)
			return
		}
		writeSuccess(ctx, w, http.StatusOK, summary)
		return
	}

	item, err := usecase.QueryProfile(ctx, h.profileService, page, usecase.QueryOptions[profileDTO]{
		Select: toProfileDTO,
	})
	if err != nil {
		h.writeProfileError(ctx, w, err)
		return
	}
	writeSuccess(ctx, w, http.StatusOK, item)
}

// PrefetchProfile warms the cache in the background and returns immediately.
func (h *Handler) PrefetchProfile(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.PrefetchProfile")
	defer span.End()

	page := pageFromContext(ctx)
	prefetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	go func() {
		defer cancel()
		h.profileService.Prefetch(prefetchCtx, page)
	}()

	writeSuccess(ctx, w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *Handler) InvalidateProfile(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.InvalidateProfile")
	defer span.End()

	h.profileService.Invalidate(ctx)
	w.WriteHeader(http.StatusNoContent)
}

// ResetProfile drops the cached profile and supersedes any fetch in flight.
func (h *Handler) ResetProfile(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ResetProfile")
	defer span.End()

	h.profileService.Reset(ctx)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeProfileError(ctx context.Context, w http.ResponseWriter, err error) {
	if ctx.Err() != nil {
		h.logger.InfoContext(ctx, "profile request abandoned by client", "error", err)
		return
	}
	h.logger.ErrorContext(ctx, "get profile failed", "error", err)
	writeError(ctx, w, err)
}

func (h *Handler) validateRequest(ctx context.Context, payload any) error {
	if err := h.validator.StructCtx(ctx, payload); err != nil {
		return fmt.Errorf("%w: validation failed: %v", usecase.ErrInvalidInput, err)
	}

	return nil
}

type profileDTO struct {
	ID               int64   `json:"id"`
	Auth0ID          string  `json:"auth0_id"`
	GotrueID         string  `json:"gotrue_id"`
	PrimaryEmail     string  `json:"primary_email"`
	Username         string  `json:"username"`
	FirstName        string  `json:"first_name"`
	LastName         string  `json:"last_name"`
	Mobile           *string `json:"mobile"`
	IsAlphaUser      bool    `json:"is_alpha_user"`
	FreeProjectLimit int     `json:"free_project_limit"`
}

type profileSummaryDTO struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Email       string `json:"primary_email"`
}

func toProfileDTO(p profile.Profile) profileDTO {
	return profileDTO{
		ID:               p.ID,
		Auth0ID:          p.Auth0ID,
		GotrueID:         p.GotrueID,
		PrimaryEmail:     p.PrimaryEmail,
		Username:         p.Username,
		FirstName:        p.FirstName,
		LastName:         p.LastName,
		Mobile:           p.Mobile,
		IsAlphaUser:      p.IsAlphaUser,
		FreeProjectLimit: p.FreeProjectLimit,
	}
}

func toProfileSummaryDTO(p profile.Profile) profileSummaryDTO {
	return profileSummaryDTO{
		ID:          p.ID,
		Username:    p.Username,
		DisplayName: p.DisplayName(),
		Email:       p.PrimaryEmail,
	}
}
