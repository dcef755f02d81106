package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/riskibarqy/studio-profile/internal/domain/telemetry"
)

type contextKey string

const pageContextKey contextKey = "telemetry_page"

const (
	headerPageLocation     = "X-Page-Location"
	headerPageTitle        = "X-Page-Title"
	headerScreenResolution = "X-Screen-Resolution"
)

func withPage(ctx context.Context, page telemetry.Page) context.Context {
	return context.WithValue(ctx, pageContextKey, page)
}

func pageFromContext(ctx context.Context) telemetry.Page {
	page, _ := ctx.Value(pageContextKey).(telemetry.Page)
	return page
}

// PageContext resolves the caller's navigation context from request headers
// and stores it for the handlers.
func PageContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(withPage(r.Context(), resolvePage(r))))
	})
}

func resolvePage(r *http.Request) telemetry.Page {
	return telemetry.Page{
		Route: telemetry.Route{
			Location: firstHeader(r.Header.Get(headerPageLocation), r.Header.Get("Origin")),
			Referrer: firstHeader(r.Header.Get("Referer")),
			Title:    firstHeader(r.Header.Get(headerPageTitle)),
		},
		Props: telemetry.Properties{
			ScreenResolution: normalizeResolution(r.Header.Get(headerScreenResolution)),
			Language:         primaryLanguage(r.Header.Get("Accept-Language")),
		},
	}
}

func firstHeader(candidates ...string) string {
	for _, candidate := range candidates {
		if value := strings.TrimSpace(candidate); value != "" {
			return value
		}
	}
	return ""
}

// primaryLanguage returns the first tag of an Accept-Language header,
// e.g. "en-GB" for "en-GB,en;q=0.9".
func primaryLanguage(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	if idx := strings.IndexByte(value, ','); idx >= 0 {
		value = value[:idx]
	}
	if idx := strings.IndexByte(value, ';'); idx >= 0 {
		value = value[:idx]
	}
	value = strings.TrimSpace(value)
	if value == "*" {
		return ""
	}
	return value
}

func normalizeResolution(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	width, height, ok := strings.Cut(value, "x")
	if !ok || !isDigits(width) || !isDigits(height) {
		return ""
	}
	return width + "x" + height
}

func isDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
