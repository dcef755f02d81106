package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	idgen "github.com/riskibarqy/studio-profile/internal/platform/id"
	"github.com/stretchr/testify/assert"
)

type fixedGenerator string

func (g fixedGenerator) NewID() (string, error) { return string(g), nil }

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		want     string
	}{
		{name: "generated when missing", incoming: "", want: "generated-id"},
		{name: "caller id reused", incoming: "caller-id-1", want: "caller-id-1"},
		{name: "malformed caller id replaced", incoming: "bad id", want: "generated-id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			handler := RequestID(fixedGenerator("generated-id"), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = idgen.RequestIDFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/v1/profile", nil)
			if tt.incoming != "" {
				req.Header.Set("X-Request-Id", tt.incoming)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, seen)
			assert.Equal(t, tt.want, rec.Header().Get("X-Request-Id"))
		})
	}
}
