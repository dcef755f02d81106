package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/studio-profile/internal/domain/profile"
	"github.com/riskibarqy/studio-profile/internal/domain/telemetry"
	profilemock "github.com/riskibarqy/studio-profile/internal/mocks/domain/profile"
	telemetrymock "github.com/riskibarqy/studio-profile/internal/mocks/domain/telemetry"
	"github.com/riskibarqy/studio-profile/internal/platform/cache"
	"github.com/riskibarqy/studio-profile/internal/platform/logging"
	"github.com/riskibarqy/studio-profile/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type notFoundError struct{}

func (notFoundError) Error() string        { return "profile not found" }
func (notFoundError) Is(target error) bool { return target == usecase.ErrNotFound }

var storedProfile = profile.Profile{
	ID:               9,
	Auth0ID:          "auth0|9",
	GotrueID:         "2b3f8f7e-0000-4000-8000-000000000009",
	PrimaryEmail:     "linus@example.com",
	Username:         "linus",
	FirstName:        "Linus",
	LastName:         "Pauling",
	FreeProjectLimit: 2,
}

func newTestRouter(t *testing.T, gateway profile.Gateway, sender telemetry.Sender) http.Handler {
	t.Helper()

	store, err := cache.NewStore(cache.StoreConfig{RefreshWorkers: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(time.Second) })

	service := usecase.NewProfileService(gateway, sender, store, 0, logging.NewNop())
	return NewRouter(NewHandler(service, logging.NewNop()), logging.NewNop(), []string{"*"})
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandler_Healthz(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, profilemock.NewGateway(t), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_GetProfile_ReturnsFullRecordFromCache(t *testing.T) {
	t.Parallel()

	gateway := profilemock.NewGateway(t)
	gateway.On("Get", mock.Anything).Return(storedProfile, nil).Once()
	router := newTestRouter(t, gateway, nil)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/profile", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		data, _ := decodeEnvelope(t, rec)["data"].(map[string]any)
		assert.Equal(t, "linus@example.com", data["primary_email"])
		assert.Contains(t, data, "mobile")
		assert.Nil(t, data["mobile"])
	}
}

func TestHandler_GetProfile_SummaryView(t *testing.T) {
	t.Parallel()

	gateway := profilemock.NewGateway(t)
	gateway.On("Get", mock.Anything).Return(storedProfile, nil).Once()
	router := newTestRouter(t, gateway, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/profile?view=summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	data, _ := decodeEnvelope(t, rec)["data"].(map[string]any)
	assert.Equal(t, "Linus Pauling", data["display_name"])
	assert.NotContains(t, data, "auth0_id")
}

func TestHandler_GetProfile_InvalidView(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, profilemock.NewGateway(t), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/profile?view=everything", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_GetProfile_ProvisionsWithPageContext(t *testing.T) {
	t.Parallel()

	gateway := profilemock.NewGateway(t)
	sender := telemetrymock.NewSender(t)
	gateway.On("Get", mock.Anything).Return(profile.Profile{}, notFoundError{}).Once()
	gateway.On("Create", mock.Anything).Return(storedProfile, nil).Once()

	wantPage := telemetry.Page{
		Route: telemetry.Route{
			Location: "https://studio.example.com/project/abc",
			Referrer: "https://studio.example.com/sign-in",
			Title:    "Project | Studio",
		},
		Props: telemetry.Properties{ScreenResolution: "2560x1440", Language: "de-DE"},
	}
	sender.On("Send", mock.Anything, telemetry.SignUp(), wantPage).Return().Once()

	router := newTestRouter(t, gateway, sender)
	req := httptest.NewRequest(http.MethodGet, "/v1/profile", nil)
	req.Header.Set("X-Page-Location", "https://studio.example.com/project/abc")
	req.Header.Set("Referer", "https://studio.example.com/sign-in")
	req.Header.Set("X-Page-Title", "Project | Studio")
	req.Header.Set("X-Screen-Resolution", "2560X1440")
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9,en;q=0.8")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data, _ := decodeEnvelope(t, rec)["data"].(map[string]any)
	assert.Equal(t, float64(9), data["id"])
}

func TestHandler_GetProfile_UnexpectedErrorIsInternal(t *testing.T) {
	t.Parallel()

	gateway := profilemock.NewGateway(t)
	gateway.On("Get", mock.Anything).Return(profile.Profile{}, errors.New("decode profile payload")).Once()
	router := newTestRouter(t, gateway, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/profile", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	gateway.AssertNotCalled(t, "Create", mock.Anything)
}

func TestHandler_PrefetchThenInvalidate(t *testing.T) {
	t.Parallel()

	gateway := profilemock.NewGateway(t)
	fetched := make(chan struct{}, 2)
	gateway.On("Get", mock.Anything).
		Run(func(mock.Arguments) { fetched <- struct{}{} }).
		Return(storedProfile, nil).
		Twice()
	router := newTestRouter(t, gateway, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/profile/prefetch", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case <-fetched:
	case <-time.After(time.Second):
		t.Fatalf("prefetch did not reach the gateway")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/profile/invalidate", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	// The stale value is served and revalidated in the background.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/profile", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case <-fetched:
	case <-time.After(time.Second):
		t.Fatalf("invalidated profile was not refetched")
	}
}

func TestHandler_ResetDropsCachedProfile(t *testing.T) {
	t.Parallel()

	gateway := profilemock.NewGateway(t)
	gateway.On("Get", mock.Anything).Return(storedProfile, nil).Twice()
	router := newTestRouter(t, gateway, nil)

	for _, step := range []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/v1/profile", http.StatusOK},
		{http.MethodPost, "/v1/profile/reset", http.StatusNoContent},
		{http.MethodGet, "/v1/profile", http.StatusOK},
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(step.method, step.path, nil).WithContext(context.Background()))
		require.Equal(t, step.want, rec.Code, "%s %s", step.method, step.path)
	}
}

func TestResolvePage(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/v1/profile", nil)
	req.Header.Set("Origin", "https://studio.example.com")
	req.Header.Set("Accept-Language", "*")
	req.Header.Set("X-Screen-Resolution", "wide")

	page := resolvePage(req)
	assert.Equal(t, "https://studio.example.com", page.Route.Location)
	assert.Empty(t, page.Props.Language)
	assert.Empty(t, page.Props.ScreenResolution)
}

func TestPrimaryLanguage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "en-GB", primaryLanguage("en-GB,en;q=0.9"))
	assert.Equal(t, "fr", primaryLanguage(" fr;q=0.8 "))
	assert.Equal(t, "", primaryLanguage(""))
}
