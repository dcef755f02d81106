package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/riskibarqy/studio-profile/internal/config"
	"github.com/riskibarqy/studio-profile/internal/domain/profile"
	"github.com/riskibarqy/studio-profile/internal/domain/telemetry"
	"github.com/riskibarqy/studio-profile/internal/infrastructure/studioapi"
	telemetrysender "github.com/riskibarqy/studio-profile/internal/infrastructure/telemetry"
	"github.com/riskibarqy/studio-profile/internal/interfaces/httpapi"
	"github.com/riskibarqy/studio-profile/internal/platform/cache"
	"github.com/riskibarqy/studio-profile/internal/platform/logging"
	"github.com/riskibarqy/studio-profile/internal/usecase"
)

// App holds the wired service graph and the resources that need draining on
// shutdown.
type App struct {
	Server   *http.Server
	Profiles *usecase.ProfileService

	sender *telemetrysender.Sender
	store  *cache.Store
	logger *logging.Logger
}

func New(cfg config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.HTTPAddr == "" {
		return nil, fmt.Errorf("http server addr cannot be empty")
	}

	httpClient, err := studioapi.NewHTTPClient(cfg.APITimeout, cfg.APIHTTP2)
	if err != nil {
		return nil, fmt.Errorf("build api http client: %w", err)
	}

	apiClient, err := studioapi.NewClient(studioapi.ClientConfig{
		HTTPClient:     httpClient,
		BaseURL:        cfg.APIURL,
		AccessToken:    cfg.APIAccessToken,
		Logger:         logger,
		CircuitBreaker: cfg.APICircuit,
	})
	if err != nil {
		return nil, fmt.Errorf("build api client: %w", err)
	}

	sender, err := telemetrysender.NewSender(telemetrysender.SenderConfig{
		Poster:    apiClient,
		Enabled:   cfg.TelemetryEnabled,
		QueueSize: cfg.TelemetryQueueSize,
		Timeout:   cfg.TelemetryTimeout,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build telemetry sender: %w", err)
	}

	store, err := cache.NewStore(cache.StoreConfig{
		RefreshWorkers: cfg.CacheRefreshWorkers,
		Logger:         logger,
	})
	if err != nil {
		_ = sender.Close(context.Background())
		return nil, fmt.Errorf("build query cache: %w", err)
	}

	profiles := usecase.NewProfileService(apiClient, sender, store, cfg.ProfileStaleTime, logger)
	handler := httpapi.NewHandler(profiles, logger)
	router := httpapi.NewRouter(handler, logger, cfg.CORSAllowedOrigins)

	return &App{
		Server: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           router,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
		},
		Profiles: profiles,
		sender:   sender,
		store:    store,
		logger:   logger,
	}, nil
}

// Prefetch warms the profile cache with an empty page context.
func (a *App) Prefetch(ctx context.Context) {
	a.Profiles.Prefetch(ctx, telemetry.Page{})
}

// DebugVars exposes queue and cache counters on the debug listener.
func (a *App) DebugVars() map[string]func() any {
	return map[string]func() any{
		"telemetry_sent":    func() any { return a.sender.Sent() },
		"telemetry_dropped": func() any { return a.sender.Dropped() },
		"profile_cached": func() any {
			_, ok := a.store.Peek(profile.CacheKey, 0)
			return ok
		},
	}
}

// Close drains queued telemetry and stops the cache refresh workers.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	if err := a.sender.Close(ctx); err != nil {
		firstErr = err
		a.logger.WarnContext(ctx, "telemetry queue not drained", "error", err, "dropped", a.sender.Dropped())
	}

	timeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := a.store.Close(timeout); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}
