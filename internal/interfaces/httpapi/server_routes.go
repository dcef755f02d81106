package httpapi

import "net/http"

func registerSystemRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("GET /healthz", handler.Healthz)
}

func registerProfileRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("GET /v1/profile", handler.GetProfile)
	mux.HandleFunc("POST /v1/profile/prefetch", handler.PrefetchProfile)
	mux.HandleFunc("POST /v1/profile/invalidate", handler.InvalidateProfile)
	mux.HandleFunc("POST /v1/profile/reset", handler.ResetProfile)
}
