package httpapi

import (
	"net/http"

	idgen "github.com/riskibarqy/studio-profile/internal/platform/id"
	"github.com/riskibarqy/studio-profile/internal/platform/logging"
)

func NewRouter(handler *Handler, logger *logging.Logger, corsAllowedOrigins []string) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}

	mux := http.NewServeMux()
	registerSystemRoutes(mux, handler)
	registerProfileRoutes(mux, handler)

	return RequestTracing(
		RequestID(idgen.NewRandomGenerator(),
			RequestLogging(logger,
				CORS(corsAllowedOrigins,
					recoverPanic(logger, PageContext(mux)),
				),
			),
		),
	)
}
