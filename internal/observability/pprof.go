package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/studio-profile/internal/config"
	"github.com/riskibarqy/studio-profile/internal/platform/logging"
)

// DebugVars are sampled on every GET /debug/vars.
type DebugVars map[string]func() any

// StartPprofServer serves net/http/pprof and the process debug vars on a
// separate listener. It returns a nil server when disabled and fails when the
// address cannot be bound.
func StartPprofServer(cfg config.Config, logger *logging.Logger, vars DebugVars) (*http.Server, error) {
	if logger == nil {
		logger = logging.Default()
	}

	if !cfg.PprofEnabled {
		logger.Info("pprof disabled", "reason", "PPROF_ENABLED=false")
		return nil, nil
	}

	listener, err := net.Listen("tcp", cfg.PprofAddr)
	if err != nil {
		return nil, crerr.Wrapf(err, "listen pprof on %s", cfg.PprofAddr)
	}

	srv := &http.Server{
		Addr:              listener.Addr().String(),
		Handler:           newDebugMux(vars),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("pprof server starting", "addr", srv.Addr)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("pprof server failed", "error", err)
		}
	}()

	return srv, nil
}

func StopPprofServer(ctx context.Context, srv *http.Server, logger *logging.Logger) error {
	if srv == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	logger.Info("pprof server stopped")

	return nil
}

func newDebugMux(vars DebugVars) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("GET /debug/vars", debugVarsHandler(vars))
	return mux
}

func debugVarsHandler(vars DebugVars) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		snapshot := make(map[string]any, len(vars))
		for name, sample := range vars {
			snapshot[name] = sample()
		}

		w.Header().Set("Content-Type", "application/json")
		_ = sonic.ConfigStd.NewEncoder(w).Encode(snapshot)
	})
}
