package studioapi

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	crerr "github.com/cockroachdb/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"github.com/riskibarqy/studio-profile/internal/platform/logging"
	"github.com/riskibarqy/studio-profile/internal/platform/resilience"
	"golang.org/x/net/http2"
)

// NewHTTPClient returns a traced client for the backend. With enableHTTP2 the
// transport negotiates h2 over TLS.
func NewHTTPClient(timeout time.Duration, enableHTTP2 bool) (*http.Client, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	if enableHTTP2 {
		if err := http2.ConfigureTransport(base); err != nil {
			return nil, crerr.Wrap(err, "configure http2 transport")
		}
	}

	return &http.Client{
		Timeout: timeout,
		Transport: otelhttp.NewTransport(base,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return "studioapi " + r.Method + " " + r.URL.Path
			}),
		),
	}, nil
}

func breakerLogger(logger *logging.Logger) resilience.StateChangeFunc {
	return func(from, to resilience.CircuitState) {
		if to == resilience.CircuitStateOpen {
			logger.Warn("studio api circuit breaker opened", "from", from)
			return
		}
		logger.Info("studio api circuit breaker state changed", "from", from, "to", to)
	}
}

func validateHTTPBaseURL(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "", crerr.New("value is empty")
	}

	parsed, err := url.Parse(candidate)
	if err != nil {
		return "", crerr.Wrapf(err, "parse %q", candidate)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", crerr.Newf("%q uses unsupported scheme=%q; expected http or https", candidate, parsed.Scheme)
	}
	if strings.TrimSpace(parsed.Host) == "" {
		return "", crerr.Newf("%q has empty host", candidate)
	}

	return strings.TrimRight(candidate, "/"), nil
}

func buildURL(baseURL, path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return baseURL
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return baseURL + path
}

func abbreviate(value string, max int) string {
	if max <= 0 || len(value) <= max {
		return value
	}
	return value[:max] + "...(truncated)"
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if v := strings.TrimSpace(value); v != "" {
			return v
		}
	}
	return ""
}
