package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/riskibarqy/studio-profile/internal/platform/logging"
	"github.com/riskibarqy/studio-profile/internal/platform/resilience"
)

// Config stores runtime configuration for the service.
type Config struct {
	AppEnv             string
	ServiceName        string
	ServiceVersion     string
	HTTPAddr           string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	CORSAllowedOrigins []string
	LogLevel           logging.Level

	APIURL         string
	APIAccessToken string
	APITimeout     time.Duration
	APIHTTP2       bool
	APICircuit     resilience.CircuitBreakerConfig

	ProfileStaleTime       time.Duration
	ProfilePrefetchOnStart bool
	CacheRefreshWorkers    int

	TelemetryEnabled   bool
	TelemetryQueueSize int
	TelemetryTimeout   time.Duration

	PprofEnabled               bool
	PprofAddr                  string
	UptraceEnabled             bool
	UptraceDSN                 string
	UptraceLogsEnabled         bool
	BetterStackEnabled         bool
	BetterStackEndpoint        string
	BetterStackToken           string
	BetterStackTimeout         time.Duration
	BetterStackMinLevel        logging.Level
	PyroscopeEnabled           bool
	PyroscopeServerAddress     string
	PyroscopeAppName           string
	PyroscopeAuthToken         string
	PyroscopeBasicAuthUser     string
	PyroscopeBasicAuthPassword string
	PyroscopeUploadRate        time.Duration
}

func Load() (Config, error) {
	if err := loadDotEnv(getEnv("ENV_FILE", ".env")); err != nil {
		return Config{}, err
	}

	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:             appEnv,
		ServiceName:        strings.TrimSpace(getEnv("SERVICE_NAME", "studio-profile")),
		ServiceVersion:     strings.TrimSpace(getEnv("SERVICE_VERSION", "dev")),
		HTTPAddr:           strings.TrimSpace(getEnv("HTTP_ADDR", "127.0.0.1:8787")),
		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		APIAccessToken:     strings.TrimSpace(getEnv("API_ACCESS_TOKEN", "")),
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		return Config{}, fmt.Errorf("CORS_ALLOWED_ORIGINS cannot be empty")
	}

	if cfg.LogLevel, err = parseLogLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return Config{}, fmt.Errorf("parse LOG_LEVEL: %w", err)
	}
	if cfg.ReadTimeout, err = getEnvAsPositiveDuration("HTTP_READ_TIMEOUT", "10s"); err != nil {
		return Config{}, err
	}
	if cfg.WriteTimeout, err = getEnvAsPositiveDuration("HTTP_WRITE_TIMEOUT", "15s"); err != nil {
		return Config{}, err
	}

	if err := loadAPI(&cfg); err != nil {
		return Config{}, err
	}
	if err := loadCache(&cfg); err != nil {
		return Config{}, err
	}
	if err := loadTelemetry(&cfg); err != nil {
		return Config{}, err
	}
	if err := loadObservability(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// loadDotEnv fills unset variables from path. A missing file is not an error.
func loadDotEnv(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func loadAPI(cfg *Config) error {
	apiURL := strings.TrimRight(strings.TrimSpace(getEnv("API_URL", "")), "/")
	if apiURL == "" {
		return fmt.Errorf("API_URL is required")
	}
	parsed, err := url.Parse(apiURL)
	if err != nil {
		return fmt.Errorf("parse API_URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("API_URL must use http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("API_URL has empty host")
	}
	cfg.APIURL = apiURL

	if cfg.APITimeout, err = getEnvAsPositiveDuration("API_TIMEOUT", "10s"); err != nil {
		return err
	}
	if cfg.APIHTTP2, err = getEnvAsBool("API_HTTP2_ENABLED", true); err != nil {
		return err
	}

	circuitEnabled, err := getEnvAsBool("API_CIRCUIT_ENABLED", true)
	if err != nil {
		return err
	}
	failureCount, err := getEnvAsInt("API_CIRCUIT_FAILURE_COUNT", 5)
	if err != nil {
		return fmt.Errorf("parse API_CIRCUIT_FAILURE_COUNT: %w", err)
	}
	if failureCount < 1 {
		return fmt.Errorf("API_CIRCUIT_FAILURE_COUNT must be >= 1")
	}
	openTimeout, err := getEnvAsPositiveDuration("API_CIRCUIT_OPEN_TIMEOUT", "15s")
	if err != nil {
		return err
	}
	halfOpenMaxReq, err := getEnvAsInt("API_CIRCUIT_HALF_OPEN_MAX_REQ", 1)
	if err != nil {
		return fmt.Errorf("parse API_CIRCUIT_HALF_OPEN_MAX_REQ: %w", err)
	}
	if halfOpenMaxReq < 1 {
		return fmt.Errorf("API_CIRCUIT_HALF_OPEN_MAX_REQ must be >= 1")
	}
	cfg.APICircuit = resilience.CircuitBreakerConfig{
		Enabled:          circuitEnabled,
		FailureThreshold: failureCount,
		OpenTimeout:      openTimeout,
		HalfOpenMaxReq:   halfOpenMaxReq,
	}

	return nil
}

func loadCache(cfg *Config) error {
	var err error
	if cfg.ProfileStaleTime, err = getEnvAsPositiveDuration("PROFILE_STALE_TIME", "30m"); err != nil {
		return err
	}
	if cfg.ProfilePrefetchOnStart, err = getEnvAsBool("PROFILE_PREFETCH_ON_START", true); err != nil {
		return err
	}
	if cfg.CacheRefreshWorkers, err = getEnvAsInt("CACHE_REFRESH_WORKERS", 4); err != nil {
		return fmt.Errorf("parse CACHE_REFRESH_WORKERS: %w", err)
	}
	if cfg.CacheRefreshWorkers < 1 {
		return fmt.Errorf("CACHE_REFRESH_WORKERS must be >= 1")
	}
	return nil
}

func loadTelemetry(cfg *Config) error {
	var err error
	if cfg.TelemetryEnabled, err = getEnvAsBool("TELEMETRY_ENABLED", true); err != nil {
		return err
	}
	if cfg.TelemetryQueueSize, err = getEnvAsInt("TELEMETRY_QUEUE_SIZE", 256); err != nil {
		return fmt.Errorf("parse TELEMETRY_QUEUE_SIZE: %w", err)
	}
	if cfg.TelemetryQueueSize < 1 {
		return fmt.Errorf("TELEMETRY_QUEUE_SIZE must be >= 1")
	}
	if cfg.TelemetryTimeout, err = getEnvAsPositiveDuration("TELEMETRY_TIMEOUT", "5s"); err != nil {
		return err
	}
	return nil
}

func loadObservability(cfg *Config) error {
	var err error

	if cfg.UptraceEnabled, err = getEnvAsBool("UPTRACE_ENABLED", false); err != nil {
		return err
	}
	cfg.UptraceDSN = strings.TrimSpace(getEnv("UPTRACE_DSN", ""))
	if cfg.UptraceDSN == "" {
		cfg.UptraceDSN = parseUptraceDSNFromOTLPHeaders(getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""))
	}
	if cfg.UptraceEnabled && cfg.UptraceDSN == "" {
		return fmt.Errorf("UPTRACE_DSN is required when UPTRACE_ENABLED=true")
	}
	if cfg.UptraceLogsEnabled, err = getEnvAsBool("UPTRACE_LOGS_ENABLED", true); err != nil {
		return err
	}

	if cfg.BetterStackEnabled, err = getEnvAsBool("BETTERSTACK_ENABLED", false); err != nil {
		return err
	}
	cfg.BetterStackEndpoint = strings.TrimSpace(getEnv("BETTERSTACK_ENDPOINT", ""))
	if cfg.BetterStackEnabled && cfg.BetterStackEndpoint == "" {
		return fmt.Errorf("BETTERSTACK_ENDPOINT is required when BETTERSTACK_ENABLED=true")
	}
	cfg.BetterStackToken = strings.TrimSpace(getEnv("BETTERSTACK_TOKEN", ""))
	if cfg.BetterStackTimeout, err = getEnvAsPositiveDuration("BETTERSTACK_TIMEOUT", "3s"); err != nil {
		return err
	}
	if cfg.BetterStackMinLevel, err = parseLogLevel(getEnv("BETTERSTACK_MIN_LEVEL", "error")); err != nil {
		return fmt.Errorf("parse BETTERSTACK_MIN_LEVEL: %w", err)
	}

	if cfg.PprofEnabled, err = getEnvAsBool("PPROF_ENABLED", false); err != nil {
		return err
	}
	cfg.PprofAddr = strings.TrimSpace(getEnv("PPROF_ADDR", "127.0.0.1:6060"))

	if cfg.PyroscopeEnabled, err = getEnvAsBool("PYROSCOPE_ENABLED", false); err != nil {
		return err
	}
	cfg.PyroscopeServerAddress = strings.TrimSpace(getEnv("PYROSCOPE_SERVER_ADDRESS", ""))
	if cfg.PyroscopeEnabled && cfg.PyroscopeServerAddress == "" {
		return fmt.Errorf("PYROSCOPE_SERVER_ADDRESS is required when PYROSCOPE_ENABLED=true")
	}
	cfg.PyroscopeAppName = strings.TrimSpace(getEnv("PYROSCOPE_APP_NAME", cfg.ServiceName))
	if cfg.PyroscopeEnabled && cfg.PyroscopeAppName == "" {
		return fmt.Errorf("PYROSCOPE_APP_NAME cannot be empty when PYROSCOPE_ENABLED=true")
	}
	cfg.PyroscopeAuthToken = strings.TrimSpace(getEnv("PYROSCOPE_AUTH_TOKEN", ""))
	cfg.PyroscopeBasicAuthUser = strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_USER", ""))
	cfg.PyroscopeBasicAuthPassword = strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_PASSWORD", ""))
	if cfg.PyroscopeUploadRate, err = getEnvAsPositiveDuration("PYROSCOPE_UPLOAD_RATE", "15s"); err != nil {
		return err
	}

	return nil
}

func parseLogLevel(v string) (logging.Level, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	if value == "warning" {
		value = "warn"
	}
	return logging.ParseLevel(value)
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func getEnvAsBool(key string, fallback bool) (bool, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return out, nil
}

func getEnvAsPositiveDuration(key, fallback string) (time.Duration, error) {
	out, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if out <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}
	return out, nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		out = append(out, item)
	}

	return out
}

func parseUptraceDSNFromOTLPHeaders(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	items := strings.Split(raw, ",")
	for _, item := range items {
		parts := strings.SplitN(strings.TrimSpace(item), "=", 2)
		if len(parts) != 2 {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(parts[0]), "uptrace-dsn") {
			value := strings.TrimSpace(parts[1])
			return strings.Trim(value, "\"'")
		}
	}

	return ""
}

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

func parseAppEnv(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case EnvDev, EnvStage, EnvProd:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s", v, EnvDev, EnvStage, EnvProd)
	}
}
