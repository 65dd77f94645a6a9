package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	RegistrationStoreMemory = "memory"
	RegistrationStoreRedis  = "redis"

	MailDriverLog  = "log"
	MailDriverSMTP = "smtp"
)

type Config struct {
	Env          string
	HTTPPort     string
	AppInstances int

	DatabaseURL string

	JWTIssuer          string
	JWTAudience        string
	JWTAccessSecret    string
	JWTRefreshSecret   string
	JWTAccessTTL       time.Duration
	JWTRefreshTTL      time.Duration
	RefreshTokenPepper string
	CookieDomain       string
	CookieSecure       bool
	CookieSameSite     string
	CORSAllowedOrigins []string

	AuthOTPTTL                time.Duration
	AuthOTPResendCooldown     time.Duration
	AuthOTPMaxAttempts        int
	AuthOTPDigits             int
	AuthEmailVerifyTokenTTL   time.Duration
	AuthPasswordResetTokenTTL time.Duration
	AuthEmailVerifyBaseURL    string
	AuthPasswordResetBaseURL  string
	RegistrationOTPStore      string

	BootstrapAdminEmail    string
	BootstrapAdminPassword string

	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	RedisKeyPrefix        string
	RateLimitRedisEnabled bool
	AuthRateLimitPerMin   int
	OTPRateLimitPerMin    int
	APIRateLimitPerMin    int

	LoginFreeAttempts  int
	LoginBackoffBase   time.Duration
	LoginBackoffMax    time.Duration
	LoginFailureWindow time.Duration

	MailDriver   string
	MailFrom     string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPTimeout  time.Duration

	ReadinessCheckTimeout        time.Duration
	ServerStartGracePeriod       time.Duration
	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsExportInterval time.Duration
	OTELTraceSamplingRatio    float64
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELLogLevel              string
}

func Load() (*Config, error) {
	env := getEnv("APP_ENV", "development")
	cfg := &Config{
		Env:                      env,
		HTTPPort:                 getEnv("HTTP_PORT", "8080"),
		AppInstances:             getEnvInt("APP_INSTANCES", 1),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		JWTIssuer:                getEnv("JWT_ISSUER", "labrental-api"),
		JWTAudience:              getEnv("JWT_AUDIENCE", "labrental-web"),
		JWTAccessSecret:          os.Getenv("JWT_ACCESS_SECRET"),
		JWTRefreshSecret:         os.Getenv("JWT_REFRESH_SECRET"),
		RefreshTokenPepper:       os.Getenv("REFRESH_TOKEN_PEPPER"),
		CookieDomain:             os.Getenv("COOKIE_DOMAIN"),
		CookieSecure:             getEnvBool("COOKIE_SECURE", true),
		CookieSameSite:           strings.ToLower(getEnv("COOKIE_SAMESITE", "lax")),
		CORSAllowedOrigins:       splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		AuthOTPMaxAttempts:       getEnvInt("AUTH_OTP_MAX_ATTEMPTS", 3),
		AuthOTPDigits:            getEnvInt("AUTH_OTP_DIGITS", 6),
		AuthEmailVerifyBaseURL:   getEnv("AUTH_EMAIL_VERIFY_BASE_URL", "http://localhost:3000/verify-email"),
		AuthPasswordResetBaseURL: getEnv("AUTH_PASSWORD_RESET_BASE_URL", "http://localhost:3000/reset-password"),
		RegistrationOTPStore:     strings.ToLower(getEnv("REGISTRATION_OTP_STORE", RegistrationStoreMemory)),
		BootstrapAdminEmail:      strings.TrimSpace(strings.ToLower(os.Getenv("BOOTSTRAP_ADMIN_EMAIL"))),
		BootstrapAdminPassword:   os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),
		RedisAddr:                os.Getenv("REDIS_ADDR"),
		RedisPassword:            os.Getenv("REDIS_PASSWORD"),
		RedisDB:                  getEnvInt("REDIS_DB", 0),
		RedisKeyPrefix:           getEnv("REDIS_KEY_PREFIX", "labrental"),
		RateLimitRedisEnabled:    getEnvBool("RATE_LIMIT_REDIS_ENABLED", false),
		AuthRateLimitPerMin:      getEnvInt("AUTH_RATE_LIMIT_PER_MIN", 30),
		OTPRateLimitPerMin:       getEnvInt("OTP_RATE_LIMIT_PER_MIN", 10),
		APIRateLimitPerMin:       getEnvInt("API_RATE_LIMIT_PER_MIN", 120),
		LoginFreeAttempts:        getEnvInt("LOGIN_FREE_ATTEMPTS", 5),
		MailDriver:               strings.ToLower(getEnv("MAIL_DRIVER", MailDriverLog)),
		MailFrom:                 getEnv("MAIL_FROM", "no-reply@labrental.local"),
		SMTPHost:                 os.Getenv("SMTP_HOST"),
		SMTPPort:                 getEnvInt("SMTP_PORT", 587),
		SMTPUsername:             os.Getenv("SMTP_USERNAME"),
		SMTPPassword:             os.Getenv("SMTP_PASSWORD"),

		OTELServiceName:          getEnv("OTEL_SERVICE_NAME", "labrental-api"),
		OTELEnvironment:          getEnv("OTEL_ENVIRONMENT", env),
		OTELExporterOTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure: getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELTraceSamplingRatio:   getEnvFloat("OTEL_TRACE_SAMPLING_RATIO", 1.0),
		OTELMetricsEnabled:       getEnvBool("OTEL_METRICS_ENABLED", true),
		OTELTracingEnabled:       getEnvBool("OTEL_TRACING_ENABLED", true),
		OTELLogsEnabled:          getEnvBool("OTEL_LOGS_ENABLED", false),
		OTELLogLevel:             strings.ToLower(getEnv("OTEL_LOG_LEVEL", "info")),
	}

	durations := []struct {
		key  string
		def  string
		dest *time.Duration
	}{
		{"JWT_ACCESS_TTL", "15m", &cfg.JWTAccessTTL},
		{"JWT_REFRESH_TTL", "168h", &cfg.JWTRefreshTTL},
		{"AUTH_OTP_TTL", "10m", &cfg.AuthOTPTTL},
		{"AUTH_OTP_RESEND_COOLDOWN", "60s", &cfg.AuthOTPResendCooldown},
		{"AUTH_EMAIL_VERIFY_TOKEN_TTL", "15m", &cfg.AuthEmailVerifyTokenTTL},
		{"AUTH_PASSWORD_RESET_TOKEN_TTL", "60m", &cfg.AuthPasswordResetTokenTTL},
		{"LOGIN_BACKOFF_BASE", "1s", &cfg.LoginBackoffBase},
		{"LOGIN_BACKOFF_MAX", "5m", &cfg.LoginBackoffMax},
		{"LOGIN_FAILURE_WINDOW", "15m", &cfg.LoginFailureWindow},
		{"SMTP_TIMEOUT", "10s", &cfg.SMTPTimeout},
		{"READINESS_CHECK_TIMEOUT", "1s", &cfg.ReadinessCheckTimeout},
		{"SERVER_START_GRACE_PERIOD", "2s", &cfg.ServerStartGracePeriod},
		{"SHUTDOWN_TIMEOUT", "20s", &cfg.ShutdownTimeout},
		{"SHUTDOWN_HTTP_DRAIN_TIMEOUT", "10s", &cfg.ShutdownHTTPDrainTimeout},
		{"SHUTDOWN_OBSERVABILITY_TIMEOUT", "8s", &cfg.ShutdownObservabilityTimeout},
		{"OTEL_METRICS_EXPORT_INTERVAL", "10s", &cfg.OTELMetricsExportInterval},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getEnv(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dest = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if len(c.JWTAccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 chars")
	}
	if len(c.JWTRefreshSecret) < 32 {
		errs = append(errs, "JWT_REFRESH_SECRET must be at least 32 chars")
	}
	if c.JWTAccessSecret == c.JWTRefreshSecret {
		errs = append(errs, "JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if len(c.RefreshTokenPepper) < 16 {
		errs = append(errs, "REFRESH_TOKEN_PEPPER must be at least 16 chars")
	}
	if c.JWTAccessTTL <= 0 || c.JWTAccessTTL > time.Hour {
		errs = append(errs, "JWT_ACCESS_TTL must be between 1s and 1h")
	}
	if c.JWTRefreshTTL <= 0 || c.JWTRefreshTTL > (30*24*time.Hour) {
		errs = append(errs, "JWT_REFRESH_TTL must be between 1s and 30d")
	}
	if c.AuthOTPTTL <= 0 || c.AuthOTPTTL > time.Hour {
		errs = append(errs, "AUTH_OTP_TTL must be between 1s and 1h")
	}
	if c.AuthOTPResendCooldown < 0 || c.AuthOTPResendCooldown >= c.AuthOTPTTL {
		errs = append(errs, "AUTH_OTP_RESEND_COOLDOWN must be >= 0 and shorter than AUTH_OTP_TTL")
	}
	if c.AuthOTPMaxAttempts < 1 || c.AuthOTPMaxAttempts > 10 {
		errs = append(errs, "AUTH_OTP_MAX_ATTEMPTS must be between 1 and 10")
	}
	if c.AuthOTPDigits < 4 || c.AuthOTPDigits > 10 {
		errs = append(errs, "AUTH_OTP_DIGITS must be between 4 and 10")
	}
	if c.AuthEmailVerifyTokenTTL <= 0 {
		errs = append(errs, "AUTH_EMAIL_VERIFY_TOKEN_TTL must be > 0")
	}
	if c.AuthPasswordResetTokenTTL <= 0 {
		errs = append(errs, "AUTH_PASSWORD_RESET_TOKEN_TTL must be > 0")
	}
	if !isAbsoluteURL(c.AuthEmailVerifyBaseURL) {
		errs = append(errs, "AUTH_EMAIL_VERIFY_BASE_URL must be an absolute URL")
	}
	if !isAbsoluteURL(c.AuthPasswordResetBaseURL) {
		errs = append(errs, "AUTH_PASSWORD_RESET_BASE_URL must be an absolute URL")
	}
	switch c.RegistrationOTPStore {
	case RegistrationStoreMemory:
	case RegistrationStoreRedis:
		if c.RedisAddr == "" {
			errs = append(errs, "REDIS_ADDR is required when REGISTRATION_OTP_STORE=redis")
		}
	default:
		errs = append(errs, "REGISTRATION_OTP_STORE must be one of memory, redis")
	}
	if c.RateLimitRedisEnabled && c.RedisAddr == "" {
		errs = append(errs, "REDIS_ADDR is required when RATE_LIMIT_REDIS_ENABLED=true")
	}
	if c.AuthRateLimitPerMin <= 0 {
		errs = append(errs, "AUTH_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.OTPRateLimitPerMin <= 0 {
		errs = append(errs, "OTP_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.APIRateLimitPerMin <= 0 {
		errs = append(errs, "API_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.LoginFreeAttempts < 0 {
		errs = append(errs, "LOGIN_FREE_ATTEMPTS must be >= 0")
	}
	if c.LoginBackoffBase <= 0 || c.LoginBackoffMax < c.LoginBackoffBase {
		errs = append(errs, "LOGIN_BACKOFF_BASE must be > 0 and <= LOGIN_BACKOFF_MAX")
	}
	if c.LoginFailureWindow <= 0 {
		errs = append(errs, "LOGIN_FAILURE_WINDOW must be > 0")
	}
	switch c.MailDriver {
	case MailDriverLog:
	case MailDriverSMTP:
		if c.SMTPHost == "" {
			errs = append(errs, "SMTP_HOST is required when MAIL_DRIVER=smtp")
		}
		if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
			errs = append(errs, "SMTP_PORT must be a valid port")
		}
		if c.MailFrom == "" {
			errs = append(errs, "MAIL_FROM is required when MAIL_DRIVER=smtp")
		}
	default:
		errs = append(errs, "MAIL_DRIVER must be one of log, smtp")
	}
	if c.BootstrapAdminEmail != "" && len(c.BootstrapAdminPassword) < 12 {
		errs = append(errs, "BOOTSTRAP_ADMIN_PASSWORD must be at least 12 chars when BOOTSTRAP_ADMIN_EMAIL is set")
	}
	if c.ReadinessCheckTimeout <= 0 {
		errs = append(errs, "READINESS_CHECK_TIMEOUT must be > 0")
	}
	if c.ServerStartGracePeriod < 0 {
		errs = append(errs, "SERVER_START_GRACE_PERIOD must be >= 0")
	}
	if c.ShutdownTimeout <= 0 || c.ShutdownHTTPDrainTimeout <= 0 || c.ShutdownObservabilityTimeout <= 0 {
		errs = append(errs, "SHUTDOWN_* timeouts must be > 0")
	}
	if (c.OTELMetricsEnabled || c.OTELTracingEnabled || c.OTELLogsEnabled) && c.OTELExporterOTLPEndpoint == "" {
		errs = append(errs, "OTEL_EXPORTER_OTLP_ENDPOINT is required when OTel is enabled")
	}
	if c.OTELTraceSamplingRatio < 0 || c.OTELTraceSamplingRatio > 1 {
		errs = append(errs, "OTEL_TRACE_SAMPLING_RATIO must be between 0 and 1")
	}
	if c.OTELMetricsExportInterval <= 0 {
		errs = append(errs, "OTEL_METRICS_EXPORT_INTERVAL must be > 0")
	}
	if !isValidLogLevel(c.OTELLogLevel) {
		errs = append(errs, "OTEL_LOG_LEVEL must be one of debug, info, warn, error")
	}
	errs = append(errs, c.profileErrors()...)
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// profileErrors holds the rules that only apply outside local environments.
func (c *Config) profileErrors() []string {
	if c.IsLocalLike() {
		return nil
	}
	var errs []string
	if !c.CookieSecure {
		errs = append(errs, "COOKIE_SECURE must be true outside local environments")
	}
	if c.CookieSameSite == "none" && !c.CookieSecure {
		errs = append(errs, "COOKIE_SAMESITE=none requires COOKIE_SECURE=true")
	}
	if c.MailDriver != MailDriverSMTP {
		errs = append(errs, "MAIL_DRIVER must be smtp outside local environments")
	}
	if c.AppInstances > 1 && c.RegistrationOTPStore != RegistrationStoreRedis {
		errs = append(errs, "REGISTRATION_OTP_STORE must be redis when APP_INSTANCES > 1")
	}
	if c.AppInstances > 1 && !c.RateLimitRedisEnabled {
		errs = append(errs, "RATE_LIMIT_REDIS_ENABLED must be true when APP_INSTANCES > 1")
	}
	return errs
}

func (c *Config) IsLocalLike() bool {
	return isLocalLikeEnv(c.Env)
}

// RedisRequired reports whether any component needs a redis client.
func (c *Config) RedisRequired() bool {
	return c.RegistrationOTPStore == RegistrationStoreRedis || c.RateLimitRedisEnabled
}

func isLocalLikeEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "development", "dev", "local", "test":
		return true
	default:
		return false
	}
}

func isAbsoluteURL(v string) bool {
	u, err := url.Parse(v)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func isValidLogLevel(v string) bool {
	switch strings.ToLower(v) {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trim := strings.TrimSpace(p)
		if trim != "" {
			out = append(out, trim)
		}
	}
	return out
}
