package di

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/labrental/instrument-marketplace-api/internal/app"
	"github.com/labrental/instrument-marketplace-api/internal/config"
	"github.com/labrental/instrument-marketplace-api/internal/database"
	"github.com/labrental/instrument-marketplace-api/internal/domain"
	"github.com/labrental/instrument-marketplace-api/internal/health"
	"github.com/labrental/instrument-marketplace-api/internal/http/handler"
	"github.com/labrental/instrument-marketplace-api/internal/http/middleware"
	"github.com/labrental/instrument-marketplace-api/internal/http/router"
	"github.com/labrental/instrument-marketplace-api/internal/mailer"
	"github.com/labrental/instrument-marketplace-api/internal/observability"
	"github.com/labrental/instrument-marketplace-api/internal/repository"
	"github.com/labrental/instrument-marketplace-api/internal/security"
	"github.com/labrental/instrument-marketplace-api/internal/service"
)

var ConfigSet = wire.NewSet(config.Load)

var ObservabilitySet = wire.NewSet(
	provideObservabilityRuntime,
	provideAppLogger,
)

var RuntimeInfraSet = wire.NewSet(
	provideRuntimeDB,
	provideRedisClient,
	provideReadinessCheckRunner,
)

var RepositorySet = wire.NewSet(
	repository.NewUserRepository,
)

var SecuritySet = wire.NewSet(
	provideJWTManager,
	provideCookieManager,
	provideFingerprinter,
)

var ServiceSet = wire.NewSet(
	provideTokenService,
	provideOTPManager,
	provideRegistrationOTPStore,
	provideMailer,
	provideLoginThrottle,
	service.NewAuthService,
	wire.Bind(new(service.AuthServiceInterface), new(*service.AuthService)),
)

var HTTPSet = wire.NewSet(
	provideAuthHandler,
	handler.NewUserHandler,
	provideGlobalRateLimiter,
	provideAuthRateLimiter,
	provideOTPRateLimiter,
	provideAccountOTPRateLimiter,
	provideRouterDependencies,
	router.NewRouter,
	provideHTTPServer,
)

var AppSet = wire.NewSet(provideApp)

// AdminSet backs the operator CLI. It opens the database without migrating.
var AdminSet = wire.NewSet(
	provideOpenDB,
	repository.NewUserRepository,
	provideJWTManager,
	provideFingerprinter,
	provideTokenService,
	service.NewAccountAdminService,
)

type MigrationRunner struct {
	cfg *config.Config
	db  *gorm.DB
}

func NewMigrationRunner(cfg *config.Config, db *gorm.DB) *MigrationRunner {
	return &MigrationRunner{cfg: cfg, db: db}
}

// Run applies the schema and then seeds the bootstrap admin.
func (m *MigrationRunner) Run(ctx context.Context) (*database.SeedReport, error) {
	if err := database.MigrateContext(ctx, m.db); err != nil {
		return nil, err
	}
	return database.SeedSync(ctx, m.db, m.cfg.BootstrapAdminEmail, m.cfg.BootstrapAdminPassword)
}

func (m *MigrationRunner) Status(ctx context.Context) ([]database.MigrationStatus, error) {
	return database.Status(ctx, m.db)
}

func (m *MigrationRunner) Plan(ctx context.Context) ([]string, error) {
	return database.Plan(ctx, m.db)
}

func (m *MigrationRunner) Seed(ctx context.Context) (*database.SeedReport, error) {
	return database.SeedSync(ctx, m.db, m.cfg.BootstrapAdminEmail, m.cfg.BootstrapAdminPassword)
}

// SeedPlan reports what Seed would change without writing.
func (m *MigrationRunner) SeedPlan(ctx context.Context) ([]string, error) {
	email := m.cfg.BootstrapAdminEmail
	if email == "" {
		return []string{"bootstrap admin: not configured"}, nil
	}
	u, err := repository.NewUserRepository(m.db).FindByEmail(ctx, email)
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		return []string{"would create admin account: " + email}, nil
	case err != nil:
		return nil, err
	case u.Role == domain.RoleAdmin && u.EmailVerified && u.IsActive():
		return []string{"bootstrap admin already present: " + email}, nil
	default:
		return []string{fmt.Sprintf("would promote existing %s account to admin: %s", u.Role, email)}, nil
	}
}

func (m *MigrationRunner) Close() error {
	return closeDB(m.db)
}

// AccountAdmin pairs the operator service with the connection it owns.
type AccountAdmin struct {
	*service.AccountAdminService
	db *gorm.DB
}

func NewAccountAdmin(svc *service.AccountAdminService, db *gorm.DB) *AccountAdmin {
	return &AccountAdmin{AccountAdminService: svc, db: db}
}

func (a *AccountAdmin) Close() error {
	return closeDB(a.db)
}

func closeDB(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func provideObservabilityRuntime(cfg *config.Config) (*observability.Runtime, error) {
	bootstrapLogger := observability.NewBootstrapLogger(cfg)
	return observability.InitRuntime(context.Background(), cfg, bootstrapLogger)
}

func provideAppLogger(cfg *config.Config, runtime *observability.Runtime) *slog.Logger {
	return observability.InitLogger(cfg, runtime.LoggerProvider)
}

func provideOpenDB(cfg *config.Config) (*gorm.DB, error) {
	return database.Open(cfg)
}

func provideRuntimeDB(cfg *config.Config, logger *slog.Logger) (*gorm.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	report, err := database.SeedSync(context.Background(), db, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword)
	if err != nil {
		return nil, fmt.Errorf("seed bootstrap admin: %w", err)
	}
	if !report.Noop {
		logger.Info("bootstrap admin ensured", "email", report.AdminEmail, "created", report.CreatedAdmin, "promoted", report.PromotedUser)
	}
	return db, nil
}

// provideRedisClient returns nil unless a redis-backed component is enabled.
func provideRedisClient(cfg *config.Config, logger *slog.Logger) redis.UniversalClient {
	if !cfg.RedisRequired() {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	observability.InstrumentRedisClient(client, logger)
	return client
}

func provideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessSecret, cfg.JWTRefreshSecret)
}

func provideCookieManager(cfg *config.Config) *security.CookieManager {
	mgr := security.NewCookieManager(cfg.CookieDomain, cfg.CookieSecure, cfg.CookieSameSite)
	if cfg.JWTAccessTTL > 0 {
		mgr.AccessTTL = cfg.JWTAccessTTL
	}
	return mgr
}

func provideFingerprinter(cfg *config.Config) *security.Fingerprinter {
	return security.NewFingerprinter(cfg.RefreshTokenPepper)
}

func provideTokenService(cfg *config.Config, jwt *security.JWTManager, users repository.UserRepository, fp *security.Fingerprinter) *service.TokenService {
	return service.NewTokenService(jwt, users, fp, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
}

func provideOTPManager(cfg *config.Config, fp *security.Fingerprinter) *service.OTPManager {
	return service.NewOTPManager(
		service.OTPPolicy{
			TTL:         cfg.AuthOTPTTL,
			Cooldown:    cfg.AuthOTPResendCooldown,
			MaxAttempts: cfg.AuthOTPMaxAttempts,
			Digits:      cfg.AuthOTPDigits,
		},
		service.LinkPolicy{
			EmailVerificationTTL: cfg.AuthEmailVerifyTokenTTL,
			PasswordResetTTL:     cfg.AuthPasswordResetTokenTTL,
		},
		fp,
	)
}

func provideRegistrationOTPStore(cfg *config.Config, client redis.UniversalClient, fp *security.Fingerprinter) service.RegistrationOTPStore {
	if cfg.RegistrationOTPStore == config.RegistrationStoreRedis && client != nil {
		return service.NewRedisRegistrationOTPStore(client, cfg.RedisKeyPrefix, fp)
	}
	return service.NewInMemoryRegistrationOTPStore()
}

// provideLoginThrottle shares failure counts through redis when the rate
// limiters do, so backoff holds across instances.
func provideLoginThrottle(cfg *config.Config, client redis.UniversalClient) service.LoginThrottle {
	policy := service.BackoffPolicy{
		FreeAttempts: cfg.LoginFreeAttempts,
		Base:         cfg.LoginBackoffBase,
		Max:          cfg.LoginBackoffMax,
		Window:       cfg.LoginFailureWindow,
	}
	if cfg.RateLimitRedisEnabled && client != nil {
		return service.NewRedisLoginThrottle(client, cfg.RedisKeyPrefix+":login", policy)
	}
	return service.NewInMemoryLoginThrottle(policy)
}

func provideMailer(cfg *config.Config, logger *slog.Logger) mailer.Mailer {
	if cfg.MailDriver == config.MailDriverSMTP {
		return mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
			Timeout:  cfg.SMTPTimeout,
		}, logger)
	}
	return mailer.NewLogMailer(logger)
}

func provideAuthHandler(authSvc service.AuthServiceInterface, cookieMgr *security.CookieManager, cfg *config.Config) *handler.AuthHandler {
	return handler.NewAuthHandler(authSvc, cookieMgr, cfg.JWTRefreshTTL)
}

// buildLimiter picks the redis window when enabled so every instance shares
// one counter, and the in-process window otherwise.
func buildLimiter(cfg *config.Config, client redis.UniversalClient, scope string, limit int, mode middleware.FailureMode, key middleware.KeyFunc) func(http.Handler) http.Handler {
	var backend middleware.Limiter
	if cfg.RateLimitRedisEnabled && client != nil {
		backend = middleware.NewRedisFixedWindowLimiter(client, cfg.RedisKeyPrefix+":rl:"+scope)
	} else {
		backend = middleware.NewLocalFixedWindowLimiter()
	}
	return middleware.NewDistributedRateLimiterWithKey(backend, limit, time.Minute, mode, scope, key).Middleware()
}

func provideGlobalRateLimiter(cfg *config.Config, client redis.UniversalClient) router.GlobalRateLimiterFunc {
	return buildLimiter(cfg, client, "api", cfg.APIRateLimitPerMin, middleware.FailOpen, nil)
}

func provideAuthRateLimiter(cfg *config.Config, client redis.UniversalClient) router.AuthRateLimiterFunc {
	return buildLimiter(cfg, client, "auth", cfg.AuthRateLimitPerMin, middleware.FailClosed, nil)
}

func provideOTPRateLimiter(cfg *config.Config, client redis.UniversalClient) router.OTPRateLimiterFunc {
	return buildLimiter(cfg, client, "otp", cfg.OTPRateLimitPerMin, middleware.FailClosed, nil)
}

func provideAccountOTPRateLimiter(cfg *config.Config, client redis.UniversalClient, tokens *service.TokenService) router.AccountOTPRateLimiterFunc {
	return buildLimiter(cfg, client, "account_otp", cfg.OTPRateLimitPerMin, middleware.FailClosed, middleware.SubjectKeyFunc(tokens))
}

func provideRouterDependencies(
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	tokens *service.TokenService,
	globalRateLimiter router.GlobalRateLimiterFunc,
	authRateLimiter router.AuthRateLimiterFunc,
	otpRateLimiter router.OTPRateLimiterFunc,
	accountOTPLimiter router.AccountOTPRateLimiterFunc,
	readiness *health.CheckRunner,
	cfg *config.Config,
) router.Dependencies {
	dep := router.Dependencies{
		AuthHandler:       authHandler,
		UserHandler:       userHandler,
		CORSOrigins:       cfg.CORSAllowedOrigins,
		AuthRateLimitRPM:  cfg.AuthRateLimitPerMin,
		OTPRateLimitRPM:   cfg.OTPRateLimitPerMin,
		APIRateLimitRPM:   cfg.APIRateLimitPerMin,
		GlobalRateLimiter: globalRateLimiter,
		AuthRateLimiter:   authRateLimiter,
		OTPRateLimiter:    otpRateLimiter,
		AccountOTPLimiter: accountOTPLimiter,
		Readiness:         readiness,
		EnableOTelHTTP:    cfg.OTELMetricsEnabled || cfg.OTELTracingEnabled,
	}
	if tokens != nil {
		dep.AccessTokens = tokens
	}
	return dep
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func provideReadinessCheckRunner(cfg *config.Config, db *gorm.DB, redisClient redis.UniversalClient) *health.CheckRunner {
	checkers := make([]health.Checker, 0, 2)
	if c := health.NewDBChecker(db); c != nil {
		checkers = append(checkers, c)
	}
	if redisClient != nil {
		if c := health.NewRedisChecker(redisClient); c != nil {
			checkers = append(checkers, c)
		}
	}
	return health.NewCheckRunner(cfg.ReadinessCheckTimeout, cfg.ServerStartGracePeriod, checkers...)
}

func provideApp(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	db *gorm.DB,
	redisClient redis.UniversalClient,
	readiness *health.CheckRunner,
) *app.App {
	return app.New(cfg, logger, server, runtime, db, redisClient, readiness)
}
