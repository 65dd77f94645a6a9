package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/labrental/instrument-marketplace-api/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/exemplar"
)

// latencyBuckets covers the auth endpoints, where argon2 dominates and
// anything above a few seconds is an outage.
var latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}

type AppMetrics struct {
	authFlows         metric.Int64Counter
	authLatency       metric.Float64Histogram
	otpEvents         metric.Int64Counter
	otpCooldown       metric.Float64Histogram
	refreshSecurity   metric.Int64Counter
	mailDeliveries    metric.Int64Counter
	accessValidations metric.Int64Counter
	csrfValidations   metric.Int64Counter
	rateLimitDecision metric.Int64Counter
	rateLimitWait     metric.Float64Histogram
	registrationStore metric.Int64Counter
	profileLookups    metric.Int64Counter
	healthResults     metric.Int64Counter
	healthLatency     metric.Float64Histogram
	dbStartup         metric.Int64Counter
	dbStartupLatency  metric.Float64Histogram
	toolRuns          metric.Int64Counter
	toolLatency       metric.Float64Histogram
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

// InitMetrics installs the global meter provider. When metrics are disabled
// the provider is a no-export one and every Record helper is a no-op.
func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}
	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))),
		sdkmetric.WithExemplarFilter(exemplar.TraceBasedFilter),
		sdkmetric.WithView(sdkmetric.NewView(
			sdkmetric.Instrument{Name: "auth.request.duration"},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: latencyBuckets}},
		)),
	)
	otel.SetMeterProvider(mp)

	m, err := newAppMetrics(mp.Meter(instrumentationName))
	if err != nil {
		return nil, err
	}
	setMetrics(m)
	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func newAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	var firstErr error
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("create counter %s: %w", name, err)
		}
		return c
	}
	seconds := func(name, desc string) metric.Float64Histogram {
		h, err := meter.Float64Histogram(name, metric.WithUnit("s"), metric.WithDescription(desc))
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("create histogram %s: %w", name, err)
		}
		return h
	}

	m := &AppMetrics{
		authFlows:         counter("auth.flow.events", "Auth flow outcomes by flow"),
		authLatency:       seconds("auth.request.duration", "Duration of auth endpoint requests"),
		otpEvents:         counter("auth.otp.events", "One-time passcode issue and verification outcomes"),
		otpCooldown:       seconds("auth.otp.cooldown_remaining", "Remaining cooldown returned to early OTP requests"),
		refreshSecurity:   counter("auth.refresh.security.events", "Refresh token rotation security outcomes"),
		mailDeliveries:    counter("mail.delivery.events", "Outbound email delivery outcomes"),
		accessValidations: counter("auth.access_token.validation.events", "Access token validation outcomes"),
		csrfValidations:   counter("security.csrf.validation.events", "CSRF double-submit validation outcomes"),
		rateLimitDecision: counter("http.rate_limit.decisions", "Rate limiter decisions"),
		rateLimitWait:     seconds("http.rate_limit.retry_after", "Retry-After handed to throttled requests"),
		registrationStore: counter("auth.registration_otp.store.events", "Registration OTP store operations"),
		profileLookups:    counter("user.profile.events", "Current user lookups"),
		healthResults:     counter("health.check.results", "Readiness dependency check results"),
		healthLatency:     seconds("health.check.duration", "Duration of readiness dependency checks"),
		dbStartup:         counter("database.startup.events", "Database startup stage outcomes"),
		dbStartupLatency:  seconds("database.startup.duration", "Database startup stage duration"),
		toolRuns:          counter("tool.command.runs", "Operator CLI command runs"),
		toolLatency:       seconds("tool.command.duration", "Operator CLI command duration"),
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return m, nil
}

func setMetrics(m *AppMetrics) {
	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()
}

// withMetrics runs fn only after InitMetrics installed the instruments.
func withMetrics(fn func(m *AppMetrics)) {
	metricsMu.RLock()
	m := appMetrics
	metricsMu.RUnlock()
	if m != nil {
		fn(m)
	}
}

// labels builds a measurement option from alternating key, value pairs.
func labels(kv ...string) metric.MeasurementOption {
	attrs := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		attrs = append(attrs, attribute.String(kv[i], kv[i+1]))
	}
	return metric.WithAttributes(attrs...)
}

func RecordAuthFlowEvent(ctx context.Context, flow, outcome string) {
	withMetrics(func(m *AppMetrics) { m.authFlows.Add(ctx, 1, labels("flow", flow, "outcome", outcome)) })
}

func RecordAuthRequestDuration(ctx context.Context, endpoint, status string, d time.Duration) {
	withMetrics(func(m *AppMetrics) { m.authLatency.Record(ctx, d.Seconds(), labels("endpoint", endpoint, "status", status)) })
}

func RecordOTPEvent(ctx context.Context, scope, outcome string) {
	withMetrics(func(m *AppMetrics) { m.otpEvents.Add(ctx, 1, labels("scope", scope, "outcome", outcome)) })
}

func RecordOTPCooldown(ctx context.Context, scope string, remaining time.Duration) {
	withMetrics(func(m *AppMetrics) { m.otpCooldown.Record(ctx, remaining.Seconds(), labels("scope", scope)) })
}

func RecordRefreshSecurityEvent(ctx context.Context, outcome string) {
	withMetrics(func(m *AppMetrics) { m.refreshSecurity.Add(ctx, 1, labels("outcome", outcome)) })
}

func RecordMailDelivery(ctx context.Context, kind, outcome string) {
	withMetrics(func(m *AppMetrics) { m.mailDeliveries.Add(ctx, 1, labels("kind", kind, "outcome", outcome)) })
}

func RecordAccessTokenValidation(ctx context.Context, outcome, source string) {
	withMetrics(func(m *AppMetrics) { m.accessValidations.Add(ctx, 1, labels("outcome", outcome, "source", source)) })
}

func RecordCSRFValidation(ctx context.Context, outcome, pathGroup string) {
	withMetrics(func(m *AppMetrics) { m.csrfValidations.Add(ctx, 1, labels("outcome", outcome, "path_group", pathGroup)) })
}

func RecordRateLimitDecision(ctx context.Context, scope, outcome, backend string) {
	withMetrics(func(m *AppMetrics) {
		m.rateLimitDecision.Add(ctx, 1, labels("scope", scope, "outcome", outcome, "backend", backend))
	})
}

func RecordRateLimitRetryAfter(ctx context.Context, scope string, retryAfter time.Duration) {
	withMetrics(func(m *AppMetrics) { m.rateLimitWait.Record(ctx, retryAfter.Seconds(), labels("scope", scope)) })
}

func RecordRegistrationStoreEvent(ctx context.Context, backend, op, outcome string) {
	withMetrics(func(m *AppMetrics) {
		m.registrationStore.Add(ctx, 1, labels("backend", backend, "op", op, "outcome", outcome))
	})
}

func RecordUserProfileEvent(ctx context.Context, outcome string) {
	withMetrics(func(m *AppMetrics) { m.profileLookups.Add(ctx, 1, labels("outcome", outcome)) })
}

func RecordHealthCheckResult(ctx context.Context, check, outcome string) {
	withMetrics(func(m *AppMetrics) { m.healthResults.Add(ctx, 1, labels("check", check, "outcome", outcome)) })
}

func RecordHealthCheckDuration(ctx context.Context, check string, d time.Duration) {
	withMetrics(func(m *AppMetrics) { m.healthLatency.Record(ctx, d.Seconds(), labels("check", check)) })
}

func RecordDatabaseStartupEvent(ctx context.Context, stage, outcome string) {
	withMetrics(func(m *AppMetrics) { m.dbStartup.Add(ctx, 1, labels("stage", stage, "outcome", outcome)) })
}

func RecordDatabaseStartupDuration(ctx context.Context, stage string, d time.Duration) {
	withMetrics(func(m *AppMetrics) { m.dbStartupLatency.Record(ctx, d.Seconds(), labels("stage", stage)) })
}

func RecordToolCommandRun(ctx context.Context, tool, command, outcome string) {
	withMetrics(func(m *AppMetrics) { m.toolRuns.Add(ctx, 1, labels("tool", tool, "command", command, "outcome", outcome)) })
}

func RecordToolCommandDuration(ctx context.Context, tool, command, outcome string, d time.Duration) {
	withMetrics(func(m *AppMetrics) {
		m.toolLatency.Record(ctx, d.Seconds(), labels("tool", tool, "command", command, "outcome", outcome))
	})
}
