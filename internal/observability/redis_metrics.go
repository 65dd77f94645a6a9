package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// knownKeyspaces bounds the keyspace label to the families this service writes.
var knownKeyspaces = map[string]bool{
	"registration_otp": true,
	"login":            true,
	"rl":               true,
}

var redisHookOnce sync.Once

// InstrumentRedisClient adds command and pool metrics to the client once per
// process.
func InstrumentRedisClient(client redis.UniversalClient, logger *slog.Logger) {
	if client == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	redisHookOnce.Do(func() {
		hook, err := newRedisMetricsHook(otel.Meter(instrumentationName), client.PoolStats)
		if err != nil {
			logger.Warn("redis metrics disabled", "error", err)
			return
		}
		client.AddHook(hook)
		logger.Info("redis metrics enabled")
	})
}

type redisMetricsHook struct {
	commands metric.Int64Counter
	latency  metric.Float64Histogram
}

func newRedisMetricsHook(meter metric.Meter, poolStats func() *redis.PoolStats) (*redisMetricsHook, error) {
	commands, err := meter.Int64Counter("redis.command.total",
		metric.WithDescription("Redis commands by keyspace and status"))
	if err != nil {
		return nil, fmt.Errorf("create redis command counter: %w", err)
	}
	latency, err := meter.Float64Histogram("redis.command.duration",
		metric.WithUnit("s"), metric.WithDescription("Redis command latency"))
	if err != nil {
		return nil, fmt.Errorf("create redis latency histogram: %w", err)
	}

	saturation, err := meter.Float64ObservableGauge("redis.pool.saturation",
		metric.WithUnit("1"), metric.WithDescription("Share of pool connections in use"))
	if err != nil {
		return nil, fmt.Errorf("create redis pool gauge: %w", err)
	}
	timeouts, err := meter.Int64ObservableCounter("redis.pool.timeouts",
		metric.WithDescription("Times a caller waited for a pool connection and gave up"))
	if err != nil {
		return nil, fmt.Errorf("create redis pool timeout counter: %w", err)
	}
	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := poolStats()
		if stats == nil {
			return nil
		}
		o.ObserveInt64(timeouts, int64(stats.Timeouts))
		if stats.TotalConns > 0 {
			used := float64(stats.TotalConns - stats.IdleConns)
			o.ObserveFloat64(saturation, min(max(used/float64(stats.TotalConns), 0), 1))
		}
		return nil
	}, saturation, timeouts)
	if err != nil {
		return nil, fmt.Errorf("register redis pool callback: %w", err)
	}
	return &redisMetricsHook{commands: commands, latency: latency}, nil
}

func (h *redisMetricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h *redisMetricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.observe(ctx, strings.ToLower(cmd.Name()), commandKeyspace(cmd), err, time.Since(start))
		return err
	}
}

func (h *redisMetricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		keyspace := "other"
		if len(cmds) > 0 {
			keyspace = commandKeyspace(cmds[0])
		}
		h.observe(ctx, "pipeline", keyspace, err, time.Since(start))
		return err
	}
}

func (h *redisMetricsHook) observe(ctx context.Context, command, keyspace string, err error, d time.Duration) {
	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, redis.Nil):
		status = "miss"
	default:
		status = "error"
	}
	opt := labels("command", command, "keyspace", keyspace, "status", status)
	h.commands.Add(ctx, 1, opt)
	h.latency.Record(ctx, d.Seconds(), opt)
}

// commandKeyspace maps "<prefix>:<family>:..." keys to family. Scripts carry
// their first key after the sha and key count.
func commandKeyspace(cmd redis.Cmder) string {
	args := cmd.Args()
	idx := 1
	switch strings.ToLower(cmd.Name()) {
	case "evalsha", "eval", "evalsha_ro", "eval_ro":
		idx = 3
	}
	if len(args) <= idx {
		return "other"
	}
	key, ok := args[idx].(string)
	if !ok {
		return "other"
	}
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 3 || !knownKeyspaces[parts[1]] {
		return "other"
	}
	return parts[1]
}
