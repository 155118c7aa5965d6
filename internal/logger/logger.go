// Package logger is the process-wide structured logger. It writes JSON to
// stdout, or exports over OTLP when OTEL_ENABLED=true, and counts every
// warning and error even when their output is sampled.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelFatal = slog.Level(12)
)

const defaultServiceName = "hedgebot"

var (
	Logger       *slog.Logger
	level        = new(slog.LevelVar)
	sampleRate   atomic.Int32
	shutdownFunc func(context.Context) error // nil unless OTEL is enabled
)

// Counters are incremented regardless of sampling.
var (
	TotalErrors   atomic.Int64
	TotalWarnings atomic.Int64
)

// options are read from the environment once, at startup.
type options struct {
	level       slog.Level
	sampleRate  int32
	otel        bool
	serviceName string
}

func optionsFromEnv(getenv func(string) string) options {
	opts := options{level: LevelInfo, sampleRate: 1, serviceName: defaultServiceName}

	if v := getenv("LOG_LEVEL"); v != "" {
		if l, err := ParseLevel(v); err == nil {
			opts.level = l
		}
	}
	// ERROR_SAMPLE_RATE=100 writes 1% of warnings and errors
	if v := getenv("ERROR_SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(v); err == nil && rate > 0 {
			opts.sampleRate = int32(rate)
		}
	}
	opts.otel = strings.EqualFold(getenv("OTEL_ENABLED"), "true")
	if v := getenv("OTEL_SERVICE_NAME"); v != "" {
		opts.serviceName = v
	}
	return opts
}

func init() {
	configure(optionsFromEnv(os.Getenv))
}

func configure(opts options) {
	level.Set(opts.level)
	sampleRate.Store(opts.sampleRate)

	if opts.otel {
		shutdown, err := setupOTEL(context.Background(), opts.serviceName)
		if err == nil {
			shutdownFunc = shutdown
			return
		}
		fmt.Fprintf(os.Stderr, "Failed to setup OTEL logging, falling back to JSON: %v\n", err)
	}
	use(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func use(h slog.Handler) {
	Logger = slog.New(h)
	slog.SetDefault(Logger)
}

// setupOTEL bridges slog to an OTLP gRPC log exporter.
func setupOTEL(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	exporter, err := otlploggrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)
	use(&levelHandler{
		level:   level,
		handler: otelslog.NewHandler(serviceName, otelslog.WithLoggerProvider(provider)),
	})
	return provider.Shutdown, nil
}

// levelHandler filters an OTEL handler, which has no level of its own.
type levelHandler struct {
	level   slog.Leveler
	handler slog.Handler
}

func (h *levelHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithGroup(name)}
}

// Shutdown flushes the OTEL pipeline. It is a no-op in JSON mode.
func Shutdown(ctx context.Context) error {
	if shutdownFunc != nil {
		return shutdownFunc(ctx)
	}
	return nil
}

func SetLevel(l slog.Level) {
	level.Set(l)
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

func shouldSample() bool {
	rate := sampleRate.Load()
	if rate <= 1 {
		return true
	}
	return rand.Intn(int(rate)) == 0
}

func warn(l *slog.Logger, msg string, args []any) {
	TotalWarnings.Add(1)
	if shouldSample() {
		l.Warn(msg, args...)
	}
}

func logError(l *slog.Logger, msg string, args []any) {
	TotalErrors.Add(1)
	if shouldSample() {
		l.Error(msg, args...)
	}
}

func Debug(msg string, args ...any) { Logger.Debug(msg, args...) }
func Info(msg string, args ...any)  { Logger.Info(msg, args...) }
func Warn(msg string, args ...any)  { warn(Logger, msg, args) }
func Error(msg string, args ...any) { logError(Logger, msg, args) }

// Fatal logs, flushes OTEL and exits.
func Fatal(msg string, args ...any) {
	Logger.Log(context.Background(), LevelFatal, msg, args...)
	if shutdownFunc != nil {
		_ = shutdownFunc(context.Background())
	}
	os.Exit(1)
}

// Scoped carries fixed attributes. Its warnings and errors are counted
// and sampled like the package functions.
type Scoped struct {
	l *slog.Logger
}

// ForEntity scopes to one order or route, keyed as "order 1" or "route 1.1".
func ForEntity(key string) Scoped {
	return Scoped{l: Logger.With("entity", key)}
}

// ForAction scopes to one action run by a rule.
func ForAction(entity, ruleSet, rule, action string) Scoped {
	return Scoped{l: Logger.With("entity", entity, "ruleset", ruleSet, "rule", rule, "action", action)}
}

func (s Scoped) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s Scoped) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s Scoped) Warn(msg string, args ...any)  { warn(s.l, msg, args) }
func (s Scoped) Error(msg string, args ...any) { logError(s.l, msg, args) }
