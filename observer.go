package callcache

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Observer receives events for cache operations.
// It is called from Cache helpers after each operation completes.
type Observer interface {
	OnCacheOp(ctx context.Context, op string, key string, hit bool, err error, dur time.Duration, driver Driver)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, op string, key string, hit bool, err error, dur time.Duration, driver Driver)

// OnCacheOp implements Observer.
func (f ObserverFunc) OnCacheOp(ctx context.Context, op string, key string, hit bool, err error, dur time.Duration, driver Driver) {
	if f == nil {
		return
	}
	f(ctx, op, key, hit, err, dur, driver)
}

// NewLogObserver logs each operation at debug level, or error level when it failed.
func NewLogObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return ObserverFunc(func(ctx context.Context, op string, key string, hit bool, err error, dur time.Duration, driver Driver) {
		attrs := []slog.Attr{
			slog.String("op", op),
			slog.String("key", key),
			slog.Bool("hit", hit),
			slog.Duration("dur", dur),
			slog.String("driver", string(driver)),
		}
		if err != nil {
			attrs = append(attrs, slog.String("err", err.Error()))
			logger.LogAttrs(ctx, slog.LevelError, "cache op failed", attrs...)
			return
		}
		logger.LogAttrs(ctx, slog.LevelDebug, "cache op", attrs...)
	})
}

// NewTracingObserver records one span per operation, backdated to when the
// operation started.
func NewTracingObserver(tracer trace.Tracer) Observer {
	return ObserverFunc(func(ctx context.Context, op string, key string, hit bool, err error, dur time.Duration, driver Driver) {
		end := time.Now()
		_, span := tracer.Start(ctx, "callcache."+op,
			trace.WithTimestamp(end.Add(-dur)),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("cache.key", key),
				attribute.Bool("cache.hit", hit),
				attribute.String("cache.driver", string(driver)),
			),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End(trace.WithTimestamp(end))
	})
}
