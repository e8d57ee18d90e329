package mediator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	domainerrors "chronicle/pkg/domain-errors"
	"chronicle/pkg/requestcontext"
)

// Logging logs each request with its outcome, duration and correlation id.
func Logging[Req, Res any](logger *slog.Logger, operation string) Behavior[Req, Res] {
	return func(next Handler[Req, Res]) Handler[Req, Res] {
		return func(ctx context.Context, req Req) (Res, error) {
			start := time.Now()
			res, err := next(ctx, req)

			attrs := []any{
				"operation", operation,
				"correlation_uid", requestcontext.CorrelationUID(ctx),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if err != nil {
				logger.ErrorContext(ctx, "request failed", append(attrs, "error", err)...)
			} else {
				logger.InfoContext(ctx, "request handled", attrs...)
			}
			return res, err
		}
	}
}

// Metrics observes request duration on a histogram labeled by operation and
// outcome.
func Metrics[Req, Res any](durations *prometheus.HistogramVec, operation string) Behavior[Req, Res] {
	return func(next Handler[Req, Res]) Handler[Req, Res] {
		return func(ctx context.Context, req Req) (Res, error) {
			start := time.Now()
			res, err := next(ctx, req)

			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			durations.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
			return res, err
		}
	}
}

// Recover converts a handler panic into an internal error so one bad request
// cannot take the process down.
func Recover[Req, Res any](logger *slog.Logger, operation string) Behavior[Req, Res] {
	return func(next Handler[Req, Res]) Handler[Req, Res] {
		return func(ctx context.Context, req Req) (res Res, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.ErrorContext(ctx, "request panicked",
						"operation", operation,
						"panic", fmt.Sprint(r),
						"correlation_uid", requestcontext.CorrelationUID(ctx),
					)
					err = domainerrors.New(domainerrors.CodeInternal, "internal error")
				}
			}()
			return next(ctx, req)
		}
	}
}
