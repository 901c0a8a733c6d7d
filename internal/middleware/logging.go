package middleware

import (
	"log/slog"
	"time"

	"quill/internal/observability"

	"github.com/gofiber/fiber/v2"
)

// SlowRequestThreshold is the latency above which PerformanceLogger warns.
const SlowRequestThreshold = time.Second

// ContextMiddleware injects request ID and trace ID from Fiber locals into the request context.
// This allows these values to be picked up by the context-aware logger even in deep service layers.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		if rid, ok := c.Locals("requestid").(string); ok {
			ctx = observability.WithRequestID(ctx, rid)
		}
		if uid, ok := c.Locals("userID").(uint); ok {
			ctx = observability.WithUserID(ctx, uid)
		}
		if tid, ok := c.Locals("traceID").(string); ok {
			ctx = observability.WithTraceID(ctx, tid)
		}

		c.SetUserContext(ctx)
		return c.Next()
	}
}

// StructuredLogger returns a Fiber middleware for logging requests using slog.
// A handler error is rendered through the app's error handler here, so the
// logged status and any middleware registered outside this one see the final
// response. Server errors log at ERROR, everything else at INFO.
func StructuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()
		if err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		fields := []any{
			slog.Int("status", status),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("ip", c.IP()),
			slog.Duration("latency", time.Since(start)),
			slog.String("user_agent", c.Get(fiber.HeaderUserAgent)),
		}
		if err != nil {
			fields = append(fields, slog.String("error", err.Error()))
		}

		// InfoContext/ErrorContext let the context handler attach request and user IDs.
		if status >= fiber.StatusInternalServerError {
			observability.Logger.ErrorContext(c.UserContext(), "request failed", fields...)
		} else {
			observability.Logger.InfoContext(c.UserContext(), "request processed", fields...)
		}

		return nil
	}
}

// PerformanceLogger warns about requests slower than threshold.
func PerformanceLogger(threshold time.Duration) fiber.Handler {
	if threshold <= 0 {
		threshold = SlowRequestThreshold
	}
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if elapsed := time.Since(start); elapsed > threshold {
			observability.Logger.WarnContext(c.UserContext(), "slow request",
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
				slog.Duration("latency", elapsed),
				slog.Duration("threshold", threshold),
			)
		}
		return err
	}
}
