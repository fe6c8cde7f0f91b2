package http

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// RequestLogger logs one structured line per request through logger.
// Probe traffic is logged at debug so it does not drown the rest.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
			}

			switch {
			case v.Error != nil:
				logger.Error("request failed", append(attrs, "error", v.Error)...)
			case isProbe(c.Path()):
				logger.Debug("request", attrs...)
			default:
				logger.Info("request", attrs...)
			}
			return nil
		},
	})
}

func isProbe(path string) bool {
	return path == "/health" || path == "/ready"
}
