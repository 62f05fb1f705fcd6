package middleware

import (
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/sudo-init-do/gigmarket/internal/httpx"
)

const maxQueryLogLength = 2048

// redactedQueryKeys carry credentials; /ws takes its JWT as ?token=.
var redactedQueryKeys = []string{"token", "access_token"}

// Logger attaches a request-scoped zerolog logger under the "logger" key and
// writes one access log per request, leveled by status. Place it after
// echo's RequestID middleware so the correlation id is available.
func Logger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			l := log.With().
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("method", req.Method).
				Str("path", routePath(c)).
				Str("remote_ip", c.RealIP()).
				Str("query", truncate(redactQuery(req.URL.RawQuery), maxQueryLogLength)).
				Logger()
			c.Set(httpx.KeyLogger, &l)

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			ev := l.With().
				Str("user_id", httpx.UserID(c)).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Int64("bytes_out", c.Response().Size).
				Logger()

			switch {
			case err != nil || status >= 500:
				ev.Error().Err(err).Msg("request")
			case status >= 400:
				ev.Warn().Msg("request")
			default:
				ev.Info().Msg("request")
			}
			return nil
		}
	}
}

func routePath(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return c.Request().URL.Path
}

// redactQuery masks credential parameters. An unparseable query is masked
// whole.
func redactQuery(raw string) string {
	if raw == "" {
		return ""
	}
	q, err := url.ParseQuery(raw)
	if err != nil {
		return "[REDACTED]"
	}
	masked := false
	for _, k := range redactedQueryKeys {
		if _, ok := q[k]; ok {
			q.Set(k, "[REDACTED]")
			masked = true
		}
	}
	if !masked {
		return raw
	}
	return q.Encode()
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
