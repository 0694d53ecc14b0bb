package observability

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// unmatchedRoute labels every request gin could not route, keeping arbitrary
// URLs out of the metric label set.
const unmatchedRoute = "unmatched"

// pollRoutes are hit on a timer by scrapers and orchestrators.
var pollRoutes = map[string]bool{
	"/metrics": true,
	"/health":  true,
	"/ready":   true,
}

func routeLabel(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return unmatchedRoute
}

// idleStatus reports answers that only mean no stream is up yet: /ready
// before the handshake and the /stream routes before a session or frame
// exists.
func idleStatus(route string, status int) bool {
	switch {
	case route == "/ready":
		return status == http.StatusServiceUnavailable
	case route == "/stream" || strings.HasPrefix(route, "/stream/"):
		return status == http.StatusNotFound
	}
	return false
}

func requestLevel(route string, status int) zerolog.Level {
	switch {
	case idleStatus(route, status):
		return zerolog.DebugLevel
	case status >= http.StatusInternalServerError:
		return zerolog.ErrorLevel
	case status >= http.StatusBadRequest:
		return zerolog.WarnLevel
	case pollRoutes[route]:
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// RequestLogger logs one line per monitor request. Polled routes and idle
// answers log at debug.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := routeLabel(c)
		status := c.Writer.Status()
		ev := logger.WithLevel(requestLevel(route, status)).
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Int("bytes", max(0, c.Writer.Size())).
			Dur("elapsed", time.Since(start)).
			Str("remote", c.ClientIP())
		if route == unmatchedRoute {
			ev = ev.Str("path", c.Request.URL.Path)
		}
		ev.Msg("monitor request")
	}
}

// RequestMetrics counts and times requests under the route pattern.
func RequestMetrics(server string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		RecordHTTPRequest(server, c.Request.Method, routeLabel(c), c.Writer.Status(), time.Since(start))
	}
}
