package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// routePatterns lists the API routes with dynamic segments. Paths are mapped
// onto these before being used as a metric label.
var routePatterns = [][]string{
	split("/pandits/{id}"),
	split("/pandits/{id}/reviews"),
	split("/pandits/{id}/services"),
	split("/pandit/services/{id}"),
	split("/user/bookings/{id}/cancel"),
	split("/user/bookings/{id}/review"),
	split("/pandit/bookings/{id}/confirm"),
	split("/pandit/bookings/{id}/complete"),
	split("/pandit/bookings/{id}/review"),
	split("/admin/pandits/{id}"),
	split("/admin/pandits/{id}/approve"),
	split("/admin/pandits/{id}/reject"),
}

// staticRoutes are matched before patterns so /admin/pandits/pending is not
// reported as /admin/pandits/{id}.
var staticRoutes = map[string]bool{
	"/":                      true,
	"/health":                true,
	"/ready":                 true,
	"/metrics":               true,
	"/user/profile":          true,
	"/user/location":         true,
	"/user/services":         true,
	"/user/services/search":  true,
	"/user/pandits/search":   true,
	"/user/bookings":         true,
	"/pandit/location":       true,
	"/pandit/services":       true,
	"/pandit/bookings":       true,
	"/admin/pandits":         true,
	"/admin/pandits/pending": true,
	"/admin/stats":           true,
	"/admin/audit":           true,
}

func split(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

// normalizePath converts paths with dynamic segments to route patterns to prevent
// cardinality explosion in metrics, e.g. /admin/pandits/123/approve becomes
// /admin/pandits/{id}/approve. Unknown paths collapse to "other".
func normalizePath(path string) string {
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	if staticRoutes[path] {
		return path
	}

	parts := split(path)
	for _, pattern := range routePatterns {
		if matchPattern(pattern, parts) {
			return "/" + strings.Join(pattern, "/")
		}
	}
	return "other"
}

func matchPattern(pattern, parts []string) bool {
	if len(pattern) != len(parts) {
		return false
	}
	for i, seg := range pattern {
		if seg == "{id}" {
			if parts[i] == "" {
				return false
			}
			continue
		}
		if seg != parts[i] {
			return false
		}
	}
	return true
}

// metricsResponseWriter wraps http.ResponseWriter to capture status code and response size.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

// WriteHeader captures the status code before writing it.
func (mrw *metricsResponseWriter) WriteHeader(code int) {
	if mrw.wroteHeader {
		return
	}
	mrw.statusCode = code
	mrw.wroteHeader = true
	mrw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size and writes the data.
func (mrw *metricsResponseWriter) Write(b []byte) (int, error) {
	n, err := mrw.ResponseWriter.Write(b)
	mrw.size += int64(n)
	return n, err
}

// Unwrap returns the underlying writer.
func (mrw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return mrw.ResponseWriter
}

// HTTPMetrics is a middleware that records HTTP request metrics.
// It captures duration, request/response sizes, and request counts.
// Probe endpoints (/health, /ready) are excluded.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/ready" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			mrw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			requestSize := int64(0)
			if r.ContentLength > 0 {
				requestSize = r.ContentLength
			}

			next.ServeHTTP(mrw, r)

			metrics.ObserveHTTPRequest(
				r.Method,
				normalizePath(r.URL.Path),
				strconv.Itoa(mrw.statusCode),
				time.Since(start).Seconds(),
				requestSize,
				mrw.size,
			)
		})
	}
}
