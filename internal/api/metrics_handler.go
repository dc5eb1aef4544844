package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMetricsHandler exposes gatherer in the Prometheus text format.
// When token is non-empty, scrapes must send it as a bearer token.
func NewMetricsHandler(gatherer prometheus.Gatherer, token string) http.Handler {
	handler := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
	if token == "" {
		return handler
	}

	expected := []byte(token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
			writeCodedError(w, r, ErrCodeAuthFailed, "Invalid metrics token")
			return
		}
		handler.ServeHTTP(w, r)
	})
}
