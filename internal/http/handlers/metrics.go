package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler exposes the service registry in the Prometheus text format.
func (a *App) MetricsHandler() http.Handler {
	if a.Metrics == nil || a.Metrics.Registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(a.Metrics.Registry, promhttp.HandlerOpts{})
}
