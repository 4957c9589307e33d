// Package exporters serves the registered metrics over HTTP.
package exporters

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smazurov/lednode/internal/logging"
)

// HTTPHandler serves every promauto-registered metric, in OpenMetrics format
// when the scraper asks for it. Gathering errors go to the metrics logger.
func HTTPHandler() http.Handler {
	errorLog := slog.NewLogLogger(logging.GetLogger("metrics").Handler(), slog.LevelError)
	return promhttp.InstrumentMetricHandler(prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			ErrorLog:          errorLog,
			EnableOpenMetrics: true,
		}))
}
