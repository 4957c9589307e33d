package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "transport",
		Name:      "connect_attempts_total",
		Help:      "Connect attempts made by the supervisor",
	}, []string{"transport"})

	connectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "transport",
		Name:      "connect_failures_total",
		Help:      "Connect attempts that returned an error",
	}, []string{"transport"})

	connected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "transport",
		Name:      "connected",
		Help:      "1 while the transport is associated with an access point",
	}, []string{"transport"})

	cloudRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cloud",
		Name:      "requests_total",
		Help:      "Requests to cloud services, by service and outcome",
	}, []string{"service", "outcome"})
)

// Cloud request outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeMissing = "missing"
)

// IncConnectAttempt counts a connect attempt on transport.
func IncConnectAttempt(transport string) {
	connectAttempts.WithLabelValues(transport).Inc()
}

// IncConnectFailure counts a failed connect attempt on transport.
func IncConnectFailure(transport string) {
	connectFailures.WithLabelValues(transport).Inc()
}

// SetConnected records the association state of transport.
func SetConnected(transport string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	connected.WithLabelValues(transport).Set(v)
}

// IncCloudRequest counts one request to service with the given outcome.
func IncCloudRequest(service, outcome string) {
	cloudRequests.WithLabelValues(service, outcome).Inc()
}
