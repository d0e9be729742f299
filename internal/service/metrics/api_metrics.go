package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API counts status API outcomes that the HTTP middleware cannot see.
type API struct {
	Throttled *prometheus.CounterVec
	Errors    *prometheus.CounterVec
}

func NewAPI(reg prometheus.Registerer) *API {
	f := promauto.With(reg)
	return &API{
		Throttled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spikewatch",
			Subsystem: "api",
			Name:      "throttled_total",
			Help:      "Requests refused by the per-client limiter",
		}, []string{"endpoint"}),
		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spikewatch",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by status API endpoint",
		}, []string{"endpoint"}),
	}
}
