package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	subsystem = "yt_audio_server"

	jobsTotal           = "jobs_total"
	extractionsInFlight = "extractions_in_flight"

	jobStateLabel = "state"
)

var jobsTotalLabels = []string{
	jobStateLabel,
}

/**
* Metrics definition
**/
var jobsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      jobsTotal,
		Help:      "number of jobs by terminal or started state",
	},
	jobsTotalLabels,
)

var extractionsInFlightMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: subsystem,
		Name:      extractionsInFlight,
		Help:      "number of extraction subprocesses currently running",
	},
)

// IncreaseJobsTotalMetric counts one job entering the given state
func IncreaseJobsTotalMetric(state string) {
	jobsTotalMetric.With(prometheus.Labels{jobStateLabel: state}).Inc()
}

// ExtractionStarted records one more live extraction subprocess
func ExtractionStarted() {
	extractionsInFlightMetric.Inc()
}

// ExtractionFinished records one extraction subprocess exit
func ExtractionFinished() {
	extractionsInFlightMetric.Dec()
}

// Handler exposes the default prometheus registry
func Handler() http.Handler {
	return promhttp.Handler()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsTotalMetric)
	prometheus.MustRegister(extractionsInFlightMetric)
}
