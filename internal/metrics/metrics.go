// Package metrics exposes Prometheus collectors for the archive bot service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Command outcomes.
const (
	OutcomeOK         = "ok"
	OutcomeParseError = "parse_error"
	OutcomeDenied     = "denied"
	OutcomeUnknownJob = "unknown_job"
	OutcomeNotRunning = "not_running"
	OutcomeEmpty      = "empty"
)

var (
	commandsTotal              *prometheus.CounterVec
	archiveRequestsTotal       *prometheus.CounterVec
	ircReconnectsTotal         prometheus.Counter
	ircConnected               prometheus.Gauge
	workerSlotsInUse           prometheus.Gauge
	ircSendDelaySeconds        prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		commandsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archivebot_commands_total",
				Help: "Chat commands handled, labeled by command and outcome.",
			},
			[]string{"command", "outcome"},
		)

		archiveRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archivebot_archive_requests_total",
				Help: "Accepted archive requests, labeled by URL scheme.",
			},
			[]string{"scheme"},
		)

		ircReconnectsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "archivebot_irc_reconnects_total",
				Help: "Number of times the IRC session reconnected.",
			},
		)

		ircConnected = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "archivebot_irc_connected",
				Help: "1 while the IRC session is registered, 0 otherwise.",
			},
		)

		workerSlotsInUse = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "archivebot_worker_slots_in_use",
				Help: "Number of worker slots currently held by jobs.",
			},
		)

		ircSendDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "archivebot_irc_send_delay_seconds",
				Help:    "Time outgoing lines waited on flood control.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// URLScheme buckets rawURL into "http", "https" or "other" so chat input
// cannot grow label cardinality.
func URLScheme(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "other"
	}
	switch scheme := strings.ToLower(u.Scheme); scheme {
	case "http", "https":
		return scheme
	default:
		return "other"
	}
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCommand counts one handled chat command.
func ObserveCommand(command, outcome string) {
	Init()
	commandsTotal.WithLabelValues(command, outcome).Inc()
}

// ObserveArchiveRequest counts an accepted archive request by rawURL's scheme.
func ObserveArchiveRequest(rawURL string) {
	Init()
	archiveRequestsTotal.WithLabelValues(URLScheme(rawURL)).Inc()
}

// ObserveReconnect counts one reconnect attempt.
func ObserveReconnect() {
	Init()
	ircReconnectsTotal.Inc()
}

// SetConnected records whether the IRC session is registered.
func SetConnected(connected bool) {
	Init()
	if connected {
		ircConnected.Set(1)
		return
	}
	ircConnected.Set(0)
}

// IncSlotsInUse increments the worker slot gauge.
func IncSlotsInUse() {
	Init()
	workerSlotsInUse.Inc()
}

// DecSlotsInUse decrements the worker slot gauge.
func DecSlotsInUse() {
	Init()
	workerSlotsInUse.Dec()
}

// ObserveSendDelay records flood control delay for one outgoing line.
func ObserveSendDelay(d time.Duration) {
	Init()
	ircSendDelaySeconds.Observe(d.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
