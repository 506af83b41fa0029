package metrics

import "github.com/prometheus/client_golang/prometheus"

// SessionStats provides the metrics collector access to session state.
type SessionStats interface {
	Len() int
	InFlight() int
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	stats SessionStats

	activeSessions *prometheus.Desc
	inFlight       *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// stats may be nil (metrics will report 0).
func NewCollector(stats SessionStats) *Collector {
	return &Collector{
		stats: stats,
		activeSessions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sessions_active"),
			"Current number of live review sessions.",
			nil, nil,
		),
		inFlight: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "consultations_in_flight"),
			"Sessions with a consultation currently being processed.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeSessions
	ch <- c.inFlight
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	var sessions, inFlight float64
	if c.stats != nil {
		sessions = float64(c.stats.Len())
		inFlight = float64(c.stats.InFlight())
	}
	ch <- prometheus.MustNewConstMetric(c.activeSessions, prometheus.GaugeValue, sessions)
	ch <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, inFlight)
}
