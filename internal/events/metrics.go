package events

import "github.com/prometheus/client_golang/prometheus"

var (
	subscribersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "calendar_subscribers",
		Help: "Number of live calendar stream subscribers.",
	})
	publishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "calendar_events_published_total",
		Help: "Calendar events fanned out, by type.",
	}, []string{"type"})
)

func init() {
	prometheus.MustRegister(subscribersGauge, publishedTotal)
}
