package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ReadingsIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleet_readings_ingested_total",
		Help: "Readings accepted, persisted and fused.",
	})
	ValidationFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleet_validation_failures_total",
		Help: "Readings rejected before persistence.",
	})
	PersistFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleet_persist_failures_total",
		Help: "Reading or verdict writes that failed.",
	})
	DegradedInferences = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleet_degraded_inferences_total",
		Help: "Inference calls answered with the neutral default.",
	})
	MaintenanceCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleet_maintenance_records_created_total",
		Help: "Maintenance records opened by the escalation policy.",
	})
	BroadcastDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleet_broadcast_events_dropped_total",
		Help: "Events dropped because the hub mailbox was full.",
	})
	ObserverEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleet_observer_evictions_total",
		Help: "Observers removed after a failed or stalled delivery.",
	})
	StateChannelDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleet_state_channel_drops_total",
		Help: "Live-state cache updates dropped under backpressure.",
	})
	ObserversConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_observers_connected",
		Help: "Currently subscribed broadcast observers.",
	})
)

func init() {
	prometheus.MustRegister(
		ReadingsIngested,
		ValidationFailures,
		PersistFailures,
		DegradedInferences,
		MaintenanceCreated,
		BroadcastDrops,
		ObserverEvictions,
		StateChannelDrops,
		ObserversConnected,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
