package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics for the collaboration core.
type Collector struct {
	registry *prometheus.Registry

	// Collaboration metrics
	EventsBroadcast *prometheus.CounterVec
	LocksAcquired   prometheus.Counter
	LockConflicts   prometheus.Counter
	ActiveRooms     prometheus.Gauge
	ActiveUsers     prometheus.Gauge

	// Durable log metrics
	EventsAppended *prometheus.CounterVec
	StorageErrors  prometheus.Counter
}

// NewCollector creates a metrics collector with its own registry so tests
// can construct collectors freely without duplicate-registration panics.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	eventsBroadcast := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collab_events_broadcast_total",
			Help:      "Total number of collaboration events broadcast to subscribers",
		},
		[]string{"type"},
	)

	locksAcquired := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edit_locks_acquired_total",
			Help:      "Total number of edit locks granted",
		},
	)

	lockConflicts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edit_lock_conflicts_total",
			Help:      "Total number of lock acquisitions rejected due to a live holder",
		},
	)

	activeRooms := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of rooms currently held by the registry",
		},
	)

	activeUsers := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_users",
			Help:      "Number of active users across all rooms",
		},
	)

	eventsAppended := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "durable_events_appended_total",
			Help:      "Total number of durable events appended to the log",
		},
		[]string{"type"},
	)

	storageErrors := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "durable_log_storage_errors_total",
			Help:      "Total number of durable-log operations that failed",
		},
	)

	registry.MustRegister(
		eventsBroadcast,
		locksAcquired,
		lockConflicts,
		activeRooms,
		activeUsers,
		eventsAppended,
		storageErrors,
	)

	return &Collector{
		registry:        registry,
		EventsBroadcast: eventsBroadcast,
		LocksAcquired:   locksAcquired,
		LockConflicts:   lockConflicts,
		ActiveRooms:     activeRooms,
		ActiveUsers:     activeUsers,
		EventsAppended:  eventsAppended,
		StorageErrors:   storageErrors,
	}
}

// Registry exposes the underlying registry for scraping or test assertions.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
