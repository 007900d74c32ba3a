// Package metrics exposes the daemon's health as Prometheus
// collectors, grounded on the instrumentation pattern used by the
// p2p node builder referenced in this module's design notes: a
// handful of counters and gauges registered against a
// prometheus.Registerer supplied by the caller, so tests can register
// against a scratch registry instead of the global default one.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector bundles the counters and gauges this daemon reports.
// Callers that don't care about metrics (most tests) may pass a nil
// *Collector to rib.New; rib checks for nil before touching any field.
type Collector struct {
	AdvertisementsSent     prometheus.Counter
	AdvertisementsReceived prometheus.Counter
	AdvertisementsRejected prometheus.Counter
	DecodeErrors           prometheus.Counter
	Timeouts               prometheus.Counter
	GarbageCollections     prometheus.Counter
	RouteCount             prometheus.Gauge
}

// New constructs a Collector and registers it against reg.
func New(reg prometheus.Registerer, routerID uint32) *Collector {
	constLabels := prometheus.Labels{"router_id": strconv.FormatUint(uint64(routerID), 10)}

	c := &Collector{
		AdvertisementsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "ripd",
			Name:        "advertisements_sent_total",
			Help:        "Advertisements successfully transmitted to a neighbor.",
			ConstLabels: constLabels,
		}),
		AdvertisementsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "ripd",
			Name:        "advertisements_received_total",
			Help:        "Advertisements successfully decoded and applied.",
			ConstLabels: constLabels,
		}),
		AdvertisementsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "ripd",
			Name:        "advertisements_rejected_total",
			Help:        "Decoded advertisements dropped because the sender has no entry in the routing table.",
			ConstLabels: constLabels,
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "ripd",
			Name:        "decode_errors_total",
			Help:        "Inbound datagrams that failed wire validation.",
			ConstLabels: constLabels,
		}),
		Timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "ripd",
			Name:        "route_timeouts_total",
			Help:        "Routes that transitioned to poisoned because no refresh arrived in time.",
			ConstLabels: constLabels,
		}),
		GarbageCollections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "ripd",
			Name:        "route_garbage_collections_total",
			Help:        "Poisoned routes removed from the table after the GC window.",
			ConstLabels: constLabels,
		}),
		RouteCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "ripd",
			Name:        "routes",
			Help:        "Current number of entries in the routing table, including the self-entry.",
			ConstLabels: constLabels,
		}),
	}

	reg.MustRegister(
		c.AdvertisementsSent,
		c.AdvertisementsReceived,
		c.AdvertisementsRejected,
		c.DecodeErrors,
		c.Timeouts,
		c.GarbageCollections,
		c.RouteCount,
	)
	return c
}

