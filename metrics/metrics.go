// Package metrics provides the Prometheus collectors shared across the
// fabric's long-lived actors. Collectors register against an injected
// registerer rather than a package-level global registry.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Fabric bundles the collectors exercised by hyperlane, interchange, star,
// and exchange.
type Fabric struct {
	LaneQueueDepth   *prometheus.GaugeVec
	LaneDropped      *prometheus.CounterVec
	InterchangeRoute *prometheus.CounterVec
	StarDispatch     *prometheus.HistogramVec
	ExchangeTimeout  *prometheus.CounterVec
}

// New builds a Fabric and registers every collector with registerer.
func New(namespace string, registerer prometheus.Registerer) (*Fabric, error) {
	f := &Fabric{
		LaneQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hyperlane_queue_depth",
			Help:      "Number of waves queued on a hyperlane awaiting a consumer.",
		}, []string{"lane"}),
		LaneDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hyperlane_dropped_total",
			Help:      "Number of waves dropped from a full hyperlane (oldest-first eviction).",
		}, []string{"lane"}),
		InterchangeRoute: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interchange_routed_total",
			Help:      "Number of waves routed by an interchange, by outcome.",
		}, []string{"outcome"}),
		StarDispatch: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "star_dispatch_seconds",
			Help:      "Time spent handling one dispatcher command variant.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"variant"}),
		ExchangeTimeout: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchange_timeouts_total",
			Help:      "Number of exchanges completed with a synthesized 408.",
		}, []string{"wait_class"}),
	}
	for _, c := range []prometheus.Collector{
		f.LaneQueueDepth, f.LaneDropped, f.InterchangeRoute, f.StarDispatch, f.ExchangeTimeout,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// NoOp returns a Fabric registered against a throwaway registry, for callers
// (tests, examples) that need the field but not the metrics.
func NoOp() *Fabric {
	f, err := New("hyperlane", prometheus.NewRegistry())
	if err != nil {
		panic(err)
	}
	return f
}
