package hub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "datatree_hub_events_total",
	Help: "Total number of events delivered to subscribers",
}, []string{"type"})

var eventsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "datatree_hub_events_dropped_total",
	Help: "Total number of events dropped because subscriber buffer was full",
})

var nodesGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "datatree_hub_nodes",
	Help: "Number of nodes attached to the tree, root excluded",
})
