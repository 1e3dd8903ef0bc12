package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service's Prometheus collectors. A nil *Metrics is valid
// and records nothing, which keeps tests free of registry plumbing.
type Metrics struct {
	eventsPublished         *prometheus.CounterVec
	eventsDropped           prometheus.Counter
	subscribersDisconnected prometheus.Counter
	activeSubscribers       prometheus.Gauge
	sinkFailures            *prometheus.CounterVec
	holdsCreated            prometheus.Counter
	holdsEnded              *prometheus.CounterVec
	websocketClients        prometheus.Gauge
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		eventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "parknet_bus_events_published_total",
			Help: "Slot change events published on the bus.",
		}, []string{"facility"}),
		eventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "parknet_bus_events_dropped_total",
			Help: "Events evicted from full subscriber queues.",
		}),
		subscribersDisconnected: f.NewCounter(prometheus.CounterOpts{
			Name: "parknet_bus_subscribers_disconnected_total",
			Help: "Subscriptions closed because their queue overflowed.",
		}),
		activeSubscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "parknet_bus_active_subscribers",
			Help: "Currently open bus subscriptions.",
		}),
		sinkFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "parknet_bus_sink_failures_total",
			Help: "Events a sink failed to handle after retries.",
		}, []string{"sink"}),
		holdsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "parknet_holds_created_total",
			Help: "Reservation holds granted.",
		}),
		holdsEnded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "parknet_holds_ended_total",
			Help: "Reservation holds ended, by reason.",
		}, []string{"reason"}),
		websocketClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "parknet_websocket_clients",
			Help: "Connected websocket clients.",
		}),
	}
}

// Handler exposes the collectors registered on g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) EventPublished(facilityID string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(facilityID).Inc()
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

func (m *Metrics) SubscriberDisconnected() {
	if m == nil {
		return
	}
	m.subscribersDisconnected.Inc()
}

func (m *Metrics) SubscriberAdded() {
	if m == nil {
		return
	}
	m.activeSubscribers.Inc()
}

func (m *Metrics) SubscriberRemoved() {
	if m == nil {
		return
	}
	m.activeSubscribers.Dec()
}

func (m *Metrics) SinkFailed(sink string) {
	if m == nil {
		return
	}
	m.sinkFailures.WithLabelValues(sink).Inc()
}

func (m *Metrics) HoldCreated() {
	if m == nil {
		return
	}
	m.holdsCreated.Inc()
}

func (m *Metrics) HoldEnded(reason string) {
	if m == nil {
		return
	}
	m.holdsEnded.WithLabelValues(reason).Inc()
}

func (m *Metrics) WebsocketConnected() {
	if m == nil {
		return
	}
	m.websocketClients.Inc()
}

func (m *Metrics) WebsocketDisconnected() {
	if m == nil {
		return
	}
	m.websocketClients.Dec()
}
