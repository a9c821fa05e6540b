package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chat-feed/internal/domain"
)

// Collector agrupa las metricas del feed. Implementa bus.Observer y service.PostObserver.
type Collector struct {
	registry      *prometheus.Registry
	published     *prometheus.CounterVec
	dropped       prometheus.Counter
	subscribers   prometheus.Gauge
	posted        *prometheus.CounterVec
	postsRejected *prometheus.CounterVec
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatfeed",
			Name:      "events_published_total",
			Help:      "Events published on the local bus, by kind.",
		}, []string{"kind"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatfeed",
			Name:      "deliveries_dropped_total",
			Help:      "Subscriber inbox overflows that were replaced by a gap.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatfeed",
			Name:      "subscribers",
			Help:      "Active bus subscriptions.",
		}),
		posted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatfeed",
			Name:      "messages_posted_total",
			Help:      "Messages accepted and stored, by author source.",
		}, []string{"source"}),
		postsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatfeed",
			Name:      "posts_rejected_total",
			Help:      "Posts rejected before reaching the store, by reason.",
		}, []string{"reason"}),
	}
	c.registry.MustRegister(
		c.published,
		c.dropped,
		c.subscribers,
		c.posted,
		c.postsRejected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) EventPublished(kind domain.EventKind) {
	c.published.WithLabelValues(string(kind)).Inc()
}

func (c *Collector) DeliveryDropped() {
	c.dropped.Inc()
}

func (c *Collector) SubscribersChanged(n int) {
	c.subscribers.Set(float64(n))
}

func (c *Collector) MessagePosted(source domain.SourceKind) {
	c.posted.WithLabelValues(string(source)).Inc()
}

func (c *Collector) PostRejected(reason string) {
	c.postsRejected.WithLabelValues(reason).Inc()
}

// Handler sirve /metrics con el registry propio.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
