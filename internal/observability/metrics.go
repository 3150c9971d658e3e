package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convo_http_requests_total",
			Help: "Total number of HTTP requests processed by the conversation service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "convo_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "convo_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
		[]string{"kind"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convo_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"kind", "event"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "convo_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
	pushDispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convo_push_dispatch_total",
			Help: "Total number of push dispatch attempts by outcome.",
		},
		[]string{"result"},
	)
	pushDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "convo_push_dropped_total",
			Help: "Push notifications dropped because the queue was full.",
		},
	)
	pushQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "convo_push_queue_depth",
			Help: "Current depth of the push dispatch queue.",
		},
	)
	probeFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "convo_presence_probe_failures_total",
			Help: "Presence probes that errored and degraded to presumed-offline.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		amqpPublishErrorsTotal,
		pushDispatchTotal,
		pushDroppedTotal,
		pushQueueDepth,
		probeFailuresTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Inc()
}

func DecWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Dec()
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}

func IncPushDispatch(result string) {
	pushDispatchTotal.WithLabelValues(result).Inc()
}

func IncPushDropped() {
	pushDroppedTotal.Inc()
}

func SetPushQueueDepth(depth int) {
	pushQueueDepth.Set(float64(depth))
}

func IncProbeFailure() {
	probeFailuresTotal.Inc()
}
