package relay

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Forwarding routes used as metric labels.
const (
	RouteClientToWorker = "client_to_worker"
	RouteWorkerToClient = "worker_to_client"
	RouteDirect         = "direct"
	RoutePublish        = "publish"
	RouteSubscription   = "subscription"
)

// Metrics holds all Prometheus metrics for the relay. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	MessagesForwarded *prometheus.CounterVec
	EnvelopesDropped  prometheus.Counter
	TransportErrors   *prometheus.CounterVec
	PlaneRestarts     *prometheus.CounterVec
	PlaneUp           *prometheus.GaugeVec
}

// DefaultMetrics is registered with the default Prometheus registry.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer, "corky")

// NewMetrics creates relay metrics registered with reg under namespace.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MessagesForwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_forwarded_total",
			Help:      "Messages forwarded by the relay planes, by route",
		}, []string{"route"}),
		EnvelopesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_dropped_total",
			Help:      "Direct-relay messages dropped for not being 3-frame envelopes",
		}),
		TransportErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_errors_total",
			Help:      "Failed socket sends and receives, by socket and operation",
		}, []string{"socket", "op"}),
		PlaneRestarts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plane_restarts_total",
			Help:      "Failed plane attempts",
		}, []string{"plane"}),
		PlaneUp: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "plane_up",
			Help:      "Whether a plane currently has its sockets bound (1) or not (0)",
		}, []string{"plane"}),
	}
}

// RecordForward counts one forwarded message.
func (m *Metrics) RecordForward(route string) {
	if m == nil {
		return
	}
	m.MessagesForwarded.WithLabelValues(route).Inc()
}

// RecordDrop counts one malformed direct-relay message.
func (m *Metrics) RecordDrop() {
	if m == nil {
		return
	}
	m.EnvelopesDropped.Inc()
}

// RecordTransportError counts a failed send or receive.
func (m *Metrics) RecordTransportError(socket, op string) {
	if m == nil {
		return
	}
	m.TransportErrors.WithLabelValues(socket, op).Inc()
}

// RecordRestart counts a failed plane attempt.
func (m *Metrics) RecordRestart(plane string) {
	if m == nil {
		return
	}
	m.PlaneRestarts.WithLabelValues(plane).Inc()
}

// SetPlaneUp flags whether plane is running.
func (m *Metrics) SetPlaneUp(plane string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.PlaneUp.WithLabelValues(plane).Set(v)
}

// MetricsServer runs an HTTP server exposing /metrics and /health.
type MetricsServer struct {
	server *http.Server
}

// NewMetricsServer creates a metrics server on addr serving gatherer. A nil
// gatherer serves the default registry.
func NewMetricsServer(addr string, gatherer prometheus.Gatherer) *MetricsServer {
	handler := promhttp.Handler()
	if gatherer != nil {
		handler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &MetricsServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Handler returns the server's HTTP handler.
func (s *MetricsServer) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the metrics server (blocking).
func (s *MetricsServer) Start() error {
	return s.server.ListenAndServe()
}

// StartAsync starts the metrics server in a goroutine. Errors other than a
// normal close are passed to onErr if it is non-nil.
func (s *MetricsServer) StartAsync(onErr func(error)) {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed && onErr != nil {
			onErr(err)
		}
	}()
}

// Stop stops the metrics server.
func (s *MetricsServer) Stop() error {
	return s.server.Close()
}
