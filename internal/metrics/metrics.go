package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "firebase_output"

var (
	// Counter para eventos recebidos, por resultado do dispatch
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total number of events handled by the dispatcher",
		},
		[]string{"result"}, // dispatched, rejected, skipped
	)

	// Counter para eventos rejeitados antes de qualquer chamada remota
	EventsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_rejected_total",
			Help:      "Events dropped during validation",
		},
		[]string{"reason"},
	)

	// Counter para escritas remotas
	WritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Remote writes by verb and outcome",
		},
		[]string{"verb", "status"},
	)

	// Histograma para duração das escritas, retries incluídos
	WriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "write_duration_seconds",
			Help:      "Time spent on a remote write including retries",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"verb"},
	)

	WriteRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_retries_total",
			Help:      "Retries performed after transient transport failures",
		},
		[]string{"verb"},
	)

	AuthTokenRefreshTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_token_refresh_total",
			Help:      "Auth tokens signed",
		},
	)

	// Gauge para estado do circuit breaker (0=closed, 1=half_open, 2=open)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half_open, 2=open)",
		},
		[]string{"breaker"},
	)

	// Gauge para tamanho da fila de escritas assíncronas
	WriteQueueSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "write_queue_size",
			Help:      "Writes waiting for a worker",
		},
	)

	// Counter para erros por componente
	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of errors",
		},
		[]string{"component", "error_code"},
	)

	// Gauge para saúde dos componentes
	ComponentHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "component_health",
			Help:      "Health status of components (1=healthy, 0=unhealthy)",
		},
		[]string{"component_type", "component_name"},
	)

	// Histogram para tempo de resposta da API
	ResponseTimeSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_time_seconds",
			Help:      "Response time of API endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	// Counter para recargas de configuração
	ConfigReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Total number of configuration reloads",
		},
		[]string{"result"}, // success, failure
	)

	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information; value is always 1",
		},
		[]string{"version"},
	)
)

var registerOnce sync.Once

// Register adds the collectors to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			EventsTotal,
			EventsRejectedTotal,
			WritesTotal,
			WriteDuration,
			WriteRetriesTotal,
			AuthTokenRefreshTotal,
			CircuitBreakerState,
			WriteQueueSize,
			ErrorsTotal,
			ComponentHealth,
			ResponseTimeSeconds,
			ConfigReloadsTotal,
		)
	})
}

// MetricsServer servidor HTTP para métricas Prometheus
type MetricsServer struct {
	server *http.Server
	logger *logrus.Logger
}

// NewMetricsServer cria um novo servidor de métricas
func NewMetricsServer(addr, path string, logger *logrus.Logger) *MetricsServer {
	Register()

	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &MetricsServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Handler exposes the server mux.
func (ms *MetricsServer) Handler() http.Handler {
	return ms.server.Handler
}

// Start inicia o servidor de métricas
func (ms *MetricsServer) Start() error {
	ms.logger.WithField("addr", ms.server.Addr).Info("Starting metrics server")

	go func() {
		if err := ms.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ms.logger.WithError(err).Error("Metrics server error")
		}
	}()

	return nil
}

// Stop para o servidor de métricas
func (ms *MetricsServer) Stop() error {
	ms.logger.Info("Stopping metrics server")
	return ms.server.Close()
}

// Funções auxiliares para métricas comuns

// RecordEvent counts one dispatch outcome.
func RecordEvent(result string) {
	EventsTotal.WithLabelValues(result).Inc()
}

// RecordRejected counts an event dropped during validation.
func RecordRejected(reason string) {
	EventsRejectedTotal.WithLabelValues(reason).Inc()
	EventsTotal.WithLabelValues("rejected").Inc()
}

// RecordWrite counts a finished remote write and observes its duration.
func RecordWrite(verb, status string, duration time.Duration) {
	WritesTotal.WithLabelValues(verb, status).Inc()
	WriteDuration.WithLabelValues(verb).Observe(duration.Seconds())
}

// RecordRetry counts one retry.
func RecordRetry(verb string) {
	WriteRetriesTotal.WithLabelValues(verb).Inc()
}

// RecordAuthRefresh counts a newly signed auth token.
func RecordAuthRefresh() {
	AuthTokenRefreshTotal.Inc()
}

// RecordError registra um erro
func RecordError(component, code string) {
	ErrorsTotal.WithLabelValues(component, code).Inc()
}

// SetCircuitBreakerState exports a breaker state as 0, 1 or 2.
func SetCircuitBreakerState(breaker, state string) {
	var value float64
	switch state {
	case "half_open":
		value = 1
	case "open":
		value = 2
	}
	CircuitBreakerState.WithLabelValues(breaker).Set(value)
}

// SetWriteQueueSize define o tamanho da fila de escritas
func SetWriteQueueSize(size int) {
	WriteQueueSize.Set(float64(size))
}

// SetComponentHealth define saúde de um componente
func SetComponentHealth(componentType, componentName string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	ComponentHealth.WithLabelValues(componentType, componentName).Set(value)
}

// RecordResponseTime records how long an API request took.
func RecordResponseTime(path, method string, duration time.Duration) {
	ResponseTimeSeconds.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordConfigReload counts a hot reload attempt.
func RecordConfigReload(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	ConfigReloadsTotal.WithLabelValues(result).Inc()
}

// SetBuildInfo publishes the running version.
func SetBuildInfo(version string) {
	BuildInfo.WithLabelValues(version).Set(1)
}
