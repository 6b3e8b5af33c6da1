// metrics.go — Prometheus-метрики клиента Files API.
// filesapi_client_requests_total, filesapi_client_request_duration_seconds,
// filesapi_client_retries_total.
package transport

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics — метрики HTTP-запросов клиента. Nil-значение ничего не собирает.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retriesTotal    *prometheus.CounterVec
}

// NewMetrics регистрирует метрики в registerer.
// Повторная регистрация (несколько клиентов на один registry) переиспользует
// уже зарегистрированные коллекторы.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	requests, err := register(registerer, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filesapi_client_requests_total",
			Help: "Общее количество HTTP-запросов к Files API",
		},
		[]string{"operation", "status"},
	))
	if err != nil {
		return nil, err
	}

	duration, err := register(registerer, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filesapi_client_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Files API в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	))
	if err != nil {
		return nil, err
	}

	retries, err := register(registerer, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filesapi_client_retries_total",
			Help: "Количество повторов запросов к Files API",
		},
		[]string{"operation"},
	))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		requestsTotal:   requests,
		requestDuration: duration,
		retriesTotal:    retries,
	}, nil
}

// register регистрирует коллектор или возвращает ранее зарегистрированный.
func register[T prometheus.Collector](registerer prometheus.Registerer, c T) (T, error) {
	if err := registerer.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return c, nil
}

func (m *Metrics) observe(operation, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(operation, status).Inc()
	m.requestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *Metrics) retried(operation string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(operation).Inc()
}

// statusLabel — числовой статус как строка лейбла.
func statusLabel(code int) string {
	return strconv.Itoa(code)
}
