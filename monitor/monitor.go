// Пакет monitor — мониторинг доступности сервиса Files API через topologymetrics.
//
// Зависимость "files-api" проверяется HTTP checker'ом по health-эндпоинту
// хоста из базового URL клиента. Метрики:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
//   - app_dependency_status — категория статуса
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/prometheus/client_golang/prometheus"

	filesapi "github.com/ahmtvc/scisbo-files-api-wrapper"
)

// DependencyName — имя зависимости в метриках и в ключах Health().
const DependencyName = "files-api"

// DefaultHealthPath — health-эндпоинт сервиса по умолчанию.
const DefaultHealthPath = "/health"

// Monitor периодически проверяет доступность Files API.
type Monitor struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// New создаёт монитор. Метрики регистрируются в глобальном Prometheus registry.
//
// Параметры:
//   - serviceID — имя вершины графа текущего приложения
//   - group — имя группы в метриках
//   - cfg — конфигурация клиента, из неё берётся базовый URL
//   - healthPath — путь health-эндпоинта (пустой — DefaultHealthPath)
//   - interval — интервал проверки
func New(
	serviceID string,
	group string,
	cfg *filesapi.Config,
	healthPath string,
	interval time.Duration,
	logger *slog.Logger,
) (*Monitor, error) {
	return newMonitor(serviceID, group, cfg, healthPath, interval, logger)
}

// NewWithRegisterer создаёт монитор с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewWithRegisterer(
	serviceID string,
	group string,
	cfg *filesapi.Config,
	healthPath string,
	interval time.Duration,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*Monitor, error) {
	return newMonitor(serviceID, group, cfg, healthPath, interval, logger,
		dephealth.WithRegisterer(registerer))
}

func newMonitor(
	serviceID string,
	group string,
	cfg *filesapi.Config,
	healthPath string,
	interval time.Duration,
	logger *slog.Logger,
	extraOpts ...dephealth.Option,
) (*Monitor, error) {
	if cfg == nil {
		return nil, errors.New("конфигурация Files API не задана")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if healthPath == "" {
		healthPath = DefaultHealthPath
	}

	depOpts := []dephealth.DependencyOption{
		dephealth.FromURL(cfg.BaseURL()),
		dephealth.WithHTTPHealthPath(healthPath),
		dephealth.CheckInterval(interval),
		dephealth.Critical(true),
	}
	if parsed, err := url.Parse(cfg.BaseURL()); err == nil && parsed.Scheme == "https" {
		depOpts = append(depOpts, dephealth.WithHTTPTLSSkipVerify(false))
	}

	opts := make([]dephealth.Option, 0, 2+len(extraOpts))
	opts = append(opts,
		dephealth.WithLogger(logger),
		dephealth.HTTP(DependencyName, depOpts...),
	)
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(serviceID, group, opts...)
	if err != nil {
		return nil, fmt.Errorf("создание монитора Files API: %w", err)
	}

	return &Monitor{
		dh:     dh,
		logger: logger.With(slog.String("component", "files_api_monitor")),
	}, nil
}

// Start запускает периодическую проверку. Не блокирует.
func (m *Monitor) Start(ctx context.Context) error {
	m.logger.Info("Мониторинг Files API запущен")
	return m.dh.Start(ctx)
}

// Stop останавливает проверки.
func (m *Monitor) Stop() {
	m.dh.Stop()
	m.logger.Info("Мониторинг Files API остановлен")
}

// Health возвращает текущее состояние. Ключ — "files-api:host:port".
func (m *Monitor) Health() map[string]bool {
	return m.dh.Health()
}
