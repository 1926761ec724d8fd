// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// Submission Module мониторит:
//   - PostgreSQL — SQL checker через существующий pgxpool (connection pool mode, critical)
//   - Submission Registry — HTTP checker к health endpoint (critical)
//   - Analysis Service — HTTP checker (не critical, только при включённой регистрации
//     sequencing-файлов: загрузка без sequencing-метаданных работает и без него)
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
//   - app_dependency_status — категория статуса
//   - app_dependency_status_detail — детальный статус
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// defaultHealthPath — путь проверки, если в URL зависимости путь не указан.
const defaultHealthPath = "/health"

// DephealthTargets — зависимости, за которыми следит сервис.
type DephealthTargets struct {
	// DB — *sql.DB, полученный из pgxpool через stdlib.OpenDBFromPool()
	DB *sql.DB
	// PostgresURL — URL PostgreSQL (для метрик/лейблов, не для подключения)
	PostgresURL string
	// RegistryURL — URL Submission Registry; путь, если указан, используется как health path
	RegistryURL string
	// AnalysisURL — URL Analysis Service; пустая строка — не мониторится
	AnalysisURL string
}

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
//
// Параметры:
//   - serviceID — имя вершины графа текущего приложения ("submission-module")
//   - group — имя группы в метриках (SM_DEPHEALTH_GROUP)
//   - checkInterval — интервал проверки зависимостей (SM_DEPHEALTH_CHECK_INTERVAL)
//   - isEntry — при true добавляет лейбл isentry=yes ко всем зависимостям (SM_DEPHEALTH_ISENTRY)
func NewDephealthService(
	serviceID string,
	group string,
	targets DephealthTargets,
	checkInterval time.Duration,
	isEntry bool,
	logger *slog.Logger,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, targets, checkInterval, isEntry, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(
	serviceID string,
	group string,
	targets DephealthTargets,
	checkInterval time.Duration,
	isEntry bool,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, targets, checkInterval, isEntry,
		logger, dephealth.WithRegisterer(registerer))
}

func newDephealthService(
	serviceID string,
	group string,
	targets DephealthTargets,
	checkInterval time.Duration,
	isEntry bool,
	logger *slog.Logger,
	extraOpts ...dephealth.Option,
) (*DephealthService, error) {
	pgDepOpts := []dephealth.DependencyOption{
		dephealth.FromURL(targets.PostgresURL),
		dephealth.CheckInterval(checkInterval),
		dephealth.Critical(true),
	}
	if isEntry {
		pgDepOpts = append(pgDepOpts, dephealth.WithLabel("isentry", "yes"))
	}

	opts := make([]dephealth.Option, 0, 4+len(extraOpts))
	opts = append(opts,
		dephealth.WithLogger(logger),
		// PostgreSQL — connection pool mode через существующий pgxpool.
		dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(targets.DB)), pgDepOpts...),
		dephealth.HTTP("submission-registry",
			httpDepOptions(targets.RegistryURL, checkInterval, true, isEntry)...),
	)
	if targets.AnalysisURL != "" {
		opts = append(opts, dephealth.HTTP("analysis-service",
			httpDepOptions(targets.AnalysisURL, checkInterval, false, isEntry)...))
	}
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(serviceID, group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// httpDepOptions собирает опции HTTP-зависимости.
func httpDepOptions(rawURL string, checkInterval time.Duration, critical, isEntry bool) []dephealth.DependencyOption {
	base, healthPath := splitHealthURL(rawURL)
	opts := []dephealth.DependencyOption{
		dephealth.FromURL(base),
		dephealth.WithHTTPHealthPath(healthPath),
		dephealth.CheckInterval(checkInterval),
		dephealth.Critical(critical),
	}
	if isEntry {
		opts = append(opts, dephealth.WithLabel("isentry", "yes"))
	}
	if strings.HasPrefix(base, "https://") {
		opts = append(opts, dephealth.WithHTTPTLSSkipVerify(false))
	}
	return opts
}

// splitHealthURL разделяет URL зависимости на базовый адрес и путь проверки.
// "http://registry:8080/api/health" → ("http://registry:8080", "/api/health").
// Без пути — defaultHealthPath.
func splitHealthURL(rawURL string) (base, healthPath string) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL, defaultHealthPath
	}
	healthPath = strings.TrimRight(parsed.Path, "/")
	if healthPath == "" {
		healthPath = defaultHealthPath
	}
	return parsed.Scheme + "://" + parsed.Host, healthPath
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}
