package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/bigkaa/goartstore/submission-module/internal/analysisclient"
	"github.com/bigkaa/goartstore/submission-module/internal/api/handlers"
	"github.com/bigkaa/goartstore/submission-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/submission-module/internal/config"
	"github.com/bigkaa/goartstore/submission-module/internal/database"
	"github.com/bigkaa/goartstore/submission-module/internal/indexer"
	"github.com/bigkaa/goartstore/submission-module/internal/observability"
	"github.com/bigkaa/goartstore/submission-module/internal/registryclient"
	"github.com/bigkaa/goartstore/submission-module/internal/repository"
	"github.com/bigkaa/goartstore/submission-module/internal/server"
	"github.com/bigkaa/goartstore/submission-module/internal/service"
	"github.com/bigkaa/goartstore/submission-module/internal/submission"
	"github.com/bigkaa/goartstore/submission-module/internal/tokensource"
)

const (
	// serviceID — имя вершины графа зависимостей.
	serviceID = "submission-module"
	// jwksClientTimeout — таймаут HTTP-клиента JWKS и readiness проверки IdP.
	jwksClientTimeout = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Запустить HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("загрузка конфигурации: %w", err)
		}
		return runServe(cmd.Context(), cfg)
	},
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := config.SetupLogger(cfg)
	logger.Info("Submission Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// 1. Трассировка
	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.OtelEnabled,
		ServiceName: serviceID,
		Version:     config.Version,
		Exporter:    cfg.OtelExporter,
		Endpoint:    cfg.OtelEndpoint,
		SampleRatio: cfg.OtelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("инициализация трассировки: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("Ошибка остановки трассировки", slog.String("error", err.Error()))
		}
	}()

	// 2. PostgreSQL: миграции и пул соединений
	if err := database.Migrate(cfg, logger); err != nil {
		return fmt.Errorf("миграции: %w", err)
	}
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("подключение к PostgreSQL: %w", err)
	}
	defer pool.Close()

	filesRepo := repository.NewSubmissionFileRepository(pool, repository.NewTxRunner(pool))

	// 3. Внешние сервисы
	registryClient, err := registryclient.New(cfg.RegistryURL, cfg.RegistryCACertPath, cfg.RegistryTimeout, logger)
	if err != nil {
		return fmt.Errorf("клиент Registry: %w", err)
	}

	// Интерфейс остаётся nil (не typed nil), если sequencing выключен.
	var analysis service.AnalysisService
	if cfg.SequencingEnabled {
		httpClient, err := analysisclient.NewHTTPClient(cfg.SequencingCACertPath, cfg.SequencingTimeout, logger)
		if err != nil {
			return fmt.Errorf("HTTP-клиент Analysis Service: %w", err)
		}
		tokens := tokensource.New(cfg.SequencingTokenURL, cfg.SequencingClientID, cfg.SequencingClientSecret,
			httpClient, logger)
		analysis = analysisclient.New(cfg.SequencingURL, httpClient, tokens, cfg.SequencingAllowDuplicates, logger)
	}

	var idx service.Indexer
	if cfg.IndexerEnabled {
		ix := indexer.New(cfg.IndexerURL, cfg.IndexerMapping, cfg.IndexerDelay, cfg.IndexerTimeout, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := ix.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Индексация прервана при остановке", slog.String("error", err.Error()))
			}
		}()
		idx = ix
	}

	// 4. Сервисный слой
	dictionaries := service.NewDictionaryCache(registryClient, cfg.DictionaryCacheSize, cfg.DictionaryCacheTTL)
	submissions := service.NewSubmissionService(registryClient, analysis, filesRepo, dictionaries,
		submission.DefaultTemplates(), service.SubmissionConfig{
			SequencingEnabled:   cfg.SequencingEnabled,
			IdentifierColumn:    cfg.SequencingIdentifierColumn,
			ManifestConcurrency: cfg.ManifestConcurrency,
		}, logger)
	files := service.NewFileService(registryClient, analysis, filesRepo, cfg.ManifestConcurrency, logger)
	commits := service.NewCommitService(registryClient, files, filesRepo, idx, service.CommitConfig{
		SequencingEnabled: cfg.SequencingEnabled,
		IdentifierColumn:  cfg.SequencingIdentifierColumn,
		IndexingEnabled:   cfg.IndexerEnabled,
	}, logger)

	// 5. Мониторинг зависимостей (topologymetrics)
	targets := service.DephealthTargets{
		DB:          stdlib.OpenDBFromPool(pool),
		PostgresURL: cfg.DatabaseURL(),
		RegistryURL: cfg.RegistryURL,
	}
	if cfg.SequencingEnabled {
		targets.AnalysisURL = cfg.SequencingURL
	}
	defer targets.DB.Close()

	depHealth, err := service.NewDephealthService(serviceID, cfg.DephealthGroup, targets,
		cfg.DephealthCheckInterval, cfg.DephealthIsEntry, logger)
	if err != nil {
		logger.Warn("Мониторинг зависимостей недоступен", slog.String("error", err.Error()))
	} else {
		if err := depHealth.Start(ctx); err != nil {
			logger.Warn("Не удалось запустить мониторинг зависимостей", slog.String("error", err.Error()))
		} else {
			defer depHealth.Stop()
		}
	}

	// 6. Health endpoints и аутентификация
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), registryClient)

	opts := server.Options{
		EventsScope: cfg.EventsScope,
		Middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID(),
			middleware.MetricsMiddleware(),
			middleware.RequestLogger(logger),
		},
	}
	if cfg.AuthEnabled {
		jwtAuth, err := middleware.NewJWTAuth(cfg.JWTJWKSURL, cfg.JWKSCACertPath, middleware.AuthOptions{
			Issuer:          cfg.JWTIssuer,
			AdminGroups:     cfg.AdminGroups,
			WriteOrgSuffix:  cfg.WriteOrgSuffix,
			Leeway:          cfg.JWTLeeway,
			ProtectedMethod: cfg.IsProtectedMethod,
		}, jwksClientTimeout, cfg.JWKSRefreshInterval, logger)
		if err != nil {
			return fmt.Errorf("JWT аутентификация: %w", err)
		}
		opts.Auth = jwtAuth.Middleware()

		idpChecker, err := middleware.NewKeycloakReadinessChecker(cfg.JWTJWKSURL, cfg.JWKSCACertPath, jwksClientTimeout)
		if err != nil {
			return fmt.Errorf("readiness проверка IdP: %w", err)
		}
		healthHandler.WithIdentityProvider(idpChecker)
	}

	apiHandler := handlers.NewAPIHandler(healthHandler, submissions, commits, files,
		handlers.UploadConfig{Limit: cfg.UploadLimit, Dir: cfg.UploadDir}, logger)

	// 7. HTTP-сервер (блокирующий вызов с graceful shutdown)
	srv := server.New(cfg, logger, apiHandler, opts)
	if err := srv.Run(ctx); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Submission Module остановлен")
	return nil
}
