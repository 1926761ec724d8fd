// Пакет observability — инициализация OpenTelemetry трассировки.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

// Экспортеры трасс.
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// TracingConfig — параметры трассировки.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Version     string
	// Exporter — stdout или otlp
	Exporter string
	// Endpoint — host:port OTLP HTTP коллектора
	Endpoint string
	// SampleRatio — доля сэмплируемых корневых трасс (0..1)
	SampleRatio float64
	// Writer — вывод stdout-экспортера (по умолчанию os.Stdout)
	Writer io.Writer
}

// ShutdownFunc сбрасывает буферизованные spans и останавливает провайдер.
type ShutdownFunc func(context.Context) error

// InitTracing настраивает глобальный TracerProvider и propagator.
// При выключенной трассировке возвращает no-op shutdown: otel.Tracer()
// продолжает работать с no-op провайдером по умолчанию.
func InitTracing(ctx context.Context, cfg TracingConfig, logger *slog.Logger) (ShutdownFunc, error) {
	log := logger.With(slog.String("component", "tracing"))
	if !cfg.Enabled {
		log.Debug("Трассировка выключена")
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.Version),
			attribute.String("service.component", cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("ресурс трассировки: %w", err)
	}

	exporter, err := buildExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("экспортер трасс %s: %w", cfg.Exporter, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info("Трассировка инициализирована",
		slog.String("exporter", cfg.Exporter),
		slog.String("endpoint", cfg.Endpoint),
		slog.Float64("sample_ratio", cfg.SampleRatio),
	)
	return tp.Shutdown, nil
}

func buildExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case ExporterOTLP:
		return otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithInsecure(),
		)
	case ExporterStdout, "":
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		return stdouttrace.New(stdouttrace.WithWriter(w))
	default:
		return nil, fmt.Errorf("неизвестный экспортер %q", cfg.Exporter)
	}
}
