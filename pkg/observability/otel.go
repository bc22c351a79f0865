package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// OTelExporter wraps OpenTelemetry metric export over OTLP/HTTP. Optional:
// the detector only starts one when an endpoint is configured.
type OTelExporter struct {
	provider *metric.MeterProvider
}

// NewOTelExporter creates and installs a periodic OTLP metric exporter.
func NewOTelExporter(serviceName, endpoint string) (*OTelExporter, error) {
	ctx := context.Background()

	exporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(endpoint),
		otlpmetrichttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP metric exporter: %w", err)
	}

	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	provider := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(exporter,
			metric.WithInterval(60*time.Second),
		)),
		metric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	return &OTelExporter{provider: provider}, nil
}

// Shutdown flushes and stops the exporter.
func (e *OTelExporter) Shutdown(ctx context.Context) error {
	if e.provider == nil {
		return nil
	}
	return e.provider.Shutdown(ctx)
}
