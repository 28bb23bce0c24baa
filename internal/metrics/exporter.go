package metrics

import (
	"net/http"

	prometheus2 "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/dkeye/RoboCast/relay"

// NewPrometheus wires an otel meter provider to the prometheus default registry
// and returns the app metrics plus the scrape handler.
func NewPrometheus() (*AppMetrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	m, err := NewAppMetrics(provider.Meter(meterName))
	if err != nil {
		return nil, nil, err
	}
	handler := promhttp.HandlerFor(prometheus2.DefaultGatherer, promhttp.HandlerOpts{EnableOpenMetrics: true})
	return m, handler, nil
}
