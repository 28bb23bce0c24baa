package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const (
	DropUnknownTarget = "unknown_target"
	DropBackpressure  = "backpressure"
	DropRateLimited   = "rate_limited"
	DropMalformed     = "malformed"
)

// AppMetrics holds all the relay metrics
type AppMetrics struct {
	metric.Meter

	ConnectedSessions      metric.Int64UpDownCounter
	RegisteredBroadcasters metric.Int64UpDownCounter
	RelayedMessages        metric.Int64Counter
	DroppedMessages        metric.Int64Counter
}

func NewAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	connected, err := meter.Int64UpDownCounter("connected_sessions",
		metric.WithDescription("signaling connections currently open"))
	if err != nil {
		return nil, err
	}

	registered, err := meter.Int64UpDownCounter("registered_broadcasters",
		metric.WithDescription("sessions currently registered as broadcaster"))
	if err != nil {
		return nil, err
	}

	relayed, err := meter.Int64Counter("relayed_messages_total")
	if err != nil {
		return nil, err
	}

	dropped, err := meter.Int64Counter("dropped_messages_total")
	if err != nil {
		return nil, err
	}

	return &AppMetrics{
		Meter:                  meter,
		ConnectedSessions:      connected,
		RegisteredBroadcasters: registered,
		RelayedMessages:        relayed,
		DroppedMessages:        dropped,
	}, nil
}

// Noop returns metrics backed by a no-op meter, for tests and tools.
func Noop() *AppMetrics {
	m, _ := NewAppMetrics(noop.NewMeterProvider().Meter(""))
	return m
}

func (m *AppMetrics) Relayed(msgType string) {
	m.RelayedMessages.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", msgType)))
}

func (m *AppMetrics) Dropped(reason string) {
	m.DroppedMessages.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
}
