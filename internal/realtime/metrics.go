package realtime

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/Tyrowin/roomchat/internal/realtime"

// unknownEvent labels inbound names outside the protocol so client input
// cannot grow the number of series.
const unknownEvent = "unknown"

var inboundEvents = map[string]bool{
	EventJoinChat:       true,
	EventLeaveChat:      true,
	EventSendMessage:    true,
	EventTyping:         true,
	EventStopTyping:     true,
	EventReadMessage:    true,
	EventPresenceUpdate: true,
}

func eventLabel(name string) string {
	if inboundEvents[name] {
		return name
	}
	return unknownEvent
}

// metrics reports through a meter provider, the global one unless the
// service is given its own. The global provider is a no-op until the hosting
// process installs one.
type metrics struct {
	events     metric.Int64Counter
	failures   metric.Int64Counter
	deliveries metric.Int64Counter
	relayed    metric.Int64Counter
}

func newMetrics(provider metric.MeterProvider) *metrics {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)
	events, _ := meter.Int64Counter("roomchat_events_total",
		metric.WithDescription("Inbound socket events handled, by event name"))
	failures, _ := meter.Int64Counter("roomchat_event_failures_total",
		metric.WithDescription("Inbound socket events answered with an error event"))
	deliveries, _ := meter.Int64Counter("roomchat_deliveries_total",
		metric.WithDescription("Outbound frames queued to local connections"))
	relayed, _ := meter.Int64Counter("roomchat_relayed_total",
		metric.WithDescription("Envelopes received from other instances"))
	return &metrics{
		events:     events,
		failures:   failures,
		deliveries: deliveries,
		relayed:    relayed,
	}
}

func (m *metrics) event(ctx context.Context, name string) {
	m.events.Add(ctx, 1, metric.WithAttributes(attribute.String("event", eventLabel(name))))
}

func (m *metrics) failure(ctx context.Context, name string, kind Kind) {
	m.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", eventLabel(name)),
		attribute.String("code", kind.Code()),
	))
}

func (m *metrics) delivered(ctx context.Context, n int) {
	if n > 0 {
		m.deliveries.Add(ctx, int64(n))
	}
}

func (m *metrics) relay(ctx context.Context, scope string) {
	m.relayed.Add(ctx, 1, metric.WithAttributes(attribute.String("scope", scope)))
}
