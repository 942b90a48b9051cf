package realtime

import (
	"context"
	"fmt"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestEventLabel(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{EventSendMessage, EventSendMessage},
		{EventPresenceUpdate, EventPresenceUpdate},
		{"", unknownEvent},
		{"drop_table", unknownEvent},
		{EventNewMessage, unknownEvent},
	}
	for _, tt := range tests {
		if got := eventLabel(tt.name); got != tt.want {
			t.Errorf("eventLabel(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

// eventSeries returns the value of every event-labelled series of counter.
func eventSeries(t *testing.T, reader *sdkmetric.ManualReader, counter string) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	series := make(map[string]int64)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != counter {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s data is %T, want an int64 sum", counter, m.Data)
			}
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value("event")
				series[v.AsString()] += dp.Value
			}
		}
	}
	return series
}

func TestMetrics_ClientEventNamesDoNotGrowSeries(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	store := newFakeStore()
	store.addChat("c1", "u1")
	svc := NewService(store, Options{MeterProvider: provider})
	svc.Start(context.Background())
	t.Cleanup(func() { _ = svc.Shutdown() })

	conn := connect(t, svc, "conn-a", "u1", "alice")
	for i := 0; i < 50; i++ {
		svc.HandleEvent(context.Background(), conn, frame(t, fmt.Sprintf("junk_%d", i), ChatRef{ChatID: "c1"}))
	}
	svc.HandleEvent(context.Background(), conn, frame(t, EventJoinChat, ChatRef{ChatID: "c1"}))

	events := eventSeries(t, reader, "roomchat_events_total")
	if len(events) != 2 {
		t.Fatalf("event series = %v, want only %q and %q", events, unknownEvent, EventJoinChat)
	}
	if events[unknownEvent] != 50 || events[EventJoinChat] != 1 {
		t.Errorf("event series = %v, want 50 unknown and 1 join_chat", events)
	}

	failures := eventSeries(t, reader, "roomchat_event_failures_total")
	if len(failures) != 1 || failures[unknownEvent] != 50 {
		t.Errorf("failure series = %v, want 50 under %q", failures, unknownEvent)
	}
}
