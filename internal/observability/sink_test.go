package observability_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/oneclientcore/runtime/internal/observability"
)

func TestDirectiveDefaultLevels(t *testing.T) {
	metrics := observability.NewSharedEventBuffer(observability.NewLinearEventBuffer())
	dump := observability.NewSharedEventBuffer(observability.NewRingEventBuffer(4096))
	r := observability.NewRouter(metrics, dump)

	// With no SF_LOG/SF_DEV_LOG set, user sink defaults to WARN (Info is
	// suppressed) and reaches the dump buffer regardless (dump is
	// always-on for non-metrics targets).
	r.For("@user").Info("should not reach stdout by default")
	r.For("@user").Error("should reach stdout")

	if len(dump.Events()) != 2 {
		t.Fatalf("dump events = %d, want 2 (dump sees everything not @metrics)", len(dump.Events()))
	}
}

func TestLogMetricGoesToMetricsBufferOnly(t *testing.T) {
	metrics := observability.NewSharedEventBuffer(observability.NewLinearEventBuffer())
	dump := observability.NewSharedEventBuffer(observability.NewRingEventBuffer(4096))
	r := observability.NewRouter(metrics, dump)

	event := observability.NewPerformEvent(observability.PerformMetricsInput{
		Success:  true,
		Profile:  "test/profile",
		Provider: "test-provider",
	})
	data, err := observability.MarshalMetric(event)
	if err != nil {
		t.Fatalf("MarshalMetric: %v", err)
	}
	r.LogMetric(data)

	events := metrics.Events()
	if len(events) != 1 {
		t.Fatalf("metrics events = %d, want 1", len(events))
	}
	var decoded map[string]any
	if err := json.Unmarshal(events[0], &decoded); err != nil {
		t.Fatalf("metrics event not valid JSON: %v", err)
	}
	if decoded["event_type"] != "Metrics" {
		t.Errorf("event_type = %v, want Metrics", decoded["event_type"])
	}

	// The dump buffer never sees @metrics-targeted events.
	for _, e := range dump.Events() {
		if strings.Contains(string(e), `"event_type":"Metrics"`) {
			t.Errorf("dump buffer leaked a metrics event: %s", e)
		}
	}
}

func TestPanicEventCarriesLocation(t *testing.T) {
	event := observability.NewPanicEvent("boom", 1)
	if event.Data.Message != "boom" {
		t.Errorf("message = %q", event.Data.Message)
	}
	if event.Data.Location == nil || event.Data.Location.File == "" {
		t.Errorf("location = %+v, want a populated caller frame", event.Data.Location)
	}
}
