package metrics

import (
	"testing"
	"time"

	"fundingwatch/logger"
)

func resetMetricHandlers() {
	eventHandlers = newHandlerSet()
}

func TestRegisterMetricHandlerReturnsUniqueIDs(t *testing.T) {
	resetMetricHandlers()

	id := RegisterMetricHandler(func(Metric) {})
	if id == 0 {
		t.Fatalf("expected non-zero handler id")
	}

	second := RegisterMetricHandler(func(Metric) {})
	if second == 0 || second == id {
		t.Fatalf("expected unique handler id")
	}
}

func TestRegisterMetricHandlerNil(t *testing.T) {
	resetMetricHandlers()

	if id := RegisterMetricHandler(nil); id != 0 {
		t.Fatalf("expected zero id for nil handler, got %d", id)
	}
}

func TestEmitMetricDispatchesToHandlers(t *testing.T) {
	resetMetricHandlers()

	events := make(chan Metric, 1)
	id := RegisterMetricHandler(func(m Metric) {
		events <- m
	})
	t.Cleanup(func() {
		UnregisterMetricHandler(id)
	})

	fields := logger.Fields{"exchange": "binance", "unit": "count"}
	log := logger.Logger()

	EmitMetric(log, "binance_fetcher", "used_weight", 3, "gauge", fields)

	select {
	case event := <-events:
		if event.Component != "binance_fetcher" {
			t.Fatalf("unexpected component: %s", event.Component)
		}
		if event.Name != "used_weight" {
			t.Fatalf("unexpected metric name: %s", event.Name)
		}
		if event.Type != "gauge" {
			t.Fatalf("unexpected metric type: %s", event.Type)
		}
		if _, ok := fields["metric"]; ok {
			t.Fatalf("original fields mutated: %v", fields)
		}
		if _, ok := event.Fields["metric"]; ok {
			t.Fatalf("event fields should not contain metric key: %v", event.Fields)
		}
	case <-time.After(50 * time.Millisecond):
		t.Fatal("metric handler not invoked")
	}
}

func TestEmitMetricDefaultType(t *testing.T) {
	resetMetricHandlers()

	events := make(chan Metric, 1)
	id := RegisterMetricHandler(func(m Metric) {
		events <- m
	})
	t.Cleanup(func() {
		UnregisterMetricHandler(id)
	})

	EmitMetric(nil, "reconciler", "cycle_errors", 7, "", logger.Fields{"unit": "count"})

	select {
	case event := <-events:
		if event.Type != "counter" {
			t.Fatalf("expected default metric type to be counter, got %s", event.Type)
		}
	case <-time.After(50 * time.Millisecond):
		t.Fatal("metric handler not invoked for default type")
	}
}

func TestEmitMetricWithoutName(t *testing.T) {
	resetMetricHandlers()

	events := make(chan Metric, 1)
	id := RegisterMetricHandler(func(m Metric) {
		events <- m
	})
	t.Cleanup(func() {
		UnregisterMetricHandler(id)
	})

	EmitMetric(nil, "component", "", 1, "counter", nil)

	select {
	case <-events:
		t.Fatal("handler should not receive metrics without a name")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandlersRunInRegistrationOrder(t *testing.T) {
	resetMetricHandlers()

	var order []int
	first := RegisterMetricHandler(func(Metric) { order = append(order, 1) })
	second := RegisterMetricHandler(func(Metric) { order = append(order, 2) })
	third := RegisterMetricHandler(func(Metric) { order = append(order, 3) })
	t.Cleanup(func() {
		UnregisterMetricHandler(first)
		UnregisterMetricHandler(third)
	})

	UnregisterMetricHandler(second)
	UnregisterMetricHandler(second)
	EmitMetric(nil, "reconciler", "cycle_total", 28, "gauge", nil)

	if len(order) != 2 || order[0] != 1 || order[1] != 3 {
		t.Fatalf("unexpected delivery order: %v", order)
	}
}
