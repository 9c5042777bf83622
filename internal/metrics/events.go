package metrics

import (
	"sort"
	"sync"
	"time"

	"fundingwatch/logger"
)

// Metric is one structured metric event. Events are logged, fanned out to
// registered handlers (the dashboard keeps a history of them) and, when
// numeric, published to CloudWatch.
type Metric struct {
	Timestamp time.Time     `json:"timestamp"`
	Component string        `json:"component"`
	Name      string        `json:"name"`
	Value     interface{}   `json:"value"`
	Type      string        `json:"type"`
	Fields    logger.Fields `json:"fields,omitempty"`
}

type MetricHandler func(Metric)

type MetricHandlerID uint64

// handlerSet hands out increasing ids and delivers in registration order.
type handlerSet struct {
	mu       sync.RWMutex
	next     MetricHandlerID
	handlers map[MetricHandlerID]MetricHandler
	ordered  []MetricHandler
}

var eventHandlers = newHandlerSet()

func newHandlerSet() *handlerSet {
	return &handlerSet{handlers: make(map[MetricHandlerID]MetricHandler)}
}

// rebuild refreshes the ordered slice; callers hold mu.
func (h *handlerSet) rebuild() {
	ids := make([]MetricHandlerID, 0, len(h.handlers))
	for id := range h.handlers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	ordered := make([]MetricHandler, 0, len(ids))
	for _, id := range ids {
		ordered = append(ordered, h.handlers[id])
	}
	h.ordered = ordered
}

func (h *handlerSet) add(fn MetricHandler) MetricHandlerID {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	h.handlers[h.next] = fn
	h.rebuild()
	return h.next
}

func (h *handlerSet) remove(id MetricHandlerID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.handlers[id]; !ok {
		return
	}
	delete(h.handlers, id)
	h.rebuild()
}

func (h *handlerSet) snapshot() []MetricHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ordered
}

// RegisterMetricHandler subscribes fn to every emitted metric. A nil fn is
// ignored and yields id 0.
func RegisterMetricHandler(fn MetricHandler) MetricHandlerID {
	if fn == nil {
		return 0
	}
	return eventHandlers.add(fn)
}

func UnregisterMetricHandler(id MetricHandlerID) {
	if id == 0 {
		return
	}
	eventHandlers.remove(id)
}

// recordMetric logs the event and delivers it to handlers. Events without a
// name are dropped.
func recordMetric(log *logger.Log, component, name string, value interface{}, metricType string, fields logger.Fields) (Metric, bool) {
	if name == "" {
		return Metric{}, false
	}
	if metricType == "" {
		metricType = "counter"
	}
	if log == nil {
		log = logger.GetLogger()
	}

	event := Metric{
		Timestamp: time.Now(),
		Component: component,
		Name:      name,
		Value:     value,
		Type:      metricType,
		Fields:    logger.Fields{},
	}
	for k, v := range fields {
		event.Fields[k] = v
	}

	log.WithComponent(component).WithFields(event.Fields).WithFields(logger.Fields{
		"metric":      name,
		"metric_type": metricType,
		"value":       value,
	}).Info("metric")

	for _, fn := range eventHandlers.snapshot() {
		fn(event)
	}
	return event, true
}
