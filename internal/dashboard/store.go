package dashboard

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"fundingwatch/internal/metrics"
)

// ring is a bounded, concurrency-safe buffer keeping the newest items.
type ring[T any] struct {
	mu    sync.RWMutex
	items []T
	limit int
}

func newRing[T any](limit int) *ring[T] {
	if limit <= 0 {
		limit = 200
	}
	return &ring[T]{limit: limit}
}

func (r *ring[T]) add(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = append(r.items, item)
	if len(r.items) > r.limit {
		r.items = append([]T(nil), r.items[len(r.items)-r.limit:]...)
	}
}

// filter returns up to max matching items, newest last. max <= 0 means all.
func (r *ring[T]) filter(keep func(T) bool, max int) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, 0, len(r.items))
	for _, it := range r.items {
		if keep == nil || keep(it) {
			out = append(out, it)
		}
	}
	if max > 0 && len(out) > max {
		out = out[len(out)-max:]
	}
	return out
}

// metricStore keeps recent metric events for /api/metrics.
type metricStore struct {
	*ring[metrics.Metric]
}

func newMetricStore(limit int) *metricStore {
	return &metricStore{ring: newRing[metrics.Metric](limit)}
}

func (s *metricStore) handle(metric metrics.Metric) {
	s.add(metric)
}

// snapshot returns recent metrics, optionally limited to one component.
func (s *metricStore) snapshot(component string, max int) []metrics.Metric {
	var keep func(metrics.Metric) bool
	if component != "" {
		keep = func(m metrics.Metric) bool { return m.Component == component }
	}
	return s.filter(keep, max)
}

type logRecord struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     logrus.Level           `json:"-"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// logStore is a logrus hook retaining the newest log records for /api/logs.
type logStore struct {
	*ring[logRecord]
	enabled atomic.Bool
}

func newLogStore(limit int) *logStore {
	ls := &logStore{ring: newRing[logRecord](limit)}
	ls.enabled.Store(true)
	return ls
}

func (s *logStore) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (s *logStore) Fire(entry *logrus.Entry) error {
	if !s.enabled.Load() {
		return nil
	}

	record := logRecord{
		Timestamp: entry.Time,
		Level:     entry.Level,
		Message:   entry.Message,
	}

	if component, ok := entry.Data["component"].(string); ok {
		record.Component = component
	}

	if len(entry.Data) > 0 {
		record.Fields = make(map[string]interface{}, len(entry.Data))
		for k, v := range entry.Data {
			if k == "component" {
				continue
			}

			switch val := v.(type) {
			case error:
				record.Fields[k] = val.Error()
			case fmt.Stringer:
				record.Fields[k] = val.String()
			default:
				record.Fields[k] = val
			}
		}
	}

	s.add(record)
	return nil
}

// snapshot returns records at or above minLevel (logrus orders levels from
// panic=0 to trace=6, so "above" means numerically lower or equal).
func (s *logStore) snapshot(minLevel logrus.Level, max int) []logRecord {
	return s.filter(func(r logRecord) bool { return r.Level <= minLevel }, max)
}

func (s *logStore) close() {
	s.enabled.Store(false)
}
