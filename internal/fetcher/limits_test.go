package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"fundingwatch/internal/metrics"
)

// countLimitEvents counts rate_limit_exceeded events emitted for component.
func countLimitEvents(t *testing.T, component string) func() int {
	t.Helper()
	var mu sync.Mutex
	n := 0
	id := metrics.RegisterMetricHandler(func(m metrics.Metric) {
		if m.Name == "rate_limit_exceeded" && m.Component == component {
			mu.Lock()
			n++
			mu.Unlock()
		}
	})
	t.Cleanup(func() { metrics.UnregisterMetricHandler(id) })
	return func() int {
		mu.Lock()
		defer mu.Unlock()
		return n
	}
}

func TestTooManyRequestsReportedOncePerResponse(t *testing.T) {
	cases := []struct {
		name      string
		component string
		body      string
		fetch     func(baseURL string) bool
	}{
		{
			name:      "binance",
			component: "binance_fetcher",
			body:      `{"code":-1003,"msg":"Too many requests; current limit is 2400 request weight per 1 MINUTE."}`,
			fetch: func(baseURL string) bool {
				return NewBinance(testOptions(baseURL), nil).FetchRate(context.Background(), "BTCUSDT").Resolved()
			},
		},
		{
			name:      "bybit",
			component: "bybit_fetcher",
			body:      `{"retCode":10006,"retMsg":"Too many visits!"}`,
			fetch: func(baseURL string) bool {
				return NewBybit(testOptions(baseURL), nil).FetchRate(context.Background(), "BTCUSDT").Resolved()
			},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var requests int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&requests, 1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprint(w, c.body)
			}))
			defer srv.Close()

			events := countLimitEvents(t, c.component)
			if c.fetch(srv.URL) {
				t.Fatalf("expected an unresolved outcome")
			}
			if got, want := events(), int(atomic.LoadInt32(&requests)); got != want || want != 2 {
				t.Fatalf("rate_limit_exceeded events = %d for %d responses", got, want)
			}
		})
	}
}

func TestBybitRetCodeLimitReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"retCode":10006,"retMsg":"Too many visits!","result":{"list":[]}}`)
	}))
	defer srv.Close()

	events := countLimitEvents(t, "bybit_fetcher")
	out := NewBybit(testOptions(srv.URL), nil).FetchRate(context.Background(), "BTCUSDT")
	if out.Resolved() {
		t.Fatalf("expected an unresolved outcome")
	}
	if got := events(); got != 2 {
		t.Fatalf("rate_limit_exceeded events = %d, want one per endpoint", got)
	}
}
