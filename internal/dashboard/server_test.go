package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"fundingwatch/config"
	"fundingwatch/internal/metrics"
	"fundingwatch/internal/model"
	"fundingwatch/internal/presenter"
	"fundingwatch/logger"
)

// fakeDriver is a hand-driven stand-in for the refresh driver.
type fakeDriver struct {
	mu       sync.Mutex
	last     model.LastResult
	triggers int
	subs     []chan model.LastResult
}

func (f *fakeDriver) Last() model.LastResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *fakeDriver) Trigger() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers++
	return f.triggers == 1
}

func (f *fakeDriver) Refreshing() bool { return false }

func (f *fakeDriver) Subscribe() (<-chan model.LastResult, func()) {
	ch := make(chan model.LastResult, 1)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	return ch, func() {}
}

func (f *fakeDriver) publish(last model.LastResult) {
	f.mu.Lock()
	f.last = last
	subs := append([]chan model.LastResult(nil), f.subs...)
	f.mu.Unlock()
	for _, ch := range subs {
		ch <- last
	}
}

func (f *fakeDriver) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func sampleResult() model.LastResult {
	rate := func(s string) *decimal.Decimal { d := decimal.RequireFromString(s); return &d }
	btc := model.NewRateSample("BTCUSDT",
		model.Outcome{Exchange: model.ExchangeBinance, Symbol: "BTCUSDT", Rate: rate("0.0001")},
		model.Outcome{Exchange: model.ExchangeBybit, Symbol: "BTCUSDT", Rate: rate("0.00015")},
		time.Now())
	return model.LastResult{
		Result: &model.ReconciliationResult{
			CycleID:       uuid.New(),
			Samples:       []model.RateSample{btc},
			Total:         1,
			MaxDiff:       btc.AbsDiff,
			MaxDiffSymbol: "BTCUSDT",
		},
		RefreshedAt: time.Now(),
		Interval:    30 * time.Second,
	}
}

func newTestServer(t *testing.T, driver Driver) (*Server, http.Handler) {
	t.Helper()
	srv, err := NewServer(config.DashboardConfig{Enabled: true, Address: ":0", LogHistory: 50}, driver, logger.Logger())
	if err != nil {
		t.Fatalf("NewServer error: %v", err)
	}
	t.Cleanup(srv.cleanup)

	router, err := srv.buildRouter("fundingwatch")
	if err != nil {
		t.Fatalf("buildRouter error: %v", err)
	}
	return srv, router
}

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		"":                               "0.0.0.0:8080",
		"  :9090  ":                      "0.0.0.0:9090",
		"localhost":                      "localhost:8080",
		"0.0.0.0:80":                     "0.0.0.0:80",
		"[::1]:443":                      "[::1]:443",
		"::1":                            "[::1]:8080",
		"*:8080":                         "0.0.0.0:8080",
		"http://10.0.0.5:8080":           "10.0.0.5:8080",
		"https://10.0.0.5":               "10.0.0.5:8080",
		"http://:7070":                   "0.0.0.0:7070",
		"https://dashboard.example.com/": "dashboard.example.com:8080",
	}

	for input, want := range cases {
		if got := normalizeAddress(input); got != want {
			t.Fatalf("normalizeAddress(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNewServerDisabledAndAddress(t *testing.T) {
	srv, err := NewServer(config.DashboardConfig{Enabled: false}, &fakeDriver{}, logger.Logger())
	if err != nil || srv != nil {
		t.Fatalf("disabled dashboard: srv=%v err=%v", srv, err)
	}
	if err := srv.Run(context.Background(), "x"); err != nil {
		t.Fatalf("nil server Run returned %v", err)
	}

	srv, err = NewServer(config.DashboardConfig{Enabled: true, Address: ":9000"}, &fakeDriver{}, logger.Logger())
	if err != nil {
		t.Fatalf("NewServer returned error: %v", err)
	}
	defer srv.cleanup()
	if got := srv.Address(); got != "0.0.0.0:9000" {
		t.Fatalf("server address = %q, want %q", got, "0.0.0.0:9000")
	}

	if _, err := NewServer(config.DashboardConfig{Enabled: true}, nil, logger.Logger()); err == nil {
		t.Fatalf("expected error without a driver")
	}
}

func TestIndexRendersTable(t *testing.T) {
	driver := &fakeDriver{last: sampleResult()}
	_, router := newTestServer(t, driver)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", res.Code)
	}
	body := res.Body.String()
	for _, want := range []string{"Binance vs Bybit Funding Rate Comparison", "BTCUSDT", "0.0100%", "0.0150%", "Refresh Now", "Auto-refreshes every 30 seconds", "Next auto-refresh in 30 seconds", `id="progress-bar"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("page missing %q", want)
		}
	}
}

func TestIndexWithoutData(t *testing.T) {
	_, router := newTestServer(t, &fakeDriver{})

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), "No data available") {
		t.Fatalf("status=%d, body lacks no-data banner", res.Code)
	}
}

func TestRatesEndpoint(t *testing.T) {
	_, router := newTestServer(t, &fakeDriver{last: sampleResult()})

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/rates", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", res.Code)
	}

	var view presenter.View
	if err := json.Unmarshal(res.Body.Bytes(), &view); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !view.HasData || len(view.Rows) != 1 || view.Rows[0].Diff.Text != "0.0050%" {
		t.Fatalf("unexpected view: %+v", view)
	}
	if view.Cards[3].Delta != "BTCUSDT" {
		t.Fatalf("max difference card = %+v", view.Cards[3])
	}
}

func TestRefreshEndpoint(t *testing.T) {
	driver := &fakeDriver{}
	_, router := newTestServer(t, driver)

	for i, wantQueued := range []bool{true, false} {
		res := httptest.NewRecorder()
		router.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))
		if res.Code != http.StatusAccepted {
			t.Fatalf("request %d: status %d", i, res.Code)
		}
		var body struct {
			Queued bool `json:"queued"`
		}
		if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if body.Queued != wantQueued {
			t.Fatalf("request %d: queued=%v want %v", i, body.Queued, wantQueued)
		}
	}
	if driver.triggers != 2 {
		t.Fatalf("triggers = %d", driver.triggers)
	}

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/refresh", nil))
	if res.Code == http.StatusAccepted {
		t.Fatalf("GET should not trigger a refresh")
	}
}

func TestHealthAndPrometheus(t *testing.T) {
	_, router := newTestServer(t, &fakeDriver{})
	metrics.ObserveFetch("binance", "premium_index", "ok", time.Millisecond)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), `"ok"`) {
		t.Fatalf("healthz: %d %s", res.Code, res.Body.String())
	}

	res = httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), "fundingwatch_fetch_attempts_total") {
		t.Fatalf("metrics: %d", res.Code)
	}
}

func TestLogsAndMetricsEndpoints(t *testing.T) {
	srv, router := newTestServer(t, &fakeDriver{})

	srv.log.WithComponent("reconciler").Warn("something odd")
	metrics.EmitMetric(srv.log, "reconciler", "cycle_errors", 2, "gauge", nil)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/logs?level=warn", nil))
	var logs struct {
		Logs []struct {
			Level     string `json:"level"`
			Component string `json:"component"`
			Message   string `json:"message"`
		} `json:"logs"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &logs); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	found := false
	for _, l := range logs.Logs {
		if l.Message == "something odd" && l.Level == "warning" && l.Component == "reconciler" {
			found = true
		}
		if l.Level == "info" {
			t.Fatalf("info record returned for level=warn")
		}
	}
	if !found {
		t.Fatalf("warning not captured: %+v", logs.Logs)
	}

	res = httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/logs?level=loud", nil))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("bad level: status %d", res.Code)
	}

	res = httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/metrics?component=reconciler", nil))
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), "cycle_errors") {
		t.Fatalf("metrics endpoint: %d %s", res.Code, res.Body.String())
	}
}

func TestWebsocketPushesViews(t *testing.T) {
	driver := &fakeDriver{}
	_, router := newTestServer(t, driver)

	ts := httptest.NewServer(router)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first presenter.View
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial view: %v", err)
	}
	if first.HasData {
		t.Fatalf("initial view should be empty")
	}

	// the handler subscribes before its first write
	if driver.subscribers() != 1 {
		t.Fatalf("subscribers = %d", driver.subscribers())
	}
	driver.publish(sampleResult())

	var second presenter.View
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("read pushed view: %v", err)
	}
	if !second.HasData || second.Rows[0].Symbol != "BTCUSDT" {
		t.Fatalf("unexpected pushed view: %+v", second)
	}
}
