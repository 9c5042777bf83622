package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"fundingwatch/internal/metrics/rate"
	"fundingwatch/internal/model"
	"fundingwatch/logger"
)

// bybitEnvelope is the v5 response wrapper. RetCode is a pointer so a
// payload without it is rejected instead of read as success.
type bybitEnvelope struct {
	RetCode *int   `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		Category string           `json:"category"`
		List     []bybitRateEntry `json:"list"`
	} `json:"result"`
}

// bybitRateEntry covers both ticker and funding history rows.
type bybitRateEntry struct {
	Symbol      string  `json:"symbol"`
	FundingRate *string `json:"fundingRate"`
}

// BybitFetcher reads v5 linear funding rates: tickers first, then the most
// recent funding history entry.
type BybitFetcher struct {
	*chain
	client   *http.Client
	baseURL  string
	category string
}

func NewBybit(opts Options, log *logger.Log) *BybitFetcher {
	f := &BybitFetcher{
		chain:    newChain(model.ExchangeBybit, opts, log),
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		category: opts.Category,
	}
	if f.category == "" {
		f.category = "linear"
	}
	f.client = newHTTPClient(model.ExchangeBybit, opts, f.chain.log)
	f.endpoints = []endpoint{
		{name: EndpointTickers, fetch: f.tickers},
		{name: EndpointFundingHistory, fetch: f.fundingHistory},
	}
	return f
}

func (f *BybitFetcher) Exchange() model.Exchange { return model.ExchangeBybit }

func (f *BybitFetcher) FetchRate(ctx context.Context, symbol string) model.Outcome {
	return f.run(ctx, symbol)
}

func (f *BybitFetcher) tickers(ctx context.Context, symbol string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("category", f.category)
	q.Set("symbol", symbol)
	return f.get(ctx, EndpointTickers, "/v5/market/tickers", q)
}

func (f *BybitFetcher) fundingHistory(ctx context.Context, symbol string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("category", f.category)
	q.Set("symbol", symbol)
	q.Set("limit", "1")
	return f.get(ctx, EndpointFundingHistory, "/v5/market/funding/history", q)
}

func (f *BybitFetcher) get(ctx context.Context, endpoint, path string, q url.Values) (decimal.Decimal, error) {
	reqURL := f.baseURL + path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// 429 and 418 were already reported by the transport.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return decimal.Zero, failf(model.ReasonStatus, "unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var env bybitEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if ctx.Err() != nil {
			return decimal.Zero, err
		}
		return decimal.Zero, failf(model.ReasonParse, "decode %s response: %v", endpoint, err)
	}
	if env.RetCode == nil {
		return decimal.Zero, failf(model.ReasonParse, "%s response has no retCode", endpoint)
	}
	if *env.RetCode != 0 {
		// Bybit signals some limits with HTTP 200 and a non-zero retCode.
		rate.ReportLimitFromMessage(f.chain.log, string(model.ExchangeBybit), q.Get("symbol"), endpoint, env.RetMsg)
		return decimal.Zero, failf(model.ReasonAPI, "retCode %d: %s", *env.RetCode, env.RetMsg)
	}
	if len(env.Result.List) == 0 {
		return decimal.Zero, failf(model.ReasonEmpty, "%s returned no entries", endpoint)
	}
	if env.Result.List[0].FundingRate == nil {
		return decimal.Zero, failf(model.ReasonParse, "funding rate field is missing")
	}
	return parseRate(*env.Result.List[0].FundingRate)
}
