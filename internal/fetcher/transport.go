package fetcher

import (
	"net/http"

	"fundingwatch/internal/metrics/rate"
	"fundingwatch/internal/model"
	"fundingwatch/logger"
)

// headerTransport stamps the request headers every exchange call carries and
// reports the weight and limit signals found on responses.
type headerTransport struct {
	base      http.RoundTripper
	exchange  model.Exchange
	userAgent string
	log       *logger.Log
}

func newHTTPClient(exchange model.Exchange, opts Options, log *logger.Log) *http.Client {
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{Transport: &headerTransport{
		base:      base,
		exchange:  exchange,
		userAgent: opts.UserAgent,
		log:       log,
	}}
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Accept", "application/json")
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	switch t.exchange {
	case model.ExchangeBinance:
		rate.ReportBinanceWeight(t.log, resp.Header)
	case model.ExchangeBybit:
		rate.ReportBybitWeight(t.log, resp.Header)
	}

	symbol := req.URL.Query().Get("symbol")
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		rate.ReportRateLimitExceeded(t.log, string(t.exchange), symbol, req.URL.Path)
	case http.StatusTeapot:
		// Binance answers 418 once an IP is auto-banned.
		rate.ReportIPBan(t.log, string(t.exchange), symbol, req.URL.Path)
	}
	return resp, nil
}
