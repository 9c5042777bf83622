package fetcher

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"fundingwatch/internal/model"
	"fundingwatch/logger"
)

const (
	EndpointPremiumIndex   = "premium_index"
	EndpointFundingHistory = "funding_history"
	EndpointTickers        = "tickers"
)

// BinanceFetcher reads USDⓈ-M futures funding rates: premiumIndex first,
// then the most recent funding history entry.
type BinanceFetcher struct {
	*chain
	client *futures.Client
}

func NewBinance(opts Options, log *logger.Log) *BinanceFetcher {
	f := &BinanceFetcher{chain: newChain(model.ExchangeBinance, opts, log)}

	client := futures.NewClient("", "")
	if opts.BaseURL != "" {
		client.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	client.HTTPClient = newHTTPClient(model.ExchangeBinance, opts, f.chain.log)
	f.client = client

	f.endpoints = []endpoint{
		{name: EndpointPremiumIndex, fetch: f.premiumIndex},
		{name: EndpointFundingHistory, fetch: f.fundingHistory},
	}
	return f
}

func (f *BinanceFetcher) Exchange() model.Exchange { return model.ExchangeBinance }

func (f *BinanceFetcher) FetchRate(ctx context.Context, symbol string) model.Outcome {
	return f.run(ctx, symbol)
}

func (f *BinanceFetcher) premiumIndex(ctx context.Context, symbol string) (decimal.Decimal, error) {
	res, err := f.client.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, f.sdkError(err)
	}
	if len(res) == 0 || res[0] == nil {
		return decimal.Zero, failf(model.ReasonEmpty, "premiumIndex returned no entries")
	}
	return parseRate(res[0].LastFundingRate)
}

func (f *BinanceFetcher) fundingHistory(ctx context.Context, symbol string) (decimal.Decimal, error) {
	res, err := f.client.NewFundingRateService().Symbol(symbol).Limit(1).Do(ctx)
	if err != nil {
		return decimal.Zero, f.sdkError(err)
	}
	if len(res) == 0 || res[0] == nil {
		return decimal.Zero, failf(model.ReasonEmpty, "fundingRate returned no entries")
	}
	return parseRate(res[0].FundingRate)
}

// sdkError tags anything that is neither an API, transport nor context error
// as a decode failure. API errors need no limit reporting here: the SDK only
// builds them from error statuses, and 429/418 are reported by the transport.
func (f *BinanceFetcher) sdkError(err error) error {
	var apiErr *common.APIError
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &apiErr) || errors.As(err, &urlErr) || errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return &fetchError{reason: model.ReasonParse, err: err}
}
