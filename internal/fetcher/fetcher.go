package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	appconfig "fundingwatch/config"
	"fundingwatch/internal/metrics"
	"fundingwatch/internal/model"
	"fundingwatch/logger"
)

// Fetcher resolves the current funding rate of one symbol on one exchange.
// FetchRate never returns an error: failures are described by the Outcome.
type Fetcher interface {
	Exchange() model.Exchange
	FetchRate(ctx context.Context, symbol string) model.Outcome
}

// Options configures a fetcher. Zero RequestsPerSecond disables limiting.
type Options struct {
	BaseURL           string
	Category          string
	Timeout           time.Duration
	UserAgent         string
	RequestsPerSecond int
	Burst             int
	Transport         http.RoundTripper
}

func BinanceOptions(cfg *appconfig.Config) Options {
	return Options{
		BaseURL:           cfg.Exchanges.Binance.BaseURL,
		Timeout:           cfg.Reader.Timeout,
		UserAgent:         cfg.Reader.UserAgent,
		RequestsPerSecond: cfg.Reader.RateLimit.RequestsPerSecond,
		Burst:             cfg.Reader.RateLimit.Burst,
	}
}

func BybitOptions(cfg *appconfig.Config) Options {
	return Options{
		BaseURL:           cfg.Exchanges.Bybit.BaseURL,
		Category:          cfg.Exchanges.Bybit.Category,
		Timeout:           cfg.Reader.Timeout,
		UserAgent:         cfg.Reader.UserAgent,
		RequestsPerSecond: cfg.Reader.RateLimit.RequestsPerSecond,
		Burst:             cfg.Reader.RateLimit.Burst,
	}
}

// fetchError carries an already classified failure.
type fetchError struct {
	reason model.Reason
	err    error
}

func (e *fetchError) Error() string { return e.err.Error() }
func (e *fetchError) Unwrap() error { return e.err }

func failf(reason model.Reason, format string, args ...interface{}) error {
	return &fetchError{reason: reason, err: fmt.Errorf(format, args...)}
}

// endpoint is one step of a fallback chain.
type endpoint struct {
	name  string
	fetch func(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// chain runs endpoints in order until one yields a rate.
type chain struct {
	exchange  model.Exchange
	endpoints []endpoint
	limiter   *rate.Limiter
	timeout   time.Duration
	log       *logger.Log
}

func newChain(exchange model.Exchange, opts Options, log *logger.Log) *chain {
	if log == nil {
		log = logger.GetLogger()
	}
	c := &chain{
		exchange: exchange,
		timeout:  opts.Timeout,
		log:      log,
	}
	if c.timeout <= 0 {
		c.timeout = 5 * time.Second
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c
}

func (c *chain) component() string {
	return string(c.exchange) + "_fetcher"
}

func (c *chain) run(ctx context.Context, symbol string) model.Outcome {
	start := time.Now()
	out := model.Outcome{Exchange: c.exchange, Symbol: symbol}

	for _, ep := range c.endpoints {
		attemptStart := time.Now()
		value, err := c.attempt(ctx, ep, symbol)
		elapsed := time.Since(attemptStart)
		result := "ok"
		if err != nil {
			result = string(classify(ctx, err))
		}
		logger.LogPerformance(c.log.WithComponent(c.component()), "fetch_attempt", elapsed, logger.Fields{
			"symbol":   symbol,
			"endpoint": ep.name,
			"result":   result,
		})

		if err == nil {
			metrics.ObserveFetch(string(c.exchange), ep.name, result, elapsed)
			out.Rate = &value
			out.Endpoint = ep.name
			break
		}

		reason := model.Reason(result)
		metrics.ObserveFetch(string(c.exchange), ep.name, string(reason), elapsed)
		out.Attempts = append(out.Attempts, model.Attempt{
			Endpoint: ep.name,
			Reason:   reason,
			Err:      err.Error(),
		})
		c.log.WithComponent(c.component()).WithFields(logger.Fields{
			"symbol":   symbol,
			"endpoint": ep.name,
			"reason":   string(reason),
		}).WithError(err).Debug("funding rate request failed")
	}

	out.Latency = time.Since(start)
	return out
}

func (c *chain) attempt(ctx context.Context, ep endpoint, symbol string) (value decimal.Decimal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = failf(model.ReasonParse, "%s: panic: %v", ep.name, r)
		}
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return decimal.Zero, err
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return ep.fetch(attemptCtx, symbol)
}

// classify maps an attempt error onto a Reason. ctx is the caller's context,
// not the per-attempt one, so a cancellation by the caller wins over the
// timeout it induces.
func classify(ctx context.Context, err error) model.Reason {
	if errors.Is(ctx.Err(), context.Canceled) {
		return model.ReasonCanceled
	}

	var fe *fetchError
	if errors.As(err, &fe) {
		return fe.reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.ReasonTimeout
	}
	if errors.Is(err, context.Canceled) {
		return model.ReasonCanceled
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.ReasonTimeout
	}
	// x/time/rate refuses to wait past the context deadline.
	if strings.Contains(err.Error(), "would exceed context deadline") {
		return model.ReasonTimeout
	}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return model.ReasonStatus
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return model.ReasonParse
	}
	return model.ReasonTransport
}

// parseRate reads an exchange funding rate string exactly.
func parseRate(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, failf(model.ReasonParse, "funding rate field is missing")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, failf(model.ReasonParse, "invalid funding rate %q: %v", raw, err)
	}
	return d, nil
}
