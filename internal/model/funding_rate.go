package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Exchange identifies one of the two venues being compared.
type Exchange string

const (
	ExchangeBinance Exchange = "binance"
	ExchangeBybit   Exchange = "bybit"
)

// DisplayName returns the human readable exchange name.
func (e Exchange) DisplayName() string {
	switch e {
	case ExchangeBinance:
		return "Binance"
	case ExchangeBybit:
		return "Bybit"
	default:
		return string(e)
	}
}

// Reason tags why a fetch attempt did not produce a rate.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonTimeout   Reason = "timeout"
	ReasonTransport Reason = "transport"
	ReasonStatus    Reason = "status"
	ReasonAPI       Reason = "api"
	ReasonParse     Reason = "parse"
	ReasonEmpty     Reason = "empty"
	ReasonCanceled  Reason = "canceled"
)

// Attempt records one failed endpoint call.
type Attempt struct {
	Endpoint string `json:"endpoint"`
	Reason   Reason `json:"reason"`
	Err      string `json:"error,omitempty"`
}

// Outcome is the result of fetching one symbol's funding rate from one exchange.
// Rate is nil when every endpoint in the chain failed.
type Outcome struct {
	Exchange Exchange         `json:"exchange"`
	Symbol   string           `json:"symbol"`
	Rate     *decimal.Decimal `json:"rate"`
	Endpoint string           `json:"endpoint,omitempty"`
	Attempts []Attempt        `json:"attempts,omitempty"`
	Latency  time.Duration    `json:"latency"`
}

func (o Outcome) Resolved() bool {
	return o.Rate != nil
}

// Reason returns the reason of the last failed attempt, or ReasonNone when
// the outcome resolved.
func (o Outcome) Reason() Reason {
	if o.Resolved() || len(o.Attempts) == 0 {
		return ReasonNone
	}
	return o.Attempts[len(o.Attempts)-1].Reason
}

type Diagnostics struct {
	A Outcome `json:"a"`
	B Outcome `json:"b"`
}

// RateSample pairs both exchanges' rates for one symbol. AbsDiff is set
// only when both rates are present; otherwise all three are nil.
type RateSample struct {
	Symbol      string           `json:"symbol"`
	RateA       *decimal.Decimal `json:"rate_a"`
	RateB       *decimal.Decimal `json:"rate_b"`
	AbsDiff     *decimal.Decimal `json:"abs_diff"`
	FetchedAt   time.Time        `json:"fetched_at"`
	Diagnostics Diagnostics      `json:"diagnostics"`
}

// NewRateSample builds a sample from the two outcomes.
func NewRateSample(symbol string, a, b Outcome, fetchedAt time.Time) RateSample {
	s := RateSample{
		Symbol:      symbol,
		FetchedAt:   fetchedAt,
		Diagnostics: Diagnostics{A: a, B: b},
	}
	if a.Rate == nil || b.Rate == nil {
		return s
	}
	ra, rb := *a.Rate, *b.Rate
	diff := ra.Sub(rb).Abs()
	s.RateA, s.RateB, s.AbsDiff = &ra, &rb, &diff
	return s
}

func (s RateSample) Erroneous() bool {
	return s.AbsDiff == nil
}

// ReconciliationResult is the immutable output of one refresh cycle.
type ReconciliationResult struct {
	CycleID       uuid.UUID        `json:"cycle_id"`
	StartedAt     time.Time        `json:"started_at"`
	CompletedAt   time.Time        `json:"completed_at"`
	Samples       []RateSample     `json:"samples"`
	Total         int              `json:"total"`
	Errors        int              `json:"errors"`
	MaxDiff       *decimal.Decimal `json:"max_diff"`
	MaxDiffSymbol string           `json:"max_diff_symbol"`
}

// Active is the number of symbols with both rates present.
func (r *ReconciliationResult) Active() int {
	return r.Total - r.Errors
}

func (r *ReconciliationResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// LastResult is the snapshot handed to renderers. The zero value means no
// cycle has completed yet.
type LastResult struct {
	Result      *ReconciliationResult
	RefreshedAt time.Time
	Interval    time.Duration
}

func (l LastResult) HasData() bool {
	return l.Result != nil
}
