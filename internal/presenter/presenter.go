package presenter

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"fundingwatch/internal/model"
)

// Color is the display category of a rate cell.
type Color string

const (
	ColorPositive Color = "positive"
	ColorNegative Color = "negative"
	ColorNeutral  Color = "neutral"
	ColorError    Color = "error"
)

const (
	errText         = "ERR"
	timestampLayout = "2006-01-02 15:04:05"
	debugTimeLayout = "15:04:05"
)

// significantDiff is the absolute difference above which a row is highlighted.
var significantDiff = decimal.New(1, -4)

// FormatRate renders a decimal funding rate as a percentage string. Values
// are formatted through float64 so rounding matches printf-style output.
func FormatRate(rate *decimal.Decimal) string {
	if rate == nil {
		return errText
	}
	f, _ := rate.Float64()
	p := f * 100
	switch abs := math.Abs(p); {
	case abs >= 0.001:
		return fmt.Sprintf("%.4f%%", p)
	case abs >= 0.0001:
		return fmt.Sprintf("%.5f%%", p)
	default:
		return fmt.Sprintf("%.2e%%", p)
	}
}

func ClassifyColor(rate *decimal.Decimal) Color {
	if rate == nil {
		return ColorError
	}
	switch rate.Sign() {
	case 1:
		return ColorPositive
	case -1:
		return ColorNegative
	default:
		return ColorNeutral
	}
}

// IsSignificant reports whether diff is present and above 0.0001.
func IsSignificant(diff *decimal.Decimal) bool {
	return diff != nil && diff.GreaterThan(significantDiff)
}

type Card struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Delta string `json:"delta,omitempty"`
}

type Cell struct {
	Text        string `json:"text"`
	Color       Color  `json:"color"`
	Significant bool   `json:"significant"`
}

type Row struct {
	Symbol string `json:"symbol"`
	A      Cell   `json:"a"`
	B      Cell   `json:"b"`
	Diff   Cell   `json:"diff"`
}

// DebugEntry is the raw per-symbol view shown in the debug section.
type DebugEntry struct {
	Symbol  string    `json:"symbol"`
	A       DebugSide `json:"a"`
	B       DebugSide `json:"b"`
	Fetched string    `json:"fetched"`
}

type DebugSide struct {
	Exchange string          `json:"exchange"`
	Raw      string          `json:"raw"`
	Endpoint string          `json:"endpoint,omitempty"`
	Attempts []model.Attempt `json:"attempts,omitempty"`
	Latency  string          `json:"latency"`
}

// View is everything a renderer needs for one page.
type View struct {
	HasData      bool         `json:"has_data"`
	Title        string       `json:"title"`
	ExchangeA    string       `json:"exchange_a"`
	ExchangeB    string       `json:"exchange_b"`
	Cards        []Card       `json:"cards"`
	Rows         []Row        `json:"rows"`
	LastUpdated  string       `json:"last_updated"`
	IntervalText string       `json:"interval_text"`
	IntervalMs   int64        `json:"interval_ms"`
	CycleID      string       `json:"cycle_id,omitempty"`
	Debug        []DebugEntry `json:"debug"`
}

// BuildView turns the driver's last result into a render-ready View.
func BuildView(last model.LastResult) View {
	a, b := model.ExchangeBinance, model.ExchangeBybit
	v := View{
		ExchangeA:    a.DisplayName(),
		ExchangeB:    b.DisplayName(),
		IntervalText: IntervalText(last.Interval),
		IntervalMs:   last.Interval.Milliseconds(),
		Cards:        []Card{},
		Rows:         []Row{},
		Debug:        []DebugEntry{},
	}
	v.Title = v.ExchangeA + " vs " + v.ExchangeB + " Funding Rate Comparison"

	res := last.Result
	if res == nil {
		return v
	}
	if len(res.Samples) > 0 {
		a = res.Samples[0].Diagnostics.A.Exchange
		b = res.Samples[0].Diagnostics.B.Exchange
		v.ExchangeA, v.ExchangeB = a.DisplayName(), b.DisplayName()
		v.Title = v.ExchangeA + " vs " + v.ExchangeB + " Funding Rate Comparison"
	}

	v.HasData = true
	v.CycleID = res.CycleID.String()
	v.LastUpdated = last.RefreshedAt.Format(timestampLayout)
	v.Cards = []Card{
		{Label: "Total Symbols", Value: strconv.Itoa(res.Total)},
		{Label: "Active Pairs", Value: strconv.Itoa(res.Active())},
		{Label: "Errors", Value: strconv.Itoa(res.Errors)},
		{Label: "Max Difference", Value: FormatRate(res.MaxDiff), Delta: res.MaxDiffSymbol},
	}

	v.Rows = make([]Row, 0, len(res.Samples))
	v.Debug = make([]DebugEntry, 0, len(res.Samples))
	for _, s := range res.Samples {
		v.Rows = append(v.Rows, buildRow(s))
		v.Debug = append(v.Debug, DebugEntry{
			Symbol:  s.Symbol,
			A:       debugSide(s.Diagnostics.A),
			B:       debugSide(s.Diagnostics.B),
			Fetched: s.FetchedAt.Format(debugTimeLayout),
		})
	}
	return v
}

func buildRow(s model.RateSample) Row {
	return Row{
		Symbol: s.Symbol,
		A:      Cell{Text: FormatRate(s.RateA), Color: ClassifyColor(s.RateA)},
		B:      Cell{Text: FormatRate(s.RateB), Color: ClassifyColor(s.RateB)},
		Diff:   diffCell(s.AbsDiff),
	}
}

func diffCell(diff *decimal.Decimal) Cell {
	c := Cell{Text: FormatRate(diff), Color: ColorNeutral, Significant: IsSignificant(diff)}
	if diff == nil {
		c.Color = ColorError
	}
	return c
}

func debugSide(o model.Outcome) DebugSide {
	raw := "None"
	if o.Rate != nil {
		raw = o.Rate.String()
	}
	return DebugSide{
		Exchange: o.Exchange.DisplayName(),
		Raw:      raw,
		Endpoint: o.Endpoint,
		Attempts: o.Attempts,
		Latency:  o.Latency.Round(time.Millisecond).String(),
	}
}

// IntervalText describes the refresh cadence, e.g. "Auto-refreshes every 30 seconds".
func IntervalText(d time.Duration) string {
	if d <= 0 {
		return "Auto-refresh disabled"
	}
	if d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "Auto-refreshes every minute"
		}
		return fmt.Sprintf("Auto-refreshes every %d minutes", m)
	}
	if d%time.Second == 0 {
		return fmt.Sprintf("Auto-refreshes every %d seconds", int(d/time.Second))
	}
	return "Auto-refreshes every " + d.String()
}
