package main

import (
	"bytes"
	"strings"
	"testing"

	"fundingwatch/internal/presenter"
)

func TestPrintTableNoData(t *testing.T) {
	var buf bytes.Buffer
	if err := printTable(&buf, presenter.View{}); err != nil {
		t.Fatalf("printTable: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "No data available" {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestPrintTableRows(t *testing.T) {
	view := presenter.View{
		HasData:     true,
		Title:       "Binance vs Bybit Funding Rate Comparison",
		ExchangeA:   "Binance",
		ExchangeB:   "Bybit",
		Cards:       []presenter.Card{{Label: "Max Difference", Value: "0.0200%", Delta: "ETHUSDT"}},
		LastUpdated: "2024-01-01 00:00:00",
		Rows: []presenter.Row{
			{Symbol: "BTCUSDT", A: presenter.Cell{Text: "0.0100%"}, B: presenter.Cell{Text: "0.0100%"}, Diff: presenter.Cell{Text: "0.0000%"}},
			{Symbol: "ETHUSDT", A: presenter.Cell{Text: "0.0300%"}, B: presenter.Cell{Text: "0.0100%"}, Diff: presenter.Cell{Text: "0.0200%", Significant: true}},
		},
	}

	var buf bytes.Buffer
	if err := printTable(&buf, view); err != nil {
		t.Fatalf("printTable: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Max Difference: 0.0200% (ETHUSDT)", "SYMBOL", "BTCUSDT", "0.0200%*", "Last updated: 2024-01-01 00:00:00"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}
