package symbols

import (
	"fmt"
	"strings"
)

// defaults is the watch list used when the configuration names none.
var defaults = []string{
	"BTCUSDT", "ETHUSDT", "SOLUSDT", "ADAUSDT", "DOTUSDT", "LINKUSDT", "XRPUSDT",
	"DOGEUSDT", "TRXUSDT", "ALGOUSDT", "BAKEUSDT", "THETAUSDT", "SUIUSDT", "AAVEUSDT",
	"UNIUSDT", "XLMUSDT", "BCHUSDT", "LTCUSDT", "TONUSDT", "NEARUSDT", "APTUSDT",
	"ETCUSDT", "WLDUSDT", "POLUSDT", "ICPUSDT", "ARBUSDT", "SEIUSDT", "FILUSDT",
}

// Default returns a fresh copy of the default watch list.
func Default() []string {
	out := make([]string, len(defaults))
	copy(out, defaults)
	return out
}

// Parse splits a comma separated list. Entries are trimmed but otherwise
// kept verbatim; a ticker an exchange does not know shows up as ERR. Empty
// entries are skipped and order is kept.
func Parse(list string) []string {
	parts := strings.Split(list, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Validate rejects an empty list, blank entries, entries with surrounding
// whitespace and duplicates. Symbols are otherwise opaque.
func Validate(list []string) error {
	if len(list) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	seen := make(map[string]int, len(list))
	for i, sym := range list {
		if strings.TrimSpace(sym) == "" {
			return fmt.Errorf("symbol at index %d is blank", i)
		}
		if strings.TrimSpace(sym) != sym {
			return fmt.Errorf("symbol %q at index %d has surrounding whitespace", sym, i)
		}
		if prev, ok := seen[sym]; ok {
			return fmt.Errorf("symbol %q is duplicated at index %d and %d", sym, prev, i)
		}
		seen[sym] = i
	}
	return nil
}
