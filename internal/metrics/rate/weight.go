package rate

import (
	"net/http"
	"strconv"
	"strings"

	"fundingwatch/internal/metrics"
	"fundingwatch/logger"
)

// ReportBinanceWeight reads X-MBX-USED-WEIGHT-1m and records it. It returns
// false when the header is absent or unparsable.
func ReportBinanceWeight(log *logger.Log, header http.Header) (int64, bool) {
	usedStr := strings.TrimSpace(header.Get("X-MBX-USED-WEIGHT-1m"))
	if usedStr == "" {
		return 0, false
	}
	used, err := strconv.ParseInt(usedStr, 10, 64)
	if err != nil {
		log.WithComponent("binance_fetcher").WithFields(logger.Fields{
			"header": "X-MBX-USED-WEIGHT-1m",
			"value":  usedStr,
		}).WithError(err).Debug("failed to parse binance weight header")
		return 0, false
	}

	metrics.SetUsedWeight("binance", float64(used))
	metrics.EmitMetric(log, "binance_fetcher", "used_weight", used, "gauge", logger.Fields{"exchange": "binance"})
	return used, true
}

// ReportBybitWeight derives used weight from Bybit's limit headers. Bybit has
// renamed them over time, so both the X-Bapi-* and X-RateLimit-* variants
// are read.
func ReportBybitWeight(log *logger.Log, header http.Header) (int64, bool) {
	limitStr := header.Get("X-Bapi-Limit")
	if limitStr == "" {
		limitStr = header.Get("X-RateLimit-Limit")
	}
	remainingStr := header.Get("X-Bapi-Limit-Status")
	if remainingStr == "" {
		remainingStr = header.Get("X-RateLimit-Remaining")
	}
	if limitStr == "" || remainingStr == "" {
		return 0, false
	}

	limit, err := strconv.ParseInt(strings.TrimSpace(limitStr), 10, 64)
	if err != nil {
		return 0, false
	}
	remaining, err := strconv.ParseInt(strings.TrimSpace(remainingStr), 10, 64)
	if err != nil {
		return 0, false
	}

	used := limit - remaining
	if used < 0 {
		used = 0
	}

	metrics.SetUsedWeight("bybit", float64(used))
	metrics.EmitMetric(log, "bybit_fetcher", "used_weight", used, "gauge", logger.Fields{"exchange": "bybit"})
	return used, true
}
