package rate

import (
	"strings"

	"fundingwatch/internal/metrics"
	"fundingwatch/logger"
)

// ReportRateLimitExceeded emits a rate_limit_exceeded counter for the exchange
// endpoint and logs a warning.
func ReportRateLimitExceeded(log *logger.Log, exchange, symbol, endpoint string) {
	component := strings.ToLower(exchange) + "_fetcher"
	fields := logger.Fields{
		"exchange": strings.ToLower(exchange),
		"symbol":   symbol,
		"endpoint": endpoint,
	}
	metrics.EmitMetric(log, component, "rate_limit_exceeded", int64(1), "counter", fields)
	log.WithComponent(component).WithFields(fields).Warn("rate limit exceeded")
}

// ReportIPBan emits an ip_ban counter for the exchange endpoint and logs an error.
func ReportIPBan(log *logger.Log, exchange, symbol, endpoint string) {
	component := strings.ToLower(exchange) + "_fetcher"
	fields := logger.Fields{
		"exchange": strings.ToLower(exchange),
		"symbol":   symbol,
		"endpoint": endpoint,
	}
	metrics.EmitMetric(log, component, "ip_ban", int64(1), "counter", fields)
	log.WithComponent(component).WithFields(fields).Error("ip banned")
}

// detectLimit inspects an exchange error message (or HTTP status text) and
// reports whether it signals a rate limit or an IP ban. Wording differs per
// exchange.
func detectLimit(exchange, msg string) (rateLimit bool, ipBan bool) {
	lowerMsg := strings.ToLower(msg)
	switch strings.ToLower(exchange) {
	case "binance":
		rateLimit = strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "code=-1003")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban")
	case "bybit":
		ipBan = strings.Contains(lowerMsg, "ip rate limit") || (strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban"))
		rateLimit = !ipBan && (strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "too many visits"))
	default:
		rateLimit = strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "too many requests")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban")
	}
	return
}

// ReportLimitFromMessage records rate limit or IP ban events found in msg.
// Nothing happens when the message matches neither.
func ReportLimitFromMessage(log *logger.Log, exchange, symbol, endpoint, msg string) {
	rateLimit, ipBan := detectLimit(exchange, msg)
	if rateLimit {
		ReportRateLimitExceeded(log, exchange, symbol, endpoint)
	}
	if ipBan {
		ReportIPBan(log, exchange, symbol, endpoint)
	}
}
