package platform

import (
	"strings"
	"time"

	"tradesync/internal/domain"
)

// sideFromTransaction maps a platform's BUY/SELL transaction type onto the
// ledger's LONG/SHORT convention.
func sideFromTransaction(transactionType string) domain.TradeSide {
	if strings.EqualFold(strings.TrimSpace(transactionType), "SELL") {
		return domain.SideShort
	}
	return domain.SideLong
}

// parseTime tries each layout in order; zero time when nothing matches.
func parseTime(value string, layouts ...string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func withinRange(ts time.Time, start, end *time.Time) bool {
	if start != nil && ts.Before(*start) {
		return false
	}
	if end != nil && ts.After(*end) {
		return false
	}
	return true
}

func matchesSymbol(symbol, filter string) bool {
	return filter == "" || strings.EqualFold(symbol, filter)
}

func fptr(v float64) *float64 { return &v }

func dateParam(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	return ts.UTC().Format("2006-01-02")
}
