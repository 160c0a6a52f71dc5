package sync

import "tradesync/internal/domain"

type Summary struct {
	Accounts      int   `json:"accounts"`
	Succeeded     int   `json:"succeeded"`
	Failed        int   `json:"failed"`
	TradesFetched int   `json:"trades_fetched"`
	TradesCreated int   `json:"trades_created"`
	TradesUpdated int   `json:"trades_updated"`
	TradesSkipped int   `json:"trades_skipped"`
	ErrorCount    int   `json:"error_count"`
	TotalMs       int64 `json:"total_ms"`
}

// Summarize rolls a batch of per-account results into a single report for
// the batch endpoint and the CLI.
func Summarize(results []domain.SyncResult) Summary {
	var s Summary
	s.Accounts = len(results)
	for _, r := range results {
		if r.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
		s.TradesFetched += r.TradesFetched
		s.TradesCreated += r.TradesCreated
		s.TradesUpdated += r.TradesUpdated
		s.TradesSkipped += r.TradesSkipped
		s.ErrorCount += r.ErrorCount
		s.TotalMs += r.DurationMs
	}
	return s
}
