package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"tradesync/internal/domain"
	syncsvc "tradesync/internal/service/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync trades from connected platforms",
	Long: `Sync trades for one account or for every active account.

Examples:
  synctl sync --account 6f1c2a9e-...
  synctl sync --start 2026-08-01 --end 2026-08-30
  synctl sync --no-update`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

var (
	syncAccountID string
	syncStart     string
	syncEnd       string
	syncNoUpdate  bool
)

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().StringVar(&syncAccountID, "account", "", "sync only this account id")
	syncCmd.Flags().StringVar(&syncStart, "start", "", "start date (YYYY-MM-DD)")
	syncCmd.Flags().StringVar(&syncEnd, "end", "", "end date (YYYY-MM-DD)")
	syncCmd.Flags().BoolVar(&syncNoUpdate, "no-update", false, "do not overwrite trades already stored")
}

func runSync(cmd *cobra.Command, args []string) error {
	payload := map[string]interface{}{}
	if syncStart != "" {
		payload["start_date"] = syncStart
	}
	if syncEnd != "" {
		payload["end_date"] = syncEnd
	}
	if syncNoUpdate {
		payload["update_existing"] = false
	}

	if syncAccountID != "" {
		var result domain.SyncResult
		if err := callAPI("POST", "/accounts/"+syncAccountID+"/sync", payload, &result); err != nil {
			return err
		}
		printResult(result)
		if !result.Success {
			return fmt.Errorf("sync failed: %s", result.ErrorMessage)
		}
		return nil
	}

	var resp struct {
		Summary syncsvc.Summary     `json:"summary"`
		Results []domain.SyncResult `json:"results"`
	}
	if err := callAPI("POST", "/sync", payload, &resp); err != nil {
		return err
	}
	for _, result := range resp.Results {
		printResult(result)
	}
	s := resp.Summary
	fmt.Printf("\n%d accounts: %d ok, %d failed; %d fetched, %d created, %d updated, %d skipped (%dms)\n",
		s.Accounts, s.Succeeded, s.Failed, s.TradesFetched, s.TradesCreated, s.TradesUpdated, s.TradesSkipped, s.TotalMs)
	if s.Failed > 0 {
		return fmt.Errorf("%d account(s) failed to sync", s.Failed)
	}
	return nil
}

func printResult(r domain.SyncResult) {
	status := "ok"
	if !r.Success {
		status = "FAILED: " + r.ErrorMessage
	}
	fmt.Printf("%-36s  %-8s  fetched=%d created=%d updated=%d skipped=%d errors=%d  %s\n",
		r.AccountID, r.PlatformID, r.TradesFetched, r.TradesCreated, r.TradesUpdated,
		r.TradesSkipped, r.ErrorCount, status)
}
