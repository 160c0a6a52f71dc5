package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"tradesync/internal/domain"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List connected brokerage accounts",
	Args:  cobra.NoArgs,
	RunE:  runAccounts,
}

func init() {
	rootCmd.AddCommand(accountsCmd)
}

func runAccounts(cmd *cobra.Command, args []string) error {
	var resp struct {
		Accounts []domain.Account `json:"accounts"`
	}
	if err := callAPI("GET", "/accounts", nil, &resp); err != nil {
		return err
	}
	if len(resp.Accounts) == 0 {
		fmt.Println("no accounts connected")
		return nil
	}
	for _, a := range resp.Accounts {
		lastSync := "never"
		if a.LastSyncAt != nil {
			lastSync = a.LastSyncAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%-36s  %-8s  %-10s  last sync: %s  %s\n",
			a.ID, a.PlatformID, a.SyncStatus, lastSync, a.DisplayName)
	}
	return nil
}
