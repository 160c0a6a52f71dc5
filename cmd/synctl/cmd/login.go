package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Obtain an API token",
	Args:  cobra.NoArgs,
	RunE:  runLogin,
}

var (
	loginEmail    string
	loginPassword string
)

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "account password")
	_ = loginCmd.MarkFlagRequired("email")
	_ = loginCmd.MarkFlagRequired("password")
}

func runLogin(cmd *cobra.Command, args []string) error {
	var resp struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expires_at"`
	}
	err := callAPI("POST", "/auth/login", map[string]string{
		"email":    loginEmail,
		"password": loginPassword,
	}, &resp)
	if err != nil {
		return err
	}
	fmt.Printf("token (valid until %s):\n%s\n", resp.ExpiresAt, resp.Token)
	fmt.Println("\nexport TRADESYNC_TOKEN=" + resp.Token)
	return nil
}
