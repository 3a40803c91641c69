package main

import (
	"fmt"
	"strings"

	"github.com/MrEthical07/dramauth"
	"github.com/spf13/cobra"
)

var (
	inviteName string
	inviteRole string
)

func init() {
	inviteCmd.Flags().StringVar(&inviteName, "name", "", "display name of the new member")
	inviteCmd.Flags().StringVar(&inviteRole, "role", string(dramauth.RoleUser), "role of the new member (USER or ADMIN)")
	rootCmd.AddCommand(inviteCmd)
}

var inviteCmd = &cobra.Command{
	Use:   "invite EMAIL",
	Short: "Create an unregistered account and send its registration link",
	Long: `Create an unregistered account for EMAIL and mail a registration link.
Inviting an address that has not finished registration replaces its link.

Examples:
  dramauthctl invite bob@example.com --name Bob
  dramauthctl invite alice@example.com --role ADMIN`,
	Args: cobra.ExactArgs(1),
	RunE: runInvite,
}

func runInvite(cmd *cobra.Command, args []string) error {
	rt, err := openApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	account, err := rt.engine.InviteAccount(cmd.Context(), dramauth.InviteRequest{
		Email: args[0],
		Name:  inviteName,
		Role:  dramauth.Role(strings.ToUpper(inviteRole)),
	})
	if err != nil {
		return fmt.Errorf("invite %s: %s", args[0], dramauth.KindOf(err))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "invited %s (%s)\n", account.Email, account.ID)
	return nil
}
