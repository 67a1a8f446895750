package auth

import (
	"github.com/autonomeal/autonomeal/cmd/autonomealctl/internal/config"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out from Autonomeal",
	Long:  `Ends the session on the server when reachable and always removes the local credential.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.MustFromContext(cmd.Context())
		env, err := cfg.Env(cmd.Context())
		if err != nil {
			return err
		}

		env.Session.Logout(cmd.Context())
		pterm.Success.Println("Logged out successfully")
		return nil
	},
}
