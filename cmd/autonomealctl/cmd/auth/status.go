package auth

import (
	"github.com/autonomeal/autonomeal/cmd/autonomealctl/internal/client"
	"github.com/autonomeal/autonomeal/cmd/autonomealctl/internal/config"
	"github.com/autonomeal/autonomeal/pkg/session"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display authentication status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.MustFromContext(cmd.Context())
		env, err := cfg.Env(cmd.Context())
		if err != nil {
			return err
		}

		ctx, cancel := client.EnsureTimeout(cmd.Context(), cfg.Timeout)
		defer cancel()

		state := env.Session.EnsureResolved(ctx)

		pterm.DefaultSection.Println("Authentication Status")
		pterm.Info.Printf("Server: %s\n", env.Client.BaseURL())
		switch state.Status {
		case session.StatusAuthenticated:
			pterm.Success.Printf("Logged in as %s\n", state.Session.Username)
		case session.StatusAnonymous:
			pterm.Warning.Println("Not logged in")
		default:
			pterm.Warning.Printf("Session still %s\n", state.Status)
		}
		return nil
	},
}
