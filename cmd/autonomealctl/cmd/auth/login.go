package auth

import (
	"context"

	"github.com/autonomeal/autonomeal/cmd/autonomealctl/internal/client"
	"github.com/autonomeal/autonomeal/cmd/autonomealctl/internal/config"
	"github.com/autonomeal/autonomeal/pkg/gate"
	"github.com/autonomeal/autonomeal/pkg/sdk"
	"github.com/spf13/cobra"
)

var (
	loginUsername string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to Autonomeal",
	Long: `Logs in with a username and password. The session cookie issued by the server is
stored in ~/.autonomeal/credentials.json and reused by later commands until it expires
or you log out. Missing values are prompted for unless --non-interactive is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.MustFromContext(cmd.Context())
		env, err := cfg.Env(cmd.Context())
		if err != nil {
			return err
		}

		// The timeout covers the login request only, never the time spent at the prompt.
		return env.Host.AnonymousOnly(cmd.Context(), gate.ViewFunc(func(ctx context.Context) error {
			username, err := promptFn(cmd.Context(), loginUsername, "Username", false)
			if err != nil {
				return err
			}
			password, err := promptFn(cmd.Context(), loginPassword, "Password", true)
			if err != nil {
				return err
			}

			ctx, cancel := client.EnsureTimeout(ctx, cfg.Timeout)
			defer cancel()
			_, err = env.Session.Login(ctx, sdk.LoginInput{Username: username, Password: password})
			return err
		}))
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Password")
}
