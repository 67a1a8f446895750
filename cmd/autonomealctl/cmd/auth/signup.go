package auth

import (
	"context"

	"github.com/autonomeal/autonomeal/cmd/autonomealctl/internal/client"
	"github.com/autonomeal/autonomeal/cmd/autonomealctl/internal/config"
	"github.com/autonomeal/autonomeal/pkg/gate"
	"github.com/autonomeal/autonomeal/pkg/sdk"
	"github.com/spf13/cobra"
)

var signupInput sdk.SignupInput

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an Autonomeal account",
	Long:  `Creates an account and logs in to it. Missing values are prompted for unless --non-interactive is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.MustFromContext(cmd.Context())
		env, err := cfg.Env(cmd.Context())
		if err != nil {
			return err
		}

		return env.Host.AnonymousOnly(cmd.Context(), gate.ViewFunc(func(ctx context.Context) error {
			in := signupInput
			var err error
			if in.Username, err = promptFn(cmd.Context(), in.Username, "Username", false); err != nil {
				return err
			}
			if in.Email, err = promptFn(cmd.Context(), in.Email, "Email", false); err != nil {
				return err
			}
			if in.Password, err = promptFn(cmd.Context(), in.Password, "Password", true); err != nil {
				return err
			}

			ctx, cancel := client.EnsureTimeout(ctx, cfg.Timeout)
			defer cancel()
			_, err = env.Session.Register(ctx, in)
			return err
		}))
	},
}

func init() {
	signupCmd.Flags().StringVarP(&signupInput.Username, "username", "u", "", "Username")
	signupCmd.Flags().StringVarP(&signupInput.Password, "password", "p", "", "Password")
	signupCmd.Flags().StringVar(&signupInput.Email, "email", "", "Email address")
	signupCmd.Flags().StringVar(&signupInput.Name, "name", "", "Display name")
}
