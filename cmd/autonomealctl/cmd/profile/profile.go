package profile

import (
	"context"

	"github.com/autonomeal/autonomeal/cmd/autonomealctl/internal/client"
	"github.com/autonomeal/autonomeal/cmd/autonomealctl/internal/config"
	"github.com/autonomeal/autonomeal/pkg/gate"
	"github.com/autonomeal/autonomeal/pkg/sdk"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// ProfileCmd is the parent command for profile operations
var ProfileCmd = &cobra.Command{
	Use:   "profile",
	Short: "View and update your profile",
}

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Show your profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return protected(cmd, func(ctx context.Context, c *sdk.Client) error {
			p, err := c.GetProfile(ctx)
			if err != nil {
				return err
			}
			printProfile(p)
			return nil
		})
	},
}

var (
	updateEmail string
	updateName  string
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update your profile",
	Long:  `Changes the fields given as flags and leaves the others as they are.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var update sdk.ProfileUpdate
		if cmd.Flags().Changed("email") {
			update.Email = &updateEmail
		}
		if cmd.Flags().Changed("name") {
			update.Name = &updateName
		}
		if update.Email == nil && update.Name == nil {
			pterm.Info.Println("Nothing to update; pass --email or --name")
			return nil
		}

		return protected(cmd, func(ctx context.Context, c *sdk.Client) error {
			p, err := c.UpdateProfile(ctx, update)
			if err != nil {
				return err
			}
			pterm.Success.Println("Profile updated")
			printProfile(p)
			return nil
		})
	},
}

func init() {
	updateCmd.Flags().StringVar(&updateEmail, "email", "", "New email address")
	updateCmd.Flags().StringVar(&updateName, "name", "", "New display name")

	ProfileCmd.AddCommand(getCmd)
	ProfileCmd.AddCommand(updateCmd)
}

func protected(cmd *cobra.Command, fn func(ctx context.Context, c *sdk.Client) error) error {
	cfg := config.MustFromContext(cmd.Context())
	env, err := cfg.Env(cmd.Context())
	if err != nil {
		return err
	}

	ctx, cancel := client.EnsureTimeout(cmd.Context(), cfg.Timeout)
	defer cancel()

	return env.Host.Protected(ctx, gate.ViewFunc(func(ctx context.Context) error {
		return fn(ctx, env.Client)
	}))
}

func printProfile(p *sdk.Profile) {
	_ = pterm.DefaultTable.WithData(pterm.TableData{
		{"Username", p.Username},
		{"Email", p.Email},
		{"Name", p.Name},
	}).Render()
}
