package cmd

import (
	"fmt"

	"github.com/autonomeal/autonomeal/cmd/autonomealctl/internal/client"
	"github.com/autonomeal/autonomeal/cmd/autonomealctl/internal/config"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the Autonomeal server is up",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.MustFromContext(cmd.Context())
		sdkClient, err := cfg.ClientProvider.SDKClient(cmd.Context())
		if err != nil {
			return err
		}

		ctx, cancel := client.EnsureTimeout(cmd.Context(), cfg.Timeout)
		defer cancel()

		status := sdkClient.Health(ctx)
		if status.Status != "ok" {
			pterm.Error.Printf("%s is %s\n", sdkClient.BaseURL(), status.Status)
			return fmt.Errorf("server unhealthy: %s", status.Error)
		}
		pterm.Success.Printf("%s is healthy\n", sdkClient.BaseURL())
		return nil
	},
}
