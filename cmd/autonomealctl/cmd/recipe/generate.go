package recipe

import (
	"context"
	"strings"

	"github.com/autonomeal/autonomeal/pkg/sdk"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate <dish name>",
	Short: "Generate a recipe for a dish",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dish := strings.Join(args, " ")
		return protected(cmd, func(ctx context.Context, c *sdk.Client) error {
			spinner, _ := pterm.DefaultSpinner.Start("Generating recipe for " + dish)
			generated, err := c.GenerateRecipe(ctx, dish)
			if err != nil {
				spinner.Fail(err.Error())
				return err
			}
			spinner.Success("Recipe ready")
			pterm.DefaultSection.Println(dish)
			pterm.Println(generated.Recipe)
			return nil
		})
	},
}
