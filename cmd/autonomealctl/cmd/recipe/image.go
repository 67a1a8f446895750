package recipe

import (
	"context"
	"strings"

	"github.com/autonomeal/autonomeal/pkg/sdk"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var imageCmd = &cobra.Command{
	Use:   "image <dish name>",
	Short: "Generate a picture of a dish",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dish := strings.Join(args, " ")
		return protected(cmd, func(ctx context.Context, c *sdk.Client) error {
			img, err := c.GenerateDishImage(ctx, dish)
			if err != nil {
				return err
			}
			pterm.Success.Printf("Image for %s: %s\n", dish, c.ImageURL(img.ImageURL))
			return nil
		})
	},
}
