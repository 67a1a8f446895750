package recipe

import (
	"context"
	"fmt"

	"github.com/autonomeal/autonomeal/pkg/sdk"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved recipes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return protected(cmd, func(ctx context.Context, c *sdk.Client) error {
			recipes, err := c.ListRecipes(ctx)
			if err != nil {
				return err
			}
			if len(recipes) == 0 {
				pterm.Info.Println("No saved recipes")
				return nil
			}

			data := pterm.TableData{{"ID", "Title", "Difficulty", "Cook Time", "Rating"}}
			for _, r := range recipes {
				data = append(data, []string{r.ID, r.Title, r.Difficulty, r.CookTime, fmt.Sprintf("%.1f", r.Rating)})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
		})
	},
}
