package recipe

import (
	"context"

	"github.com/autonomeal/autonomeal/pkg/sdk"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a saved recipe",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return protected(cmd, func(ctx context.Context, c *sdk.Client) error {
			r, err := c.GetRecipe(ctx, args[0])
			if err != nil {
				return err
			}
			printRecipe(c, r)
			return nil
		})
	},
}

func printRecipe(c *sdk.Client, r *sdk.Recipe) {
	pterm.DefaultSection.Println(r.Title)
	if r.Description != "" {
		pterm.Println(r.Description)
	}
	pterm.Printf("Difficulty: %s  Cook time: %s  Rating: %.1f\n", r.Difficulty, r.CookTime, r.Rating)
	if r.Image != "" {
		pterm.Printf("Image: %s\n", c.ImageURL(r.Image))
	}
	if len(r.Ingredients) > 0 {
		pterm.DefaultSection.WithLevel(2).Println("Ingredients")
		items := make([]pterm.BulletListItem, 0, len(r.Ingredients))
		for _, ing := range r.Ingredients {
			items = append(items, pterm.BulletListItem{Level: 0, Text: ing})
		}
		_ = pterm.DefaultBulletList.WithItems(items).Render()
	}
	if len(r.Steps) > 0 {
		pterm.DefaultSection.WithLevel(2).Println("Steps")
		for i, step := range r.Steps {
			pterm.Printf("%d. %s\n", i+1, step)
		}
	}
}
