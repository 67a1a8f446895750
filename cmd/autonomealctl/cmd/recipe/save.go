package recipe

import (
	"context"
	"fmt"
	"slices"

	"github.com/autonomeal/autonomeal/pkg/sdk"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var difficulties = []string{"Beginner", "Intermediate", "Advanced"}

var saveInput sdk.RecipeInput

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save a recipe",
	Args:  cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if saveInput.Difficulty != "" && !slices.Contains(difficulties, saveInput.Difficulty) {
			return fmt.Errorf("invalid --difficulty %q: must be one of %v", saveInput.Difficulty, difficulties)
		}
		if saveInput.Rating < 0 || saveInput.Rating > 5 {
			return fmt.Errorf("invalid --rating %.1f: must be between 0 and 5", saveInput.Rating)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return protected(cmd, func(ctx context.Context, c *sdk.Client) error {
			saved, err := c.SaveRecipe(ctx, saveInput)
			if err != nil {
				return err
			}
			pterm.Success.Printf("Saved %q as %s\n", saved.Title, saved.ID)
			return nil
		})
	},
}

func init() {
	f := saveCmd.Flags()
	f.StringVar(&saveInput.Title, "title", "", "Recipe title (required)")
	f.StringVar(&saveInput.Description, "description", "", "Short description")
	f.StringVar(&saveInput.Difficulty, "difficulty", "", "Beginner, Intermediate or Advanced")
	f.StringVar(&saveInput.CookTime, "cook-time", "", "Cook time, e.g. \"30 min\"")
	f.Float64Var(&saveInput.Rating, "rating", 0, "Rating from 0 to 5")
	f.StringVar(&saveInput.Image, "image", "", "Image URL or server path")
	f.StringSliceVar(&saveInput.Ingredients, "ingredient", nil, "Ingredient (repeatable)")
	f.StringArrayVar(&saveInput.Steps, "step", nil, "Preparation step (repeatable)")
	_ = saveCmd.MarkFlagRequired("title")
}
