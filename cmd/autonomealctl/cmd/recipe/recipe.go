package recipe

import (
	"context"

	"github.com/autonomeal/autonomeal/cmd/autonomealctl/internal/client"
	"github.com/autonomeal/autonomeal/cmd/autonomealctl/internal/config"
	"github.com/autonomeal/autonomeal/pkg/gate"
	"github.com/autonomeal/autonomeal/pkg/sdk"
	"github.com/spf13/cobra"
)

// RecipeCmd is the parent command for recipe operations
var RecipeCmd = &cobra.Command{
	Use:   "recipe",
	Short: "Generate, analyze and manage recipes",
	Long:  `Commands for generating recipes and dish images, analyzing dish photos and managing saved recipes. All of them require a logged-in session.`,
}

func init() {
	RecipeCmd.AddCommand(generateCmd)
	RecipeCmd.AddCommand(imageCmd)
	RecipeCmd.AddCommand(analyzeCmd)
	RecipeCmd.AddCommand(listCmd)
	RecipeCmd.AddCommand(getCmd)
	RecipeCmd.AddCommand(saveCmd)
}

// protected runs fn behind the authenticated gate.
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
