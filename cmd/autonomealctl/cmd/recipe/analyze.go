package recipe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/autonomeal/autonomeal/pkg/sdk"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <image file>",
	Short: "Analyze a photo of a dish",
	Long:  `Uploads a .png, .jpg, .jpeg or .gif photo and prints what the server recognized in it.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		return protected(cmd, func(ctx context.Context, c *sdk.Client) error {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open image: %w", err)
			}
			defer f.Close()

			analysis, err := c.AnalyzeImage(ctx, filepath.Base(path), f)
			if err != nil {
				return err
			}
			pterm.DefaultSection.Println("Analysis")
			pterm.Println(analysis.Analysis)
			if analysis.ImageURL != "" {
				pterm.Info.Printf("Image: %s\n", c.ImageURL(analysis.ImageURL))
			}
			return nil
		})
	},
}
