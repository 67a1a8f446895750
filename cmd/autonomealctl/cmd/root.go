package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/autonomeal/autonomeal/cmd/autonomealctl/cmd/auth"
	"github.com/autonomeal/autonomeal/cmd/autonomealctl/cmd/profile"
	"github.com/autonomeal/autonomeal/cmd/autonomealctl/cmd/recipe"
	"github.com/autonomeal/autonomeal/cmd/autonomealctl/internal/client"
	"github.com/autonomeal/autonomeal/cmd/autonomealctl/internal/config"
	"github.com/autonomeal/autonomeal/internal/telemetry"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// Version is stamped at build time.
var Version = "dev"

var (
	configFile        string
	shutdownTelemetry = func(context.Context) error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "autonomealctl",
	Short: "Autonomeal CLI - recipes from your terminal",
	Long: `autonomealctl is the command-line client for Autonomeal. Use it to sign in,
generate and analyze recipes, and manage your saved recipes and profile.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v := config.NewViper()
		for key, flag := range map[string]string{
			"server":          "server",
			"debug":           "debug",
			"token":           "token",
			"timeout":         "timeout",
			"non_interactive": "non-interactive",
		} {
			if err := v.BindPFlag(key, cmd.Root().PersistentFlags().Lookup(flag)); err != nil {
				return fmt.Errorf("failed to bind --%s: %w", flag, err)
			}
		}

		settings, err := config.Load(v, configFile)
		if err != nil {
			return err
		}

		level := slog.LevelWarn
		if settings.Debug {
			level = slog.LevelDebug
			pterm.EnableDebugMessages()
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		shutdown, err := telemetry.Init(cmd.Context(), telemetry.Config{
			OTLPEndpoint:   settings.OTLPEndpoint,
			ServiceName:    "autonomealctl",
			ServiceVersion: Version,
		}, logger)
		if err != nil {
			return err
		}
		shutdownTelemetry = shutdown

		dir, err := config.Dir()
		if err != nil {
			return err
		}
		provider := client.NewProvider(settings.ServerURL, dir, settings.Timeout, logger)
		if settings.Token != "" {
			provider.SetBearerToken(settings.Token)
		}

		cfg := &config.GlobalConfig{
			Settings:       *settings,
			Logger:         logger,
			ClientProvider: provider,
		}
		cmd.SetContext(config.InjectConfig(cmd.Context(), cfg))
		return nil
	},
}

// Execute runs the root command
func Execute() {
	err := rootCmd.Execute()
	flushTelemetry()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func flushTelemetry() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTelemetry(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}
	shutdownTelemetry = func(context.Context) error { return nil }
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("server", config.DefaultServerURL, "Autonomeal server URL (env AUTONOMEAL_SERVER)")
	flags.Bool("debug", false, "Enable debug logging")
	flags.String("token", "", "Ephemeral bearer token sent with every request; never stored")
	flags.Duration("timeout", config.DefaultTimeout, "Per-request timeout")
	flags.Bool("non-interactive", false, "Disable interactive prompts (also set via AUTONOMEAL_NON_INTERACTIVE=1)")
	flags.StringVar(&configFile, "config", "", "Config file (default ~/.autonomeal/config.yaml)")

	rootCmd.AddCommand(auth.AuthCmd)
	rootCmd.AddCommand(recipe.RecipeCmd)
	rootCmd.AddCommand(profile.ProfileCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.Version = Version
}
