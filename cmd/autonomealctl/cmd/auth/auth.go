package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/autonomeal/autonomeal/cmd/autonomealctl/internal/config"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// AuthCmd is the parent command for auth operations
var AuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage authentication",
	Long:  `Commands for signing in, signing up, signing out and checking login status.`,
}

func init() {
	AuthCmd.AddCommand(loginCmd)
	AuthCmd.AddCommand(signupCmd)
	AuthCmd.AddCommand(logoutCmd)
	AuthCmd.AddCommand(statusCmd)
}

// promptFn is swapped out in tests.
var promptFn = prompt

// prompt fills value interactively when it is empty, or fails in non-interactive mode.
func prompt(ctx context.Context, value, label string, secret bool) (string, error) {
	if strings.TrimSpace(value) != "" {
		return value, nil
	}
	cfg := config.MustFromContext(ctx)
	if cfg.NonInteractive {
		return "", errors.New(strings.ToLower(label) + " is required in non-interactive mode")
	}
	input := pterm.DefaultInteractiveTextInput
	if secret {
		input = *input.WithMask("*")
	}
	return input.Show(label)
}
