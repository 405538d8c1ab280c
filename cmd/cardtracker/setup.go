package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/cardtracker/pkg/client"
)

var setupForce bool

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Authorize access to the Gmail mailbox",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		return runSetup(cmd, a, setupForce)
	},
}

func init() {
	setupCmd.Flags().BoolVar(&setupForce, "force", false, "re-authenticate even if a token exists")
}

// runSetup handles the OAuth setup flow.
func runSetup(cmd *cobra.Command, a *app, force bool) error {
	fmt.Println("=== cardtracker Setup ===")
	fmt.Println()

	secretsPath := a.cfg.ClientSecretFile
	tokenFile := a.cfg.TokenFile

	if _, err := os.Stat(secretsPath); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("credentials file not found: %s\n\nTo get your credentials:\n"+
			"1. Go to https://console.cloud.google.com/apis/credentials\n"+
			"2. Create an OAuth 2.0 Client ID (Desktop application)\n"+
			"3. Download the JSON file and save it as '%s'", secretsPath, secretsPath)
	}

	if !force {
		if _, err := os.Stat(tokenFile); err == nil {
			fmt.Printf("Already authenticated! Token file exists: %s\n", tokenFile)
			fmt.Println()
			fmt.Println("To re-authenticate, run: cardtracker setup --force")
			return nil
		}
	}

	if force {
		if err := os.Remove(tokenFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			a.logger.Warn("failed to remove existing token", "error", err)
		}
		fmt.Println("Forcing re-authentication...")
		fmt.Println()
	}

	registry, err := newRegistry()
	if err != nil {
		return err
	}
	scopes, err := registry.Scopes("gmail")
	if err != nil {
		return err
	}

	fmt.Println("This will set up OAuth authentication with Google.")
	fmt.Println()
	fmt.Println("Required permissions:")
	fmt.Println("  - Gmail: Read and modify emails (to mark stored notifications as read)")
	fmt.Println()
	fmt.Println("Starting authentication...")
	fmt.Println()

	if _, err := client.New(cmd.Context(), a.oauthConfig(scopes), a.logger); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	fmt.Println()
	fmt.Println("=== Setup Complete ===")
	fmt.Println()
	fmt.Printf("Token saved to: %s\n", tokenFile)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Start PostgreSQL and set POSTGRES_* (or CARDTRACKER_STORE=memory for a dry run)")
	fmt.Println("  2. Run 'cardtracker sync' to import card notifications")
	fmt.Println()

	return nil
}
