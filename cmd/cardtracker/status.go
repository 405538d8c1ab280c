package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/ArionMiles/cardtracker/pkg/client"
	"github.com/ArionMiles/cardtracker/pkg/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check configuration, credentials and connectivity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runStatus(cmd.Context())
	},
}

// runStatus checks the configuration and authentication status.
func runStatus(ctx context.Context) error {
	fmt.Println("=== cardtracker Status ===")
	fmt.Println()

	allGood := true

	fmt.Print("Configuration: ")
	a, err := loadApp()
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		printFinalStatus(false)
		return nil
	}
	fmt.Printf("✓ store=%s source=%s timezone=%s\n", a.cfg.Store, a.cfg.Source, a.cfg.Timezone)

	fmt.Print("Issuer rules: ")
	fmt.Printf("✓ %d issuers, %d trusted domains\n", len(a.table.Priority()), len(a.table.Domains()))

	checkStore(ctx, a, &allGood)

	switch a.cfg.Source {
	case config.SourceGmail:
		checkCredentials(a.cfg.ClientSecretFile, &allGood)
		if token := checkTokenStatus(a.cfg.TokenFile, &allGood); token != nil {
			checkAPIConnectivity(ctx, a, &allGood)
		}
	case config.SourceMbox:
		fmt.Printf("Mbox file (%s): ", a.cfg.MboxPath)
		if _, err := os.Stat(a.cfg.MboxPath); err != nil {
			fmt.Println("✗ Not found")
			allGood = false
		} else {
			fmt.Println("✓ Found")
		}
	}

	printFinalStatus(allGood)
	return nil
}

func checkStore(ctx context.Context, a *app, allGood *bool) {
	fmt.Printf("Store (%s): ", a.cfg.Store)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	st, err := a.openStore(ctx)
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		*allGood = false
		return
	}
	defer st.Close()

	rows, err := st.AllTimeByIssuer(ctx)
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		*allGood = false
		return
	}
	var count int64
	for _, r := range rows {
		count += r.Count
	}
	fmt.Printf("✓ Connected (%d verified transactions)\n", count)
}

func checkCredentials(secretsPath string, allGood *bool) {
	fmt.Printf("Credentials file (%s): ", secretsPath)
	if _, err := os.Stat(secretsPath); errors.Is(err, os.ErrNotExist) {
		fmt.Println("✗ Not found")
		*allGood = false
	} else {
		fmt.Println("✓ Found")
	}
}

func checkTokenStatus(tokenFile string, allGood *bool) *oauth2.Token {
	fmt.Printf("OAuth token (%s): ", tokenFile)
	token, err := client.TokenFromFile(tokenFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Println("✗ not found (run 'cardtracker setup')")
		} else {
			fmt.Printf("✗ %v\n", err)
		}
		*allGood = false
		return nil
	}

	if token.Expiry.Before(time.Now()) {
		fmt.Println("⚠ Expired (will refresh on next run)")
	} else {
		fmt.Printf("✓ Valid (expires: %s)\n", token.Expiry.Format(time.RFC3339))
	}
	return token
}

func checkAPIConnectivity(ctx context.Context, a *app, allGood *bool) {
	fmt.Println()
	fmt.Println("API Connectivity:")

	httpClient, err := client.Load(ctx, a.oauthConfig([]string{gmail.GmailModifyScope}))
	if err != nil {
		fmt.Printf("  OAuth client: ✗ %v\n", err)
		*allGood = false
		return
	}

	fmt.Print("  Gmail API: ")
	if err := testGmailAPI(ctx, httpClient); err != nil {
		fmt.Printf("✗ %v\n", err)
		*allGood = false
	} else {
		fmt.Println("✓ Connected")
	}
}

func testGmailAPI(ctx context.Context, httpClient *http.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}

	// Listing labels is the cheapest authorized call.
	if _, err := svc.Users.Labels.List("me").Context(ctx).Do(); err != nil {
		return fmt.Errorf("API call failed: %w", err)
	}
	return nil
}

func printFinalStatus(allGood bool) {
	fmt.Println()
	if allGood {
		fmt.Println("Status: ✓ Ready to run")
		fmt.Println()
		fmt.Println("Run 'cardtracker sync' to import card notifications.")
	} else {
		fmt.Println("Status: ✗ Configuration issues detected")
		fmt.Println()
		fmt.Println("Fix the issues above, then run 'cardtracker status' again.")
	}
}
