// Command cardtracker records credit card usage notifications as transactions.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "cardtracker",
	Short: "Track credit card spending from issuer notification mail",
	Long: `cardtracker reads card usage notification mail, extracts the amount,
time and merchant of each transaction and stores it once per message.
Aggregates only include transactions from verified sender domains.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "JSON config file (environment variables take precedence)")

	rootCmd.AddCommand(
		syncCmd,
		watchCmd,
		summaryCmd,
		listCmd,
		verifyCmd,
		deleteCmd,
		exportCmd,
		serveCmd,
		setupCmd,
		statusCmd,
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
