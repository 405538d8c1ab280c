package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/cardtracker/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the transaction API over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		st, err := a.openStore(cmd.Context())
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer st.Close()

		addr := a.cfg.HTTPAddr
		if serveAddr != "" {
			addr = serveAddr
		}
		srv := server.New(st, a.metrics, a.loc, a.logger.With("component", "http"))
		return srv.ListenAndServe(cmd.Context(), addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default HTTP_ADDR)")
}
