// Package cli holds the bandcal cobra commands.
package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	configPath string
	listenAddr string
)

var rootCmd = &cobra.Command{
	Use:   "bandcal",
	Short: "Band gig calendar client",
	Long: `bandcal signs band members in to the hosted calendar backend, lists and
edits gigs, exports them as an iCalendar feed and serves a small companion
HTTP API.

The session is kept on disk, so "bandcal login" once is enough until it
expires or is revoked.`,
	SilenceUsage: true,
}

// ExecuteContext runs the root command with ctx.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/bandcal/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&listenAddr, "listen", "", "HTTP listen address for serve (overrides config)")
}
