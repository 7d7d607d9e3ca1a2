package cli

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	appLog "bandcal/internal/log"
	"bandcal/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the companion HTTP server with a live session",
	Long: `Restore the stored session, keep it refreshed in the background and
serve /health, /api/session, /api/events, /calendar.ics and /metrics until
interrupted.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer appLog.Sync()

		if err := a.ctrl.Start(cmd.Context()); err != nil {
			return err
		}
		defer a.ctrl.Teardown()

		snap := a.store.Snapshot()
		appLog.Info("auth state after start", "state", snap.State, "authenticated", snap.IsAuthenticated())

		srv := web.NewServer(web.Deps{
			Config:   a.cfg,
			Store:    a.store,
			Guard:    a.guard,
			Events:   a.events,
			Gatherer: a.registry,
		})

		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error {
			return srv.ListenAndServe(ctx)
		})
		g.Go(func() error {
			<-ctx.Done()
			a.ctrl.Teardown()
			return nil
		})
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
