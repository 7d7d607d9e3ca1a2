package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"bandcal/internal/ics"
	"bandcal/internal/model"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List and manage gigs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List events, optionally for one month",
	Example: `  bandcal events list
  bandcal events list --month 2025-06`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := signedInApp(cmd.Context())
		if err != nil {
			return err
		}
		var evs []model.Event
		if month, _ := cmd.Flags().GetString("month"); month != "" {
			t, perr := time.Parse("2006-01", month)
			if perr != nil {
				return fmt.Errorf("--month %q: expected YYYY-MM", month)
			}
			evs, err = a.events.FetchByMonth(cmd.Context(), t.Year(), t.Month())
		} else {
			evs, err = a.events.FetchAll(cmd.Context())
		}
		if err != nil {
			return err
		}
		printEvents(cmd.OutOrStdout(), evs)
		return nil
	},
}

var eventsNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Show the next gig (today's included)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := signedInApp(cmd.Context())
		if err != nil {
			return err
		}
		ev, err := a.events.Next(cmd.Context(), time.Now())
		if err != nil {
			return err
		}
		if ev == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "No upcoming events.")
			return nil
		}
		printEvents(cmd.OutOrStdout(), []model.Event{*ev})
		return nil
	},
}

var eventsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Add a gig (admin only)",
	Example: `  bandcal events create --title "Nunta Popescu" --type nunta \
    --location "Hotel Continental" --date 2025-06-14 --time 18:00`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := cmd.Flags()
		title, _ := f.GetString("title")
		typ, _ := f.GetString("type")
		location, _ := f.GetString("location")
		date, _ := f.GetString("date")
		clock, _ := f.GetString("time")

		a, err := signedInApp(cmd.Context())
		if err != nil {
			return err
		}
		ev, err := a.events.Create(cmd.Context(), model.CreateEventData{
			Title: title, Type: model.EventType(typ), Location: location, EventDate: date, EventTime: clock,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created event %s\n", ev.ID)
		return nil
	},
}

var eventsUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change fields of a gig (admin only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		var u model.UpdateEventData
		f := cmd.Flags()
		if f.Changed("title") {
			v, _ := f.GetString("title")
			u.Title = &v
		}
		if f.Changed("type") {
			v, _ := f.GetString("type")
			t := model.EventType(v)
			u.Type = &t
		}
		if f.Changed("location") {
			v, _ := f.GetString("location")
			u.Location = &v
		}
		if f.Changed("date") {
			v, _ := f.GetString("date")
			u.EventDate = &v
		}
		if f.Changed("time") {
			v, _ := f.GetString("time")
			u.EventTime = &v
		}

		a, err := signedInApp(cmd.Context())
		if err != nil {
			return err
		}
		ev, err := a.events.Update(cmd.Context(), id, u)
		if err != nil {
			return err
		}
		printEvents(cmd.OutOrStdout(), []model.Event{*ev})
		return nil
	},
}

var eventsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove a gig (admin only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		a, err := signedInApp(cmd.Context())
		if err != nil {
			return err
		}
		if err := a.events.Delete(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted event %s\n", id)
		return nil
	},
}

var eventsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write upcoming gigs as an .ics file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := signedInApp(cmd.Context())
		if err != nil {
			return err
		}
		now := time.Now()
		evs, err := a.events.Upcoming(cmd.Context(), now)
		if err != nil {
			return err
		}
		body, err := ics.Export(evs, ics.ExportOptions{
			ProdID:    a.cfg.Export.ProdID,
			UIDDomain: a.cfg.Export.UIDDomain,
			Duration:  a.cfg.Export.EventDuration,
			Location:  a.cfg.Location(),
			Now:       func() time.Time { return now },
		})
		if err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("output")
		if out == "" {
			out = a.cfg.Export.FileName
		}
		if out == "-" {
			_, err = cmd.OutOrStdout().Write(body)
			return err
		}
		if err := os.WriteFile(out, body, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d events to %s\n", len(evs), out)
		return nil
	},
}

var eventsImportCmd = &cobra.Command{
	Use:   "import [url]",
	Short: "Import gigs from an iCalendar feed (admin only)",
	Long: `Import gigs from an external iCalendar feed. Recurring events are
expanded over the configured horizon. Occurrences already on the calendar
(same date, time and title) are skipped.

Without a URL every feed under "ics" in the config file is imported.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := signedInApp(cmd.Context())
		if err != nil {
			return err
		}

		var feeds []ics.Feed
		if len(args) == 1 {
			feeds = append(feeds, ics.Feed{Name: "cli", URL: args[0]})
		}
		for _, c := range a.cfg.ICS {
			if len(args) == 0 {
				name := c.Name
				if name == "" {
					name = c.ID
				}
				feeds = append(feeds, ics.Feed{Name: name, URL: c.URL})
			}
		}
		if len(feeds) == 0 {
			return fmt.Errorf("no feed url given and none configured")
		}

		cacheDir, _ := cmd.Flags().GetString("cache-dir")
		horizon := time.Duration(a.cfg.ImportHorizonDays) * 24 * time.Hour
		im := ics.NewImporter(ics.NewFetcher(cacheDir, a.cfg.Backend.Timeout), a.events, a.cfg.Location(), horizon)

		var failed error
		for _, feed := range feeds {
			rep, err := im.Import(cmd.Context(), feed)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d found, %d created, %d already present, %d failed\n",
				feed.Name, rep.Found, rep.Created, rep.Skipped, rep.Failed)
			if err != nil {
				failed = err
			}
		}
		return failed
	},
}

func signedInApp(ctx context.Context) (*app, error) {
	a, err := newApp()
	if err != nil {
		return nil, err
	}
	if err := a.restore(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// parseID rejects anything that is not a row id before it reaches the
// backend.
func parseID(s string) (string, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid id %q: %w", s, err)
	}
	return id.String(), nil
}

func printEvents(w io.Writer, evs []model.Event) {
	if len(evs) == 0 {
		fmt.Fprintln(w, "No events.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tTIME\tTYPE\tTITLE\tLOCATION\tID")
	for _, e := range evs {
		clock := e.EventTime
		if len(clock) > 5 {
			clock = clock[:5]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", e.EventDate, clock, e.Type.Label(), e.Title, e.Location, e.ID)
	}
	_ = tw.Flush()
}

func init() {
	eventsListCmd.Flags().String("month", "", "only events in this month (YYYY-MM)")

	for _, c := range []*cobra.Command{eventsCreateCmd, eventsUpdateCmd} {
		c.Flags().String("title", "", "event title")
		c.Flags().String("type", string(model.EventAltu), "cununie, botez, majorat, nunta or altu")
		c.Flags().String("location", "", "venue")
		c.Flags().String("date", "", "date (YYYY-MM-DD)")
		c.Flags().String("time", "", "start time (HH:MM)")
	}

	eventsExportCmd.Flags().StringP("output", "o", "", `output file, "-" for stdout (default from config)`)
	eventsImportCmd.Flags().String("cache-dir", "", "where fetched feeds are cached")

	eventsCmd.AddCommand(eventsListCmd, eventsNextCmd, eventsCreateCmd, eventsUpdateCmd, eventsDeleteCmd, eventsExportCmd, eventsImportCmd)
	rootCmd.AddCommand(eventsCmd)
}
