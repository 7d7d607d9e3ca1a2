package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	appLog "bandcal/internal/log"
	"bandcal/internal/model"
)

const defaultMaxPerSeries = 1000

// Window bounds expansion; occurrences starting in [From, To] are kept.
type Window struct {
	From time.Time
	To   time.Time
	// Loc is the band's timezone, which occurrences are converted to.
	Loc *time.Location
	// MaxPerSeries caps one recurring series. Zero means 1000.
	MaxPerSeries int
}

// Expand turns entries into concrete occurrences inside w, applying
// RRULE, EXDATE and RECURRENCE-ID overrides.
func Expand(entries []Entry, w Window) ([]model.Occurrence, error) {
	if w.To.Before(w.From) {
		return nil, errors.New("expand: window ends before it starts")
	}
	if w.Loc == nil {
		w.Loc = time.Local
	}
	if w.MaxPerSeries <= 0 {
		w.MaxPerSeries = defaultMaxPerSeries
	}

	overrides := make(map[string][]Entry)
	var bases []Entry
	for _, e := range entries {
		if e.RecurrenceID != nil {
			overrides[e.UID] = append(overrides[e.UID], e)
			continue
		}
		bases = append(bases, e)
	}

	var out []model.Occurrence
	for _, e := range bases {
		if e.RRule == "" {
			if inWindow(e.Start, w) {
				out = append(out, occurrence(e, e.Start, e.End, w.Loc))
			}
			continue
		}
		out = append(out, expandSeries(e, overrides[e.UID], w)...)
	}
	return out, nil
}

func expandSeries(e Entry, overrides []Entry, w Window) []model.Occurrence {
	r, err := rrule.StrToRRule(e.RRule)
	if err != nil {
		appLog.Warn("ics bad RRULE, series skipped", "uid", e.UID, "rrule", e.RRule, "err", err)
		return nil
	}
	r.DTStart(e.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range e.ExDates {
		set.ExDate(ex.In(e.Start.Location()))
	}

	starts := set.Between(w.From.In(e.Start.Location()), w.To.In(e.Start.Location()), true)
	if len(starts) > w.MaxPerSeries {
		appLog.Warn("ics series truncated", "uid", e.UID, "cap", w.MaxPerSeries, "found", len(starts))
		starts = starts[:w.MaxPerSeries]
	}

	dur := e.End.Sub(e.Start)
	out := make([]model.Occurrence, 0, len(starts))
	for _, s := range starts {
		inst, start, end := e, s, s.Add(dur)
		if o, ok := overrideFor(overrides, s); ok {
			inst, start, end = o, o.Start, o.End
		}
		out = append(out, occurrence(inst, start, end, w.Loc))
	}
	return out
}

func overrideFor(overrides []Entry, start time.Time) (Entry, bool) {
	for _, o := range overrides {
		if o.RecurrenceID.Equal(start) {
			return o, true
		}
	}
	return Entry{}, false
}

func inWindow(t time.Time, w Window) bool {
	return !t.Before(w.From) && !t.After(w.To)
}

func occurrence(e Entry, start, end time.Time, loc *time.Location) model.Occurrence {
	if e.AllDay {
		// All-day dates are calendar days, not instants.
		y, m, d := start.Date()
		start = time.Date(y, m, d, 0, 0, 0, 0, loc)
		end = start.AddDate(0, 0, 1)
	} else {
		start, end = start.In(loc), end.In(loc)
	}
	return model.Occurrence{
		SourceID:    e.Feed,
		UID:         e.UID,
		InstanceKey: start.Format(time.RFC3339),
		Summary:     e.Summary,
		Description: e.Description,
		Location:    e.Location,
		AllDay:      e.AllDay,
		Start:       start,
		End:         end,
	}
}
