// Package ics reads and writes iCalendar data: Export publishes the band's
// events as a subscribable .ics, and the fetch/parse/expand pipeline pulls
// gigs in from an external feed.
package ics

import (
	"errors"
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"bandcal/internal/model"
)

const (
	DefaultProdID    = "-//LaCantat//Evenimente//RO"
	DefaultUIDDomain = "lacantat.ro"
	DefaultDuration  = 2 * time.Hour

	// ContentType is what HTTP responses carrying an export should declare.
	ContentType = "text/calendar; charset=utf-8"

	floatingLayout = "20060102T150405"
)

// ErrNoEvents is returned by Export for an empty event list.
var ErrNoEvents = errors.New("no events to export")

// ExportOptions tunes Export. Zero values fall back to the defaults above.
type ExportOptions struct {
	ProdID    string
	UIDDomain string
	Duration  time.Duration
	// Location is the band's timezone. Start and end are written as
	// floating local times in it.
	Location *time.Location
	Now      func() time.Time
}

func (o ExportOptions) withDefaults() ExportOptions {
	if o.ProdID == "" {
		o.ProdID = DefaultProdID
	}
	if o.UIDDomain == "" {
		o.UIDDomain = DefaultUIDDomain
	}
	if o.Duration <= 0 {
		o.Duration = DefaultDuration
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Export renders events as a VCALENDAR, one VEVENT each, in input order.
func Export(events []model.Event, opts ExportOptions) ([]byte, error) {
	if len(events) == 0 {
		return nil, ErrNoEvents
	}
	opts = opts.withDefaults()
	now := opts.Now()

	cal := ical.NewCalendar()
	cal.SetProductId(opts.ProdID)
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ical.MethodPublish)

	for i, e := range events {
		start, err := e.StartIn(opts.Location)
		if err != nil {
			return nil, err
		}
		end := start.Add(opts.Duration)

		uid := fmt.Sprintf("lacantat-%s-%d-%d@%s", e.ID, now.UnixMilli(), i, opts.UIDDomain)
		ve := cal.AddEvent(uid)
		ve.SetProperty(ical.ComponentPropertyDtStart, start.Format(floatingLayout))
		ve.SetProperty(ical.ComponentPropertyDtEnd, end.Format(floatingLayout))
		ve.SetDtStampTime(now)
		ve.SetSummary(e.Title)
		ve.SetDescription(describe(e))
		if e.Location != "" {
			ve.SetLocation(e.Location)
		}
		ve.SetStatus(ical.ObjectStatusConfirmed)
		ve.SetProperty(ical.ComponentPropertySequence, "0")
	}

	return []byte(cal.Serialize()), nil
}

func describe(e model.Event) string {
	d := "Tip: " + e.Type.Label()
	if e.Location != "" {
		d += "\nLocație: " + e.Location
	}
	return d
}
