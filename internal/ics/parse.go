package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "bandcal/internal/log"
)

const propRecurrenceID ical.ComponentProperty = "RECURRENCE-ID"

// Entry is one VEVENT as found in a feed, recurrence not yet expanded.
type Entry struct {
	Feed string
	UID  string

	Summary     string
	Description string
	Location    string

	Start  time.Time
	End    time.Time
	AllDay bool

	RRule   string
	ExDates []time.Time
	// RecurrenceID is set on a VEVENT that replaces one instance of a
	// recurring series.
	RecurrenceID *time.Time
}

// Parse reads every VEVENT of body. Malformed events are logged and
// skipped. Floating and all-day times are read in loc.
func Parse(feed Feed, body []byte, loc *time.Location) ([]Entry, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty calendar")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var out []Entry
	for _, ve := range cal.Events() {
		e, err := parseEvent(ve, loc)
		if err != nil {
			appLog.Warn("ics event skipped", "feed", feed.Name, "err", err)
			continue
		}
		e.Feed = feed.Name
		out = append(out, e)
	}
	appLog.Debug("ics parsed", "feed", feed.Name, "events", len(out))
	return out, nil
}

func parseEvent(ve *ical.VEvent, loc *time.Location) (Entry, error) {
	var e Entry
	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return e, errors.New("missing UID")
	}
	e.UID = uid.Value
	e.Summary = propValue(ve, ical.ComponentPropertySummary)
	e.Description = propValue(ve, ical.ComponentPropertyDescription)
	e.Location = propValue(ve, ical.ComponentPropertyLocation)

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return e, errors.New("missing DTSTART")
	}
	e.AllDay = isDateOnly(dtStart)

	start, err := stamp(dtStart, loc)
	if err != nil {
		return e, err
	}
	e.Start = start

	if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
		if end, err := stamp(dtEnd, loc); err == nil {
			e.End = end
		}
	}
	if e.End.IsZero() || e.End.Before(e.Start) {
		e.End = e.Start
		if e.AllDay {
			e.End = e.Start.AddDate(0, 0, 1)
		}
	}

	e.RRule = propValue(ve, ical.ComponentPropertyRrule)

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		tz := param(p, "TZID")
		for _, v := range strings.Split(p.Value, ",") {
			if t, err := parseStamp(strings.TrimSpace(v), tz, e.Start.Location()); err == nil {
				e.ExDates = append(e.ExDates, t)
			}
		}
	}

	if rid := ve.GetProperty(propRecurrenceID); rid != nil {
		if t, err := stamp(rid, e.Start.Location()); err == nil {
			e.RecurrenceID = &t
		}
	}
	return e, nil
}

func propValue(ve *ical.VEvent, p ical.ComponentProperty) string {
	if prop := ve.GetProperty(p); prop != nil {
		return prop.Value
	}
	return ""
}

func param(p *ical.IANAProperty, name string) string {
	if vs := p.ICalParameters[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func isDateOnly(p *ical.IANAProperty) bool {
	return strings.EqualFold(param(p, "VALUE"), "DATE") || !strings.Contains(p.Value, "T")
}

func stamp(p *ical.IANAProperty, loc *time.Location) (time.Time, error) {
	return parseStamp(p.Value, param(p, "TZID"), loc)
}

// parseStamp reads DATE, UTC DATE-TIME, and local DATE-TIME forms. A TZID
// the system does not know falls back to loc.
func parseStamp(v, tzid string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty date value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			loc = l
		} else {
			appLog.Debug("ics unknown TZID", "tzid", tzid)
		}
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}
