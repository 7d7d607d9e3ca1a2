package ics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	appLog "bandcal/internal/log"
	"bandcal/internal/model"
)

// DefaultHorizon is how far ahead recurring feed events are expanded.
const DefaultHorizon = 180 * 24 * time.Hour

const untitled = "Eveniment importat"

// FeedFetcher returns a feed's body. *Fetcher satisfies it.
type FeedFetcher interface {
	Fetch(ctx context.Context, feed Feed) (Payload, error)
}

// EventSink is where imported events land. *events.Service satisfies it.
type EventSink interface {
	Upcoming(ctx context.Context, now time.Time) ([]model.Event, error)
	Create(ctx context.Context, d model.CreateEventData) (*model.Event, error)
}

// Report summarizes one import run.
type Report struct {
	Found   int
	Created int
	Skipped int
	Failed  int
}

type Importer struct {
	fetch   FeedFetcher
	sink    EventSink
	loc     *time.Location
	horizon time.Duration
	now     func() time.Time
}

func NewImporter(fetch FeedFetcher, sink EventSink, loc *time.Location, horizon time.Duration) *Importer {
	if loc == nil {
		loc = time.Local
	}
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return &Importer{fetch: fetch, sink: sink, loc: loc, horizon: horizon, now: time.Now}
}

// Import creates an event for every upcoming occurrence in feed that is not
// already on the calendar (same date, time and title).
func (im *Importer) Import(ctx context.Context, feed Feed) (Report, error) {
	var rep Report
	now := im.now()

	payload, err := im.fetch.Fetch(ctx, feed)
	if err != nil {
		return rep, err
	}
	entries, err := Parse(feed, payload.Body, im.loc)
	if err != nil {
		return rep, fmt.Errorf("parse %s: %w", feed.Name, err)
	}
	occs, err := Expand(entries, Window{From: now, To: now.Add(im.horizon), Loc: im.loc})
	if err != nil {
		return rep, err
	}
	sort.Slice(occs, func(i, j int) bool { return occs[i].Start.Before(occs[j].Start) })
	rep.Found = len(occs)

	existing, err := im.sink.Upcoming(ctx, now)
	if err != nil {
		return rep, err
	}
	seen := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		seen[dedupKey(e.EventDate, e.EventTime, e.Title)] = struct{}{}
	}

	var errs []error
	for _, occ := range occs {
		d := ToEvent(occ, im.loc)
		key := dedupKey(d.EventDate, d.EventTime, d.Title)
		if _, dup := seen[key]; dup {
			rep.Skipped++
			continue
		}
		if _, err := im.sink.Create(ctx, d); err != nil {
			rep.Failed++
			errs = append(errs, fmt.Errorf("%s %s: %w", d.EventDate, d.Title, err))
			appLog.Error("ics import: create failed", err, "uid", occ.UID, "date", d.EventDate)
			continue
		}
		seen[key] = struct{}{}
		rep.Created++
	}

	appLog.Info("ics import finished", "feed", feed.Name, "found", rep.Found, "created", rep.Created, "skipped", rep.Skipped, "failed", rep.Failed)
	return rep, errors.Join(errs...)
}

// ToEvent maps an occurrence onto an event of type "altu". All-day
// occurrences start at 00:00.
func ToEvent(occ model.Occurrence, loc *time.Location) model.CreateEventData {
	start := occ.Start.In(loc)
	title := strings.TrimSpace(occ.Summary)
	if title == "" {
		title = untitled
	}
	clock := start.Format("15:04")
	if occ.AllDay {
		clock = "00:00"
	}
	return model.CreateEventData{
		Title:     title,
		Type:      model.EventAltu,
		Location:  strings.TrimSpace(occ.Location),
		EventDate: start.Format("2006-01-02"),
		EventTime: clock,
	}
}

func dedupKey(date, clock, title string) string {
	if len(clock) > 5 {
		clock = clock[:5]
	}
	return date + "|" + clock + "|" + strings.ToLower(strings.TrimSpace(title))
}
