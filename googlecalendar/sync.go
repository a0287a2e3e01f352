package googlecalendar

import (
	"context"
	"net/http"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
)

// SyncResult counts the changes one Sync made.
type SyncResult struct {
	Inserted int
	Updated  int
	Deleted  int
}

// Syncer mirrors a generated feed into a Google calendar. Events are matched
// by iCalendar UID, so only events whose UID ends in "@"+UIDDomain are ever
// touched.
type Syncer struct {
	Service   *calendar.Service
	Location  *time.Location
	UIDDomain string
	log       logrus.FieldLogger
}

func NewSyncer(service *calendar.Service, loc *time.Location, uidDomain string, log logrus.FieldLogger) *Syncer {
	return &Syncer{Service: service, Location: loc, UIDDomain: uidDomain, log: log}
}

// Sync makes calendarID hold exactly the feed's events.
func (s *Syncer) Sync(ctx context.Context, calendarID, feed string) (SyncResult, error) {
	var result SyncResult

	desired, err := ParseFeed(feed, s.Location)
	if err != nil {
		return result, err
	}
	existing, err := s.ownedEvents(ctx, calendarID)
	if err != nil {
		return result, err
	}

	plan := planSync(existing, desired)
	for _, event := range plan.remove {
		err := s.Service.Events.Delete(calendarID, event.Id).Context(ctx).Do()
		if err != nil {
			var gerr *googleapi.Error
			if errors.As(err, &gerr) && gerr.Code == http.StatusGone {
				s.log.Debugf("Event '%s' (ID: %s) already deleted from Google Calendar", event.Summary, event.Id)
				continue
			}
			return result, errors.Wrap(err, "error deleting event from Google Calendar")
		}
		result.Deleted++
	}
	for _, update := range plan.update {
		if _, err := s.Service.Events.Update(calendarID, update.id, update.event).Context(ctx).Do(); err != nil {
			return result, errors.Wrap(err, "error updating event in Google Calendar")
		}
		result.Updated++
	}
	for _, event := range plan.insert {
		if _, err := s.Service.Events.Import(calendarID, event).Context(ctx).Do(); err != nil {
			return result, errors.Wrap(err, "error inserting event into Google Calendar")
		}
		result.Inserted++
	}

	s.log.Infof("Synced %s: %d inserted, %d updated, %d deleted", calendarID, result.Inserted, result.Updated, result.Deleted)
	return result, nil
}

// ownedEvents lists the non-cancelled events carrying our UID domain.
func (s *Syncer) ownedEvents(ctx context.Context, calendarID string) ([]*calendar.Event, error) {
	suffix := "@" + s.UIDDomain
	var owned []*calendar.Event
	err := s.Service.Events.List(calendarID).ShowDeleted(false).Pages(ctx, func(events *calendar.Events) error {
		for _, event := range events.Items {
			if event == nil || event.Status == "cancelled" {
				continue
			}
			if strings.HasSuffix(event.ICalUID, suffix) {
				owned = append(owned, event)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "error fetching events from Google Calendar")
	}
	return owned, nil
}

// ParseFeed turns every VEVENT of an iCalendar document into a Google event
// keyed by its UID. Events without UID or times are skipped.
func ParseFeed(feed string, loc *time.Location) ([]*calendar.Event, error) {
	cal, err := ics.ParseCalendar(strings.NewReader(feed))
	if err != nil {
		return nil, errors.Wrap(err, "error parsing ICS data")
	}

	var events []*calendar.Event
	for _, event := range cal.Events() {
		uid := event.Id()
		if uid == "" {
			continue
		}
		start, err := event.GetStartAt()
		if err != nil {
			continue
		}
		end, err := event.GetEndAt()
		if err != nil {
			continue
		}
		events = append(events, &calendar.Event{
			ICalUID:     uid,
			Summary:     propertyValue(event, ics.ComponentPropertySummary),
			Location:    propertyValue(event, ics.ComponentPropertyLocation),
			Description: propertyValue(event, ics.ComponentPropertyDescription),
			Start:       eventDateTime(start, loc),
			End:         eventDateTime(end, loc),
		})
	}
	return events, nil
}

func propertyValue(event *ics.VEvent, prop ics.ComponentProperty) string {
	if p := event.GetProperty(prop); p != nil {
		return p.Value
	}
	return ""
}

func eventDateTime(t time.Time, loc *time.Location) *calendar.EventDateTime {
	return &calendar.EventDateTime{
		DateTime: t.In(loc).Format(time.RFC3339),
		TimeZone: loc.String(),
	}
}

type eventUpdate struct {
	id    string
	event *calendar.Event
}

type syncPlan struct {
	insert []*calendar.Event
	update []eventUpdate
	remove []*calendar.Event
}

func planSync(existing, desired []*calendar.Event) syncPlan {
	byUID := make(map[string]*calendar.Event, len(existing))
	for _, event := range existing {
		byUID[event.ICalUID] = event
	}

	var plan syncPlan
	wanted := make(map[string]bool, len(desired))
	for _, event := range desired {
		wanted[event.ICalUID] = true
		current, found := byUID[event.ICalUID]
		switch {
		case !found:
			plan.insert = append(plan.insert, event)
		case !sameEvent(current, event):
			plan.update = append(plan.update, eventUpdate{id: current.Id, event: event})
		}
	}
	for _, event := range existing {
		if !wanted[event.ICalUID] {
			plan.remove = append(plan.remove, event)
		}
	}
	return plan
}

func sameEvent(a, b *calendar.Event) bool {
	return a.Summary == b.Summary &&
		a.Location == b.Location &&
		a.Description == b.Description &&
		sameInstant(a.Start, b.Start) &&
		sameInstant(a.End, b.End)
}

func sameInstant(a, b *calendar.EventDateTime) bool {
	if a == nil || b == nil {
		return a == b
	}
	ta, errA := time.Parse(time.RFC3339, a.DateTime)
	tb, errB := time.Parse(time.RFC3339, b.DateTime)
	if errA != nil || errB != nil {
		return a.DateTime == b.DateTime
	}
	return ta.Equal(tb)
}

// Mirror syncs feeds with a fresh client for every call, so a token
// authorized after startup is picked up.
type Mirror struct {
	auth      *Authorizer
	location  *time.Location
	uidDomain string
	log       logrus.FieldLogger
}

func NewMirror(auth *Authorizer, loc *time.Location, uidDomain string, log logrus.FieldLogger) *Mirror {
	return &Mirror{auth: auth, location: loc, uidDomain: uidDomain, log: log}
}

func (m *Mirror) Sync(ctx context.Context, calendarID, feed string) error {
	service, err := m.auth.Service(ctx)
	if err != nil {
		return err
	}
	_, err = NewSyncer(service, m.location, m.uidDomain, m.log).Sync(ctx, calendarID, feed)
	return err
}
