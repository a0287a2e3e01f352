package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"academia-calsync/scraper"

	ics "github.com/arran4/golang-ical"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

const (
	dateLayout      = "2-Jan-2006"
	holidayDayOrder = "holiday"
)

// ClassEvent is one dated class ready to be written to a feed.
type ClassEvent struct {
	UID         string
	Start       time.Time
	End         time.Time
	Summary     string
	Location    string
	Description string
}

// Generator merges planner days with the weekly timetable and writes iCalendar.
type Generator struct {
	Location  *time.Location
	ProductID string
	UIDDomain string
	// Now stamps DTSTAMP. It does not influence UIDs or event times.
	Now func() time.Time
	log logrus.FieldLogger
}

func NewGenerator(loc *time.Location, productID, uidDomain string, log logrus.FieldLogger) *Generator {
	return &Generator{
		Location:  loc,
		ProductID: productID,
		UIDDomain: uidDomain,
		Now:       time.Now,
		log:       log,
	}
}

// Generate returns the iCalendar document for timetable laid over planner.
func (g *Generator) Generate(timetable []scraper.DaySchedule, planner []scraper.DayEvent) string {
	return g.Serialize(g.Events(timetable, planner))
}

// Events emits one event per class slot of every planner day whose day order
// has a schedule. Free slots, holidays and unknown day orders produce nothing.
func (g *Generator) Events(timetable []scraper.DaySchedule, planner []scraper.DayEvent) []ClassEvent {
	byOrder := lo.KeyBy(timetable, func(d scraper.DaySchedule) string { return d.DayOrder })
	g.log.Debugf("Day orders available for matching: %v", lo.Keys(byOrder))

	var events []ClassEvent
	var unmatched []string
	for _, day := range planner {
		schedule, ok := byOrder[day.DayOrder]
		if !ok {
			if day.DayOrder != "" && !strings.EqualFold(day.DayOrder, holidayDayOrder) {
				unmatched = append(unmatched, day.DayOrder)
				g.log.Debugf("No schedule for day order %q on %s", day.DayOrder, day.Date)
			}
			continue
		}
		for _, slot := range lo.Filter(schedule.Classes, func(s scraper.CourseSlot, _ int) bool { return s.IsClass }) {
			event, err := g.classEvent(slot, day.Date)
			if err != nil {
				g.log.Warnf("Skipping %s on %s: %v", slot.CourseCode, day.Date, err)
				continue
			}
			events = append(events, event)
		}
	}
	if len(unmatched) > 0 {
		g.log.Infof("Planner day orders without a schedule: %v", lo.Uniq(unmatched))
	}
	g.log.Infof("Total calendar events generated: %d", len(events))
	return events
}

func (g *Generator) classEvent(slot scraper.CourseSlot, date string) (ClassEvent, error) {
	day, err := time.ParseInLocation(dateLayout, strings.TrimSpace(date), g.Location)
	if err != nil {
		return ClassEvent{}, errors.Wrapf(err, "invalid date %q", date)
	}
	startClock, endClock, err := ParseTimeRange(slot.Time)
	if err != nil {
		return ClassEvent{}, err
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), startClock.Hour, startClock.Minute, 0, 0, g.Location)
	end := time.Date(day.Year(), day.Month(), day.Day(), endClock.Hour, endClock.Minute, 0, 0, g.Location)
	if !end.After(start) {
		g.log.Warnf("Time range %q of %s ends before it starts, assuming one hour", slot.Time, slot.CourseCode)
		end = start.Add(time.Hour)
	}

	return ClassEvent{
		UID:         EventUID(date, slot.CourseCode, slot.Time, g.UIDDomain),
		Start:       start,
		End:         end,
		Summary:     slot.CourseCode + " - " + slot.CourseTitle,
		Location:    slot.RoomNo,
		Description: fmt.Sprintf("Slot: %s\nType: %s\nCategory: %s", slot.Slot, slot.CourseType, slot.CourseCategory),
	}, nil
}

// Serialize writes events as a VCALENDAR.
func (g *Generator) Serialize(events []ClassEvent) string {
	cal := ics.NewCalendar()
	cal.SetProductId(g.ProductID)
	cal.SetVersion("2.0")

	stamp := g.Now()
	for _, e := range events {
		event := cal.AddEvent(e.UID)
		event.SetDtStampTime(stamp)
		event.SetStartAt(e.Start)
		event.SetEndAt(e.End)
		event.SetSummary(e.Summary)
		if e.Location != "" {
			event.SetLocation(e.Location)
		}
		event.SetDescription(e.Description)
	}
	return cal.Serialize()
}

// EventUID is the hex SHA-256 of date, course code and time range plus
// "@domain". The same slot on the same day always gets the same UID.
func EventUID(date, courseCode, timeRange, domain string) string {
	sum := sha256.Sum256([]byte(date + courseCode + timeRange))
	return hex.EncodeToString(sum[:]) + "@" + domain
}
