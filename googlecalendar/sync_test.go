package googlecalendar

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

func kolkata(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	return loc
}

func buildFeed(t *testing.T, loc *time.Location, uids ...string) string {
	t.Helper()
	cal := ics.NewCalendar()
	cal.SetProductId("-//CalSync//EN")
	for i, uid := range uids {
		event := cal.AddEvent(uid)
		start := time.Date(2025, 1, 6, 8+i, 0, 0, 0, loc)
		event.SetStartAt(start)
		event.SetEndAt(start.Add(50 * time.Minute))
		event.SetSummary("MA101 - Linear Algebra")
		event.SetLocation("TP 401")
	}
	return cal.Serialize()
}

func TestParseFeed(t *testing.T) {
	loc := kolkata(t)
	events, err := ParseFeed(buildFeed(t, loc, "a@calsync.com", "b@calsync.com"), loc)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "a@calsync.com", events[0].ICalUID)
	assert.Equal(t, "MA101 - Linear Algebra", events[0].Summary)
	assert.Equal(t, "TP 401", events[0].Location)
	assert.Equal(t, "2025-01-06T08:00:00+05:30", events[0].Start.DateTime)
	assert.Equal(t, "2025-01-06T08:50:00+05:30", events[0].End.DateTime)
	assert.Equal(t, "Asia/Kolkata", events[0].Start.TimeZone)
}

func TestPlanSync(t *testing.T) {
	at := func(s string) *calendar.EventDateTime { return &calendar.EventDateTime{DateTime: s} }

	existing := []*calendar.Event{
		{Id: "g1", ICalUID: "keep@calsync.com", Summary: "X", Start: at("2025-01-06T02:30:00Z"), End: at("2025-01-06T03:20:00Z")},
		{Id: "g2", ICalUID: "moved@calsync.com", Summary: "X", Start: at("2025-01-06T02:30:00Z"), End: at("2025-01-06T03:20:00Z")},
		{Id: "g3", ICalUID: "gone@calsync.com", Summary: "X"},
	}
	desired := []*calendar.Event{
		{ICalUID: "keep@calsync.com", Summary: "X", Start: at("2025-01-06T08:00:00+05:30"), End: at("2025-01-06T08:50:00+05:30")},
		{ICalUID: "moved@calsync.com", Summary: "X", Start: at("2025-01-06T09:00:00+05:30"), End: at("2025-01-06T09:50:00+05:30")},
		{ICalUID: "new@calsync.com", Summary: "Y"},
	}

	plan := planSync(existing, desired)
	require.Len(t, plan.insert, 1)
	assert.Equal(t, "new@calsync.com", plan.insert[0].ICalUID)
	require.Len(t, plan.update, 1)
	assert.Equal(t, "g2", plan.update[0].id)
	require.Len(t, plan.remove, 1)
	assert.Equal(t, "g3", plan.remove[0].Id)
}

// fakeCalendarAPI serves the handful of Calendar v3 endpoints Sync uses.
type fakeCalendarAPI struct {
	mu       sync.Mutex
	items    []*calendar.Event
	imported []string
	deleted  []string
}

func (f *fakeCalendarAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(calendar.Events{Items: f.items}))
	})
	mux.HandleFunc("POST /calendars/primary/events/import", func(w http.ResponseWriter, r *http.Request) {
		var event calendar.Event
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&event))
		f.mu.Lock()
		f.imported = append(f.imported, event.ICalUID)
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(event)
	})
	mux.HandleFunc("DELETE /calendars/primary/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.deleted = append(f.deleted, r.PathValue("id"))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func TestSync(t *testing.T) {
	loc := kolkata(t)
	api := &fakeCalendarAPI{items: []*calendar.Event{
		{Id: "stale", ICalUID: "old@calsync.com", Summary: "old"},
		{Id: "mine", ICalUID: "personal@gmail.com", Summary: "dentist"},
	}}
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	service, err := calendar.NewService(context.Background(),
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)
	syncer := NewSyncer(service, loc, "calsync.com", log)

	result, err := syncer.Sync(context.Background(), "primary", buildFeed(t, loc, "a@calsync.com"))
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Inserted: 1, Deleted: 1}, result)
	assert.Equal(t, []string{"a@calsync.com"}, api.imported)
	assert.Equal(t, []string{"stale"}, api.deleted, "events outside our UID domain are never touched")
}
