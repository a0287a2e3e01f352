package site

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"academia-calsync/scraper"
	"academia-calsync/store"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCalendars struct {
	subscribeErr error
	calendarErr  error
	linked       map[string]string
}

func (f *fakeCalendars) Subscribe(_ context.Context, username, _ string) (*store.User, error) {
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	return &store.User{Username: username, SubscriptionToken: "tok-123"}, nil
}

func (f *fakeCalendars) CalendarForToken(_ context.Context, token string) (string, error) {
	if f.calendarErr != nil {
		return "", f.calendarErr
	}
	if token != "tok-123" {
		return "", store.ErrUserNotFound
	}
	return "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n", nil
}

func (f *fakeCalendars) LinkGoogleCalendar(_ context.Context, token, calendarID string) error {
	if token != "tok-123" {
		return store.ErrUserNotFound
	}
	if f.linked == nil {
		f.linked = make(map[string]string)
	}
	f.linked[token] = calendarID
	return nil
}

type fakeGoogle struct {
	codes []string
	err   error
}

func (f *fakeGoogle) AuthURL(state string) string {
	return "https://accounts.example/auth?state=" + state
}

func (f *fakeGoogle) ExchangeAndSave(_ context.Context, code string) error {
	f.codes = append(f.codes, code)
	return f.err
}

func quietEntry() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func do(t *testing.T, s *Server, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestSubscribe(t *testing.T) {
	s := NewServer(&fakeCalendars{}, "", quietEntry())

	rec := do(t, s, http.MethodPost, "http://cal.example/api/subscribe", `{"username":"ab1234","password":"pw"}`,
		http.Header{"X-Forwarded-Proto": {"https"}})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp subscribeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "https://cal.example/api/calendar/tok-123", resp.SubscriptionURL)
}

func TestSubscribeUsesPublicBaseURL(t *testing.T) {
	s := NewServer(&fakeCalendars{}, "https://feeds.example/", quietEntry())

	rec := do(t, s, http.MethodPost, "/api/subscribe", `{"username":"ab1234","password":"pw"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://feeds.example/api/calendar/tok-123")
}

func TestSubscribeErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		body string
		want int
	}{
		{"missing fields", nil, `{"username":"ab1234"}`, http.StatusBadRequest},
		{"bad json", nil, `{`, http.StatusBadRequest},
		{"invalid credentials", scraper.ErrInvalidCredentials, `{"username":"a","password":"b"}`, http.StatusUnauthorized},
		{"automation block", errors.WithStack(scraper.ErrAutomationBlocked), `{"username":"a","password":"b"}`, http.StatusUnauthorized},
		{"portal down", errors.Wrap(scraper.ErrUpstreamUnavailable, "login page returned 503"), `{"username":"a","password":"b"}`, http.StatusBadGateway},
		{"protocol", scraper.ErrProtocol, `{"username":"a","password":"b"}`, http.StatusBadGateway},
		{"other", errors.New("database exploded"), `{"username":"a","password":"b"}`, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(&fakeCalendars{subscribeErr: tt.err}, "", quietEntry())
			rec := do(t, s, http.MethodPost, "/api/subscribe", tt.body, nil)
			assert.Equal(t, tt.want, rec.Code)
			assert.NotContains(t, rec.Body.String(), "exploded")
		})
	}
}

func TestCalendar(t *testing.T) {
	s := NewServer(&fakeCalendars{}, "", quietEntry())

	rec := do(t, s, http.MethodGet, "/api/calendar/tok-123", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, calendarContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, `inline; filename="calsync.ics"`, rec.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "BEGIN:VCALENDAR"))

	rec = do(t, s, http.MethodGet, "/api/calendar/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCalendarPortalFailure(t *testing.T) {
	s := NewServer(&fakeCalendars{calendarErr: errors.Wrap(scraper.ErrUpstreamUnavailable, "timeout")}, "", quietEntry())
	rec := do(t, s, http.MethodGet, "/api/calendar/tok-123", "", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestLinkGoogleCalendar(t *testing.T) {
	calendars := &fakeCalendars{}
	s := NewServer(calendars, "", quietEntry())

	rec := do(t, s, http.MethodPut, "/api/calendar/tok-123/google", `{"calendarId":"primary"}`, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "primary", calendars.linked["tok-123"])

	rec = do(t, s, http.MethodPut, "/api/calendar/nope/google", `{"calendarId":"primary"}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	s := NewServer(&fakeCalendars{}, "", quietEntry())
	rec := do(t, s, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestGoogleAuthFlow(t *testing.T) {
	google := &fakeGoogle{}
	s := NewServer(&fakeCalendars{}, "", quietEntry()).WithGoogle(google)

	rec := do(t, s, http.MethodGet, "/auth/google", "", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)

	rec = do(t, s, http.MethodGet, "/auth_callback?state=forged&code=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/auth_callback?state="+state+"&code=abc", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"abc"}, google.codes)

	// States are single use.
	rec = do(t, s, http.MethodGet, "/auth_callback?state="+state+"&code=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGoogleRoutesDisabled(t *testing.T) {
	s := NewServer(&fakeCalendars{}, "", quietEntry())
	rec := do(t, s, http.MethodGet, "/auth/google", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
