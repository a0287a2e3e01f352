package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
)

const (
	timetablePagePath = "/srm_university/academia-academic-services/page/My_Time_Table_%s"
	plannerPagePath   = "/srm_university/academia-academic-services/page/Academic_Planner_%s_%s"

	// PlaceholderHTML stands in for a planner page that does not exist yet.
	PlaceholderHTML = "<html><head></head><body></body></html>"
)

// AcademicCalendar turns the current date into the portal's year and semester
// page tokens.
type AcademicCalendar struct {
	// TimetableYearOffset: the timetable page is named after the academic year
	// starting TimetableYearOffset years before the current calendar year.
	TimetableYearOffset int
	// SemesterSplitMonth is the first month of the ODD semester.
	SemesterSplitMonth int
}

// academicYear formats the academic year starting in start, e.g. 2025 -> "2025_26".
func academicYear(start int) string {
	return fmt.Sprintf("%d_%02d", start, (start+1)%100)
}

func (c AcademicCalendar) TimetableYear(now time.Time) string {
	return academicYear(now.Year() - c.TimetableYearOffset)
}

// Semester returns the planner's academic year and "ODD" or "EVEN".
func (c AcademicCalendar) Semester(now time.Time) (string, string) {
	if int(now.Month()) < c.SemesterSplitMonth {
		return academicYear(now.Year() - 1), "EVEN"
	}
	return academicYear(now.Year()), "ODD"
}

// Fetcher downloads the timetable and academic planner pages of a session.
type Fetcher struct {
	client   *http.Client
	baseURL  string
	calendar AcademicCalendar
	log      logrus.FieldLogger

	// Retries is how many times a network failure or 5xx answer is retried.
	Retries int
	Backoff time.Duration
	now     func() time.Time
}

func NewFetcher(client *http.Client, baseURL string, calendar AcademicCalendar, log logrus.FieldLogger) *Fetcher {
	return &Fetcher{
		client:   client,
		baseURL:  strings.TrimRight(baseURL, "/"),
		calendar: calendar,
		log:      log,
		Retries:  2,
		Backoff:  500 * time.Millisecond,
		now:      time.Now,
	}
}

func (f *Fetcher) TimetableURL() string {
	return f.baseURL + fmt.Sprintf(timetablePagePath, f.calendar.TimetableYear(f.now()))
}

func (f *Fetcher) PlannerURL() string {
	year, semester := f.calendar.Semester(f.now())
	return f.baseURL + fmt.Sprintf(plannerPagePath, year, semester)
}

// FetchTimetable returns the raw timetable page. A missing page is an error:
// nothing can be scheduled without it.
func (f *Fetcher) FetchTimetable(ctx context.Context, session Session) (string, error) {
	pageURL := f.TimetableURL()
	status, body, err := f.fetchPage(ctx, pageURL, session)
	if err != nil {
		return "", err
	}
	if !is2xx(status) {
		return "", errors.Wrapf(ErrUpstreamUnavailable, "timetable page %s returned %d", pageURL, status)
	}
	return body, nil
}

// FetchAcademicPlanner returns the raw planner page, or PlaceholderHTML when
// the semester's planner has not been published.
func (f *Fetcher) FetchAcademicPlanner(ctx context.Context, session Session) (string, error) {
	pageURL := f.PlannerURL()
	status, body, err := f.fetchPage(ctx, pageURL, session)
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		f.log.Warnf("Academic planner not found at %s, continuing without it", pageURL)
		return PlaceholderHTML, nil
	}
	if !is2xx(status) {
		return "", errors.Wrapf(ErrUpstreamUnavailable, "planner page %s returned %d", pageURL, status)
	}
	return body, nil
}

func (f *Fetcher) fetchPage(ctx context.Context, pageURL string, session Session) (int, string, error) {
	f.log.Infof("Fetching %s", pageURL)

	backoff := f.Backoff
	if backoff <= 0 {
		backoff = time.Millisecond
	}
	var status int
	var body string
	err := retry.Do(ctx, retry.WithMaxRetries(uint64(max(f.Retries, 0)), retry.NewExponential(backoff)), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return errors.Wrap(err, "error creating page request")
		}
		setBrowserHeaders(req, f.baseURL+"/")
		req.Header.Set("Cookie", session.Cookie)

		resp, raw, err := send(f.client, req)
		if err != nil {
			f.log.Debugf("Fetching %s failed, may retry: %v", pageURL, err)
			return retry.RetryableError(err)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return retry.RetryableError(errors.Wrapf(ErrUpstreamUnavailable, "%s returned %s", pageURL, resp.Status))
		}
		status, body = resp.StatusCode, string(raw)
		return nil
	})
	if err != nil {
		return 0, "", err
	}
	return status, body, nil
}
