package scraper

import (
	"net/http"
	"regexp"
	"strings"
)

const csrfCookieName = "iamcsr"

var csrfPattern = regexp.MustCompile(`(?:^|;\s*)` + csrfCookieName + `=([^;]+)`)

// cookieSet is the ordered name=value state carried between login steps.
// withResponse returns a new set; a cookieSet is never modified in place.
type cookieSet struct {
	names  []string
	values map[string]string
}

func newCookieSet(cookies []*http.Cookie) cookieSet {
	return cookieSet{}.with(cookies)
}

// with merges cookies into a copy of c. Later values win per name, names
// keep the position they were first seen at.
func (c cookieSet) with(cookies []*http.Cookie) cookieSet {
	next := cookieSet{
		names:  append([]string(nil), c.names...),
		values: make(map[string]string, len(c.values)+len(cookies)),
	}
	for name, value := range c.values {
		next.values[name] = value
	}
	for _, cookie := range cookies {
		if cookie == nil || cookie.Name == "" {
			continue
		}
		if _, seen := next.values[cookie.Name]; !seen {
			next.names = append(next.names, cookie.Name)
		}
		next.values[cookie.Name] = cookie.Value
	}
	return next
}

func (c cookieSet) withResponse(resp *http.Response) cookieSet {
	return c.with(resp.Cookies())
}

func (c cookieSet) empty() bool {
	return len(c.names) == 0
}

// header renders the set as a Cookie request header value.
func (c cookieSet) header() string {
	pairs := make([]string, 0, len(c.names))
	for _, name := range c.names {
		pairs = append(pairs, name+"="+c.values[name])
	}
	return strings.Join(pairs, "; ")
}

// extractCSRFToken pulls the anti-forgery token out of a Cookie header value.
func extractCSRFToken(cookieHeader string) (string, bool) {
	m := csrfPattern.FindStringSubmatch(cookieHeader)
	if m == nil {
		return "", false
	}
	return m[1], true
}
