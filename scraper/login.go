package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	signinPath   = "/accounts/p/10002227248/signin"
	logoutPath   = "/accounts/p/10002227248/logout"
	lookupPath   = "/accounts/p/40-10002227248/signin/v2/lookup/"
	passwordPath = "/accounts/p/40-10002227248/signin/v2/primary/%s/password"
	redirectPath = "/portal/academia-academic-services/redirectFromLogin"

	csrfHeader       = "X-Zcsrf-Token"
	csrfHeaderPrefix = "iamcsrcoo="

	maxBodyBytes = 10 << 20
)

// automationMarkers are body fragments of a password response that rejects the
// login as automated traffic rather than as a wrong password.
var automationMarkers = []string{"non-trusted domain", "non_trusted_domain"}

// Authenticator performs the identity provider's three step browser login.
type Authenticator struct {
	client  *http.Client
	baseURL string
	log     logrus.FieldLogger

	// Pause runs between login steps. The portal flags logins that arrive
	// faster than a person could type.
	Pause func(ctx context.Context) error
	now   func() time.Time
}

func NewAuthenticator(client *http.Client, baseURL string, log logrus.FieldLogger) *Authenticator {
	return &Authenticator{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
		Pause:   NoPause,
		now:     time.Now,
	}
}

// NewHTTPClient returns a client with a bounded per-request timeout that never
// follows redirects, so Set-Cookie headers of every hop stay visible.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// RandomPause sleeps for a random duration in [min, max] or until ctx is done.
func RandomPause(min, max time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		d := min
		if max > min {
			d += time.Duration(rand.Int63n(int64(max - min + 1)))
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
}

func NoPause(context.Context) error { return nil }

// loginState is what one login step hands to the next.
type loginState struct {
	cookies cookieSet
	csrf    string
}

// advance folds a response's Set-Cookie headers into a new state and re-reads
// the CSRF token, which the provider may rotate on any step.
func (s loginState) advance(resp *http.Response) loginState {
	next := loginState{cookies: s.cookies.withResponse(resp), csrf: s.csrf}
	if token, ok := extractCSRFToken(next.cookies.header()); ok {
		next.csrf = token
	}
	return next
}

type lookupResult struct {
	Lookup *struct {
		Identifier string `json:"identifier"`
		Digest     string `json:"digest"`
	} `json:"lookup"`
}

// Authenticate logs username in and returns the resulting session.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (Session, error) {
	log := a.log.WithField("username", username)

	log.Debug("Step 1: fetching login page")
	state, err := a.openLoginPage(ctx)
	if err != nil {
		return Session{}, err
	}
	if err := a.Pause(ctx); err != nil {
		return Session{}, errors.Wrap(err, "login interrupted")
	}

	log.Debug("Step 2: looking up user")
	identifier, digest, state, err := a.lookupUser(ctx, state, username)
	if err != nil {
		return Session{}, err
	}
	if err := a.Pause(ctx); err != nil {
		return Session{}, errors.Wrap(err, "login interrupted")
	}

	log.Debug("Step 3: submitting password")
	state, err = a.submitPassword(ctx, state, identifier, digest, password)
	if err != nil {
		return Session{}, err
	}

	log.Info("Login successful")
	return Session{Cookie: state.cookies.header(), CSRFToken: state.csrf}, nil
}

func (a *Authenticator) loginPageURL() string {
	q := url.Values{}
	q.Set("hide_fp", "true")
	q.Set("servicename", "ZohoCreator")
	q.Set("service_language", "en")
	q.Set("css_url", "/49910842/academia-academic-services/downloadPortalCustomCss/login")
	q.Set("dcc", "true")
	q.Set("serviceurl", a.baseURL+redirectPath)
	return a.baseURL + signinPath + "?" + q.Encode()
}

func (a *Authenticator) openLoginPage(ctx context.Context) (loginState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.loginPageURL(), nil)
	if err != nil {
		return loginState{}, errors.Wrap(err, "error creating login page request")
	}
	setBrowserHeaders(req, "")

	resp, _, err := a.do(req)
	if err != nil {
		return loginState{}, err
	}
	if !is2xx(resp.StatusCode) {
		return loginState{}, errors.Wrapf(ErrUpstreamUnavailable, "login page returned %s", resp.Status)
	}

	state := loginState{cookies: newCookieSet(resp.Cookies())}
	token, ok := extractCSRFToken(state.cookies.header())
	if !ok {
		return loginState{}, errors.Wrapf(ErrProtocol, "login page did not set the %s cookie", csrfCookieName)
	}
	state.csrf = token
	return state, nil
}

func (a *Authenticator) lookupUser(ctx context.Context, state loginState, username string) (string, string, loginState, error) {
	form := url.Values{}
	form.Set("mode", "primary")
	form.Set("cli_time", strconv.FormatInt(a.now().UnixMilli(), 10))
	form.Set("servicename", "ZohoCreator")
	form.Set("service_language", "en")
	form.Set("serviceurl", a.baseURL+redirectPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+lookupPath+url.PathEscape(username), strings.NewReader(form.Encode()))
	if err != nil {
		return "", "", state, errors.Wrap(err, "error creating lookup request")
	}
	setXHRHeaders(req, a.loginPageURL(), a.baseURL)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")
	a.authorize(req, state)

	resp, body, err := a.do(req)
	if err != nil {
		return "", "", state, err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return "", "", state, errors.Wrapf(ErrUpstreamUnavailable, "user lookup returned %s", resp.Status)
	}
	state = state.advance(resp)

	var result lookupResult
	if err := json.Unmarshal(body, &result); err != nil {
		a.log.Debugf("Unreadable lookup response (%s): %.200s", resp.Status, body)
	}
	if result.Lookup == nil || result.Lookup.Identifier == "" || result.Lookup.Digest == "" {
		return "", "", state, errors.Wrap(ErrInvalidCredentials, "user lookup failed")
	}
	return result.Lookup.Identifier, result.Lookup.Digest, state, nil
}

func (a *Authenticator) submitPassword(ctx context.Context, state loginState, identifier, digest, password string) (loginState, error) {
	payload, err := json.Marshal(map[string]any{
		"passwordauth": map[string]string{"password": password},
	})
	if err != nil {
		return state, errors.Wrap(err, "error encoding password request")
	}

	endpoint := a.baseURL + strings.Replace(passwordPath, "%s", url.PathEscape(identifier), 1) +
		"?" + url.Values{"digest": {digest}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return state, errors.Wrap(err, "error creating password request")
	}
	setXHRHeaders(req, a.loginPageURL(), a.baseURL)
	req.Header.Set("Content-Type", "application/json")
	a.authorize(req, state)

	resp, body, err := a.do(req)
	if err != nil {
		return state, err
	}
	a.log.Debugf("Password response %s: %.200s", resp.Status, body)

	text := string(body)
	lower := strings.ToLower(text)
	for _, marker := range automationMarkers {
		if strings.Contains(lower, marker) {
			return state, errors.WithStack(ErrAutomationBlocked)
		}
	}
	// Covers both the "errors" array and single "error" objects.
	if strings.Contains(text, "error") {
		return state, errors.Wrap(ErrInvalidCredentials, "password rejected")
	}
	if !is2xx(resp.StatusCode) {
		return state, errors.Wrapf(ErrUpstreamUnavailable, "password step returned %s", resp.Status)
	}
	return state.advance(resp), nil
}

// Logout ends the session. Failures are logged and never returned.
func (a *Authenticator) Logout(ctx context.Context, session Session) {
	if !session.Valid() {
		return
	}
	q := url.Values{}
	q.Set("servicename", "ZohoCreator")
	q.Set("serviceurl", a.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+logoutPath+"?"+q.Encode(), nil)
	if err != nil {
		a.log.Warnf("Error creating logout request: %v", err)
		return
	}
	setBrowserHeaders(req, a.baseURL+"/")
	req.Header.Set("Cookie", session.Cookie)

	resp, _, err := a.do(req)
	if err != nil {
		a.log.Warnf("Logout failed: %v", err)
		return
	}
	if resp.StatusCode >= http.StatusBadRequest {
		a.log.Warnf("Logout returned %s", resp.Status)
		return
	}
	a.log.Debug("Logged out")
}

func (a *Authenticator) authorize(req *http.Request, state loginState) {
	req.Header.Set("Cookie", state.cookies.header())
	req.Header.Set(csrfHeader, csrfHeaderPrefix+state.csrf)
}

// do sends req and reads the whole body. Transport failures, including
// timeouts, become ErrUpstreamUnavailable.
func (a *Authenticator) do(req *http.Request) (*http.Response, []byte, error) {
	return send(a.client, req)
}

func send(client *http.Client, req *http.Request) (*http.Response, []byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, errors.Wrapf(ErrUpstreamUnavailable, "%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, errors.Wrapf(ErrUpstreamUnavailable, "reading %s: %v", req.URL.Path, err)
	}
	return resp, body, nil
}

func is2xx(status int) bool {
	return status >= 200 && status < 300
}
