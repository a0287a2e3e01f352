package site

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"academia-calsync/scraper"
	"academia-calsync/store"
	"academia-calsync/subscription"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	calendarContentType = "text/calendar; charset=utf-8"
	calendarFilename    = "calsync.ics"
	oauthStateTTL       = 10 * time.Minute
)

// Calendars is what the HTTP API needs from the subscription service.
type Calendars interface {
	Subscribe(ctx context.Context, username, password string) (*store.User, error)
	CalendarForToken(ctx context.Context, token string) (string, error)
	LinkGoogleCalendar(ctx context.Context, token, calendarID string) error
}

// GoogleAuthorizer runs the one-time OAuth consent for the Google account
// feeds are mirrored to.
type GoogleAuthorizer interface {
	AuthURL(state string) string
	ExchangeAndSave(ctx context.Context, code string) error
}

type subscribeRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

type subscribeResponse struct {
	SubscriptionURL string `json:"subscriptionUrl"`
}

type linkGoogleRequest struct {
	CalendarID string `json:"calendarId" form:"calendarId"`
}

type Server struct {
	echo          *echo.Echo
	calendars     Calendars
	google        GoogleAuthorizer
	oauthStates   *cache.Cache
	publicBaseURL string
	log           logrus.FieldLogger
}

// NewServer wires the routes. publicBaseURL may be empty, in which case feed
// links are built from the incoming request.
func NewServer(calendars Calendars, publicBaseURL string, log logrus.FieldLogger) *Server {
	s := &Server{
		echo:          echo.New(),
		calendars:     calendars,
		oauthStates:   cache.New(oauthStateTTL, 2*oauthStateTTL),
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		log:           log,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	// Route patterns only; the raw URI carries subscription tokens.
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.WithFields(logrus.Fields{
				"method":  v.Method,
				"route":   c.Path(),
				"status":  v.Status,
				"latency": v.Latency,
			}).Debug("HTTP request")
			return nil
		},
	}))

	s.echo.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
	s.echo.POST("/api/subscribe", s.subscribeHandler)
	s.echo.GET("/api/calendar/:token", s.calendarHandler)
	s.echo.PUT("/api/calendar/:token/google", s.linkGoogleHandler)
	s.echo.GET("/auth/google", s.googleAuthHandler)
	s.echo.GET("/auth_callback", s.authCallbackHandler)
	return s
}

// WithGoogle enables the Google OAuth routes.
func (s *Server) WithGoogle(google GoogleAuthorizer) *Server {
	s.google = google
	return s
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on port until Shutdown is called.
func (s *Server) Start(port string) error {
	s.log.Infof("Starting HTTP server on http://0.0.0.0:%s", port)
	err := s.echo.Start(fmt.Sprintf(":%s", port))
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) subscribeHandler(c echo.Context) error {
	var req subscribeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "username and password are required")
	}

	user, err := s.calendars.Subscribe(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, subscribeResponse{
		SubscriptionURL: subscription.SubscriptionURL(s.baseURL(c), user.SubscriptionToken),
	})
}

func (s *Server) calendarHandler(c echo.Context) error {
	ics, err := s.calendars.CalendarForToken(c.Request().Context(), c.Param("token"))
	if err != nil {
		return s.httpError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", calendarFilename))
	return c.Blob(http.StatusOK, calendarContentType, []byte(ics))
}

func (s *Server) linkGoogleHandler(c echo.Context) error {
	var req linkGoogleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.calendars.LinkGoogleCalendar(c.Request().Context(), c.Param("token"), req.CalendarID); err != nil {
		return s.httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) googleAuthHandler(c echo.Context) error {
	if s.google == nil {
		return echo.NewHTTPError(http.StatusNotFound, "Google Calendar is not configured")
	}
	state := uuid.NewString()
	s.oauthStates.SetDefault(state, struct{}{})
	return c.Redirect(http.StatusSeeOther, s.google.AuthURL(state))
}

func (s *Server) authCallbackHandler(c echo.Context) error {
	if s.google == nil {
		return echo.NewHTTPError(http.StatusNotFound, "Google Calendar is not configured")
	}
	state := c.QueryParam("state")
	if _, ok := s.oauthStates.Get(state); !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown or expired authorization state")
	}
	s.oauthStates.Delete(state)

	code := c.QueryParam("code")
	if code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing authorization code")
	}
	if err := s.google.ExchangeAndSave(c.Request().Context(), code); err != nil {
		s.log.Errorf("Google authorization failed: %v", err)
		return c.String(http.StatusBadGateway, "Authorization failed. Please try again.")
	}
	return c.String(http.StatusOK, "Authorization completed. You can close this window.")
}

// baseURL prefers the configured public URL; echo's Scheme already honours
// X-Forwarded-Proto.
func (s *Server) baseURL(c echo.Context) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL
	}
	return c.Scheme() + "://" + c.Request().Host
}

// httpError maps pipeline errors to status codes. Details stay in the log.
func (s *Server) httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, scraper.ErrAutomationBlocked):
		return echo.NewHTTPError(http.StatusUnauthorized, "the portal blocked this login as automated, please try again later")
	case errors.Is(err, scraper.ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid username or password")
	case errors.Is(err, store.ErrUserNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "subscription not found")
	case errors.Is(err, scraper.ErrUpstreamUnavailable), errors.Is(err, scraper.ErrProtocol):
		s.log.Warnf("Portal failure: %v", err)
		return echo.NewHTTPError(http.StatusBadGateway, "the academic portal is unavailable")
	default:
		s.log.Errorf("Request failed: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
