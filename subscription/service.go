// Package subscription runs the portal-to-calendar pipeline for stored and
// ad-hoc credentials.
package subscription

import (
	"context"
	"fmt"
	"strings"
	"time"

	"academia-calsync/feed"
	"academia-calsync/scraper"
	"academia-calsync/store"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Authenticator logs in to the portal and out again.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (scraper.Session, error)
	Logout(ctx context.Context, session scraper.Session)
}

// PageFetcher downloads the two pages a calendar is built from.
type PageFetcher interface {
	FetchTimetable(ctx context.Context, session scraper.Session) (string, error)
	FetchAcademicPlanner(ctx context.Context, session scraper.Session) (string, error)
}

// Cipher protects stored passwords.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(encoded string) (string, error)
}

// GenerationError is any failure of a full pipeline run. Err keeps the cause.
type GenerationError struct {
	Username string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("calendar generation for %s failed: %v", e.Username, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Deps are the collaborators of a Service. Users and Secrets may be nil when
// only ad-hoc generation is needed.
type Deps struct {
	Auth      Authenticator
	Fetcher   PageFetcher
	Timetable *scraper.TimetableParser
	Planner   *scraper.PlannerParser
	Generator *feed.Generator
	Users     store.Repository
	Secrets   Cipher
}

type Service struct {
	Deps
	feeds *cache.Cache
	log   logrus.FieldLogger
}

// NewService builds a Service. Generated feeds are cached per subscription
// token for cacheTTL; zero disables the cache and every request logs in.
func NewService(deps Deps, cacheTTL time.Duration, log logrus.FieldLogger) *Service {
	s := &Service{Deps: deps, log: log}
	if cacheTTL > 0 {
		s.feeds = cache.New(cacheTTL, 2*cacheTTL)
	}
	return s
}

// ValidateCredentials logs in and straight out again.
func (s *Service) ValidateCredentials(ctx context.Context, username, password string) error {
	session, err := s.Auth.Authenticate(ctx, username, password)
	if err != nil {
		return err
	}
	s.Auth.Logout(context.WithoutCancel(ctx), session)
	return nil
}

// Subscribe validates the credentials and stores them. An existing
// subscription keeps its token and gets the new password.
func (s *Service) Subscribe(ctx context.Context, username, password string) (*store.User, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, errors.Wrap(scraper.ErrInvalidCredentials, "username and password are required")
	}
	if err := s.ValidateCredentials(ctx, username, password); err != nil {
		return nil, err
	}

	encrypted, err := s.Secrets.Encrypt(password)
	if err != nil {
		return nil, errors.Wrap(err, "error encrypting password")
	}

	user, err := s.Users.GetByUsername(ctx, username)
	switch {
	case err == nil:
		if err := s.Users.UpdatePassword(ctx, user.ID, encrypted); err != nil {
			return nil, err
		}
		user.EncryptedPassword = encrypted
		s.invalidate(user.SubscriptionToken)
		s.log.Infof("Updated subscription for %s", username)
		return user, nil
	case errors.Is(err, store.ErrUserNotFound):
		user = &store.User{
			Username:          username,
			EncryptedPassword: encrypted,
			SubscriptionToken: uuid.NewString(),
		}
		if err := s.Users.Create(ctx, user); err != nil {
			return nil, err
		}
		s.log.Infof("Created subscription for %s", username)
		return user, nil
	default:
		return nil, err
	}
}

// Generate runs the whole pipeline for one login. Logout is attempted on every
// path once a session exists.
func (s *Service) Generate(ctx context.Context, username, password string) (ics string, err error) {
	defer func() {
		if err != nil {
			err = &GenerationError{Username: username, Err: err}
		}
	}()

	session, err := s.Auth.Authenticate(ctx, username, password)
	if err != nil {
		return "", err
	}
	defer s.Auth.Logout(context.WithoutCancel(ctx), session)

	timetableHTML, err := s.Fetcher.FetchTimetable(ctx, session)
	if err != nil {
		return "", err
	}
	plannerHTML, err := s.Fetcher.FetchAcademicPlanner(ctx, session)
	if err != nil {
		return "", err
	}

	timetable, err := s.Timetable.ParseSchedule(timetableHTML)
	if err != nil {
		return "", err
	}
	planner := s.Planner.Parse(plannerHTML)

	return s.Generator.Generate(timetable, planner), nil
}

// CalendarForToken returns the feed of the subscription owning token.
func (s *Service) CalendarForToken(ctx context.Context, token string) (string, error) {
	if err := s.requireStore(); err != nil {
		return "", err
	}
	if cached, ok := s.cached(token); ok {
		s.log.Debug("Serving calendar from cache")
		return cached, nil
	}
	user, err := s.Users.GetByToken(ctx, token)
	if err != nil {
		return "", err
	}
	return s.Refresh(ctx, user)
}

// Refresh regenerates the feed of user and replaces any cached copy.
func (s *Service) Refresh(ctx context.Context, user *store.User) (string, error) {
	if err := s.requireStore(); err != nil {
		return "", err
	}
	password, err := s.Secrets.Decrypt(user.EncryptedPassword)
	if err != nil {
		return "", errors.Wrapf(err, "error decrypting password of %s", user.Username)
	}
	ics, err := s.Generate(ctx, user.Username, password)
	if err != nil {
		return "", err
	}
	if s.feeds != nil {
		s.feeds.SetDefault(user.SubscriptionToken, ics)
	}
	return ics, nil
}

// LinkGoogleCalendar records the Google calendar a subscription is mirrored to.
// An empty calendarID unlinks it.
func (s *Service) LinkGoogleCalendar(ctx context.Context, token, calendarID string) error {
	if err := s.requireStore(); err != nil {
		return err
	}
	user, err := s.Users.GetByToken(ctx, token)
	if err != nil {
		return err
	}
	return s.Users.SetGoogleCalendar(ctx, user.ID, strings.TrimSpace(calendarID))
}

// Subscriptions lists every stored subscription.
func (s *Service) Subscriptions(ctx context.Context) ([]*store.User, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	return s.Users.ListAll(ctx)
}

// SubscriptionURL is the public feed address of token.
func SubscriptionURL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/api/calendar/" + token
}

func (s *Service) cached(token string) (string, bool) {
	if s.feeds == nil {
		return "", false
	}
	v, ok := s.feeds.Get(token)
	if !ok {
		return "", false
	}
	ics, ok := v.(string)
	return ics, ok
}

func (s *Service) invalidate(token string) {
	if s.feeds != nil {
		s.feeds.Delete(token)
	}
}

func (s *Service) requireStore() error {
	if s.Users == nil || s.Secrets == nil {
		return errors.New("subscription store is not configured")
	}
	return nil
}
