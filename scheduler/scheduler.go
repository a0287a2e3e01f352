package scheduler

import (
	"context"
	"time"

	"academia-calsync/store"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Feeds regenerates stored subscriptions.
type Feeds interface {
	Subscriptions(ctx context.Context) ([]*store.User, error)
	Refresh(ctx context.Context, user *store.User) (string, error)
}

// Publisher copies a feed somewhere public, e.g. a GitHub repository.
type Publisher interface {
	Upload(ctx context.Context, name string, content []byte) error
}

// Mirror pushes a feed into an external calendar.
type Mirror interface {
	Sync(ctx context.Context, calendarID, feed string) error
}

// RunReport summarises one refresh run.
type RunReport struct {
	Users     int
	Refreshed int
	Failed    int
}

// RefreshScheduler regenerates every subscription on a cron schedule.
type RefreshScheduler struct {
	cronEngine *cron.Cron
	cronSpec   string
	feeds      Feeds
	publisher  Publisher
	mirror     Mirror
	// UserTimeout bounds one user's refresh, login and logout included.
	UserTimeout time.Duration
	log         logrus.FieldLogger
}

// NewRefreshScheduler builds a scheduler; publisher and mirror may be nil.
func NewRefreshScheduler(feeds Feeds, publisher Publisher, mirror Mirror, cronSpec string, loc *time.Location, log logrus.FieldLogger) *RefreshScheduler {
	return &RefreshScheduler{
		cronEngine: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log))),
		),
		cronSpec:    cronSpec,
		feeds:       feeds,
		publisher:   publisher,
		mirror:      mirror,
		UserTimeout: 2 * time.Minute,
		log:         log,
	}
}

func (s *RefreshScheduler) Start() error {
	s.log.Infof("Starting refresh scheduler with spec %q", s.cronSpec)
	_, err := s.cronEngine.AddFunc(s.cronSpec, func() {
		s.log.Info("Cron job triggered for feed refresh")
		report := s.RunOnce(context.Background())
		s.log.Infof("Feed refresh finished: %d users, %d refreshed, %d failed", report.Users, report.Refreshed, report.Failed)
	})
	if err != nil {
		return errors.Wrapf(err, "could not add refresh cron job %q", s.cronSpec)
	}
	s.cronEngine.Start()
	return nil
}

// Stop waits for a running refresh to finish.
func (s *RefreshScheduler) Stop() {
	s.log.Info("Stopping refresh scheduler...")
	ctx := s.cronEngine.Stop()
	<-ctx.Done()
	s.log.Info("Refresh scheduler gracefully stopped")
}

// RunOnce refreshes every subscription in turn. A failing user is logged and
// skipped.
func (s *RefreshScheduler) RunOnce(ctx context.Context) RunReport {
	var report RunReport

	users, err := s.feeds.Subscriptions(ctx)
	if err != nil {
		s.log.Errorf("Error listing subscriptions: %v", err)
		return report
	}
	report.Users = len(users)

	for _, user := range users {
		if ctx.Err() != nil {
			s.log.Warnf("Refresh interrupted: %v", ctx.Err())
			break
		}
		if err := s.refreshUser(ctx, user); err != nil {
			report.Failed++
			s.log.WithField("username", user.Username).Errorf("Error refreshing feed: %v", err)
			continue
		}
		report.Refreshed++
	}
	return report
}

func (s *RefreshScheduler) refreshUser(ctx context.Context, user *store.User) error {
	if s.UserTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.UserTimeout)
		defer cancel()
	}

	feed, err := s.feeds.Refresh(ctx, user)
	if err != nil {
		return err
	}
	if s.publisher != nil {
		if err := s.publisher.Upload(ctx, user.SubscriptionToken, []byte(feed)); err != nil {
			return errors.Wrap(err, "error publishing feed")
		}
	}
	if s.mirror != nil && user.GoogleCalendarID.Valid && user.GoogleCalendarID.String != "" {
		if err := s.mirror.Sync(ctx, user.GoogleCalendarID.String, feed); err != nil {
			return errors.Wrap(err, "error syncing Google Calendar")
		}
	}
	return nil
}
