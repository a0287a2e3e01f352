package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"academia-calsync/config"
	"academia-calsync/feed"
	"academia-calsync/googlecalendar"
	"academia-calsync/logger"
	"academia-calsync/scraper"
	"academia-calsync/secret"
	"academia-calsync/store"
	"academia-calsync/subscription"
)

// app is the wired pipeline shared by every command.
type app struct {
	cfg      *config.Config
	location *time.Location
	service  *subscription.Service
	db       *sql.DB
}

// newApp builds the pipeline. withStore connects to the database and enables
// stored subscriptions.
func newApp(ctx context.Context, cfg *config.Config, withStore bool) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	client := scraper.NewHTTPClient(cfg.HTTPTimeout)
	auth := scraper.NewAuthenticator(client, cfg.PortalBaseURL, logger.For("auth"))
	auth.Pause = scraper.RandomPause(cfg.LoginDelayMin, cfg.LoginDelayMax)

	calendar := scraper.AcademicCalendar{
		TimetableYearOffset: cfg.TimetableYearOffset,
		SemesterSplitMonth:  cfg.SemesterSplitMonth,
	}
	fetcher := scraper.NewFetcher(client, cfg.PortalBaseURL, calendar, logger.For("fetcher"))
	fetcher.Retries = cfg.FetchRetries

	deps := subscription.Deps{
		Auth:      auth,
		Fetcher:   fetcher,
		Timetable: scraper.NewTimetableParser(scraper.BatchSlots, logger.For("timetable")),
		Planner:   scraper.NewPlannerParser(logger.For("planner")),
		Generator: feed.NewGenerator(loc, cfg.ProductID, cfg.UIDDomain, logger.For("feed")),
	}

	a := &app{cfg: cfg, location: loc}
	if withStore {
		if err := cfg.ValidateStore(); err != nil {
			return nil, err
		}
		db, err := store.NewPostgresConnection(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		repo := store.NewPostgresUserRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		box, err := secret.NewBox(cfg.EncryptionKey)
		if err != nil {
			db.Close()
			return nil, err
		}
		a.db = db
		deps.Users = repo
		deps.Secrets = box
		logger.Log.Info("Connected to subscription database")
	}

	a.service = subscription.NewService(deps, cfg.FeedCacheTTL, logger.For("subscription"))
	return a, nil
}

// googleAuthorizer is nil unless Google OAuth is configured.
func (a *app) googleAuthorizer() *googlecalendar.Authorizer {
	if !a.cfg.GoogleEnabled() {
		return nil
	}
	return googlecalendar.NewAuthorizer(a.cfg.GoogleClientID, a.cfg.GoogleClientSecret,
		a.cfg.GoogleRedirectURI, a.cfg.GoogleTokenFile, logger.For("google"))
}

func (a *app) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logger.Log.Warnf("Error closing database: %v", err)
		}
	}
}

func requireFlag(name, value string) error {
	if value == "" {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}
