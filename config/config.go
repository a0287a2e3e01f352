package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultPortalBaseURL = "https://academia.srmist.edu.in"
	DefaultProductID     = "-//CalSync//EN"
	DefaultUIDDomain     = "calsync.com"
	DefaultTimezone      = "Asia/Kolkata"
	DefaultHTTPPort      = "8100"
)

// Config holds everything the calendar pipeline, the HTTP server and the daemon need.
// Values come from an optional JSON file and are then overridden by the environment.
type Config struct {
	PortalBaseURL string `json:"portal_base_url"`

	// TimetableYearOffset is subtracted from the current year to get the first
	// half of the timetable page's academic-year token (2026 with offset 2 -> "2024_25").
	TimetableYearOffset int `json:"timetable_year_offset"`
	// SemesterSplitMonth is the first month of the ODD semester. Earlier months
	// belong to the EVEN semester of the academic year that started last year.
	SemesterSplitMonth int `json:"semester_split_month"`

	Timezone  string `json:"timezone"`
	ProductID string `json:"product_id"`
	UIDDomain string `json:"uid_domain"`

	LoginDelayMin time.Duration `json:"-"`
	LoginDelayMax time.Duration `json:"-"`
	HTTPTimeout   time.Duration `json:"-"`
	FetchRetries  int           `json:"fetch_retries"`

	LogLevel    string `json:"log_level"`
	Environment string `json:"environment"`

	DatabaseURL   string `json:"database_url"`
	EncryptionKey string `json:"encryption_key"`

	HTTPPort      string        `json:"http_port"`
	PublicBaseURL string        `json:"public_base_url"`
	FeedCacheTTL  time.Duration `json:"-"`
	RefreshCron   string        `json:"refresh_cron"`

	GithubToken string `json:"github_token"`
	GithubRepo  string `json:"github_repo"`
	GithubPath  string `json:"github_path"`

	GoogleClientID     string `json:"google_client_id"`
	GoogleClientSecret string `json:"google_client_secret"`
	GoogleRedirectURI  string `json:"google_redirect_uri"`
	GoogleTokenFile    string `json:"google_token_file"`
}

func defaults() *Config {
	return &Config{
		PortalBaseURL:       DefaultPortalBaseURL,
		TimetableYearOffset: 2,
		SemesterSplitMonth:  7,
		Timezone:            DefaultTimezone,
		ProductID:           DefaultProductID,
		UIDDomain:           DefaultUIDDomain,
		LoginDelayMin:       300 * time.Millisecond,
		LoginDelayMax:       900 * time.Millisecond,
		HTTPTimeout:         20 * time.Second,
		FetchRetries:        2,
		LogLevel:            "info",
		Environment:         "development",
		HTTPPort:            DefaultHTTPPort,
		GithubPath:          "feeds",
		GoogleTokenFile:     "token.json",
	}
}

// LoadConfig reads filename when it exists and applies environment overrides on top.
// An empty filename skips the file.
func LoadConfig(filename string) (*Config, error) {
	// .env is optional and never overrides variables that are already set.
	_ = godotenv.Load()

	cfg := defaults()
	if filename != "" {
		file, err := os.Open(filename)
		switch {
		case err == nil:
			defer file.Close()
			if err := json.NewDecoder(file).Decode(cfg); err != nil {
				return nil, fmt.Errorf("invalid config file %s: %w", filename, err)
			}
		case !os.IsNotExist(err):
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.PortalBaseURL, "PORTAL_BASE_URL")
	setString(&c.Timezone, "TIMEZONE")
	setString(&c.ProductID, "PRODUCT_ID")
	setString(&c.UIDDomain, "UID_DOMAIN")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.EncryptionKey, "ENCRYPTION_KEY")
	setString(&c.HTTPPort, "HTTP_PORT")
	setString(&c.PublicBaseURL, "PUBLIC_BASE_URL")
	setString(&c.RefreshCron, "REFRESH_CRON")
	setString(&c.GithubToken, "GITHUB_TOKEN")
	setString(&c.GithubRepo, "GITHUB_REPO")
	setString(&c.GithubPath, "GITHUB_PATH")
	setString(&c.GoogleClientID, "GOOGLE_CLIENT_ID")
	setString(&c.GoogleClientSecret, "GOOGLE_CLIENT_SECRET")
	setString(&c.GoogleRedirectURI, "GOOGLE_REDIRECT_URI")
	setString(&c.GoogleTokenFile, "GOOGLE_TOKEN_FILE")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		c.Environment = strings.ToLower(v)
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"TIMETABLE_YEAR_OFFSET", &c.TimetableYearOffset},
		{"SEMESTER_SPLIT_MONTH", &c.SemesterSplitMonth},
		{"FETCH_RETRIES", &c.FetchRetries},
	}
	for _, i := range ints {
		if err := setInt(i.dst, i.key); err != nil {
			return err
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"LOGIN_DELAY_MIN", &c.LoginDelayMin},
		{"LOGIN_DELAY_MAX", &c.LoginDelayMax},
		{"HTTP_TIMEOUT", &c.HTTPTimeout},
		{"FEED_CACHE_TTL", &c.FeedCacheTTL},
	}
	for _, d := range durations {
		if err := setDuration(d.dst, d.key); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	if c.PortalBaseURL == "" {
		return fmt.Errorf("PORTAL_BASE_URL is not set")
	}
	if c.SemesterSplitMonth < 1 || c.SemesterSplitMonth > 12 {
		return fmt.Errorf("invalid SEMESTER_SPLIT_MONTH: %d", c.SemesterSplitMonth)
	}
	if c.TimetableYearOffset < 0 {
		return fmt.Errorf("invalid TIMETABLE_YEAR_OFFSET: %d", c.TimetableYearOffset)
	}
	if c.LoginDelayMax < c.LoginDelayMin {
		return fmt.Errorf("LOGIN_DELAY_MAX (%s) is lower than LOGIN_DELAY_MIN (%s)", c.LoginDelayMax, c.LoginDelayMin)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return nil
}

// ValidateStore checks the settings needed by commands that touch stored subscriptions.
func (c *Config) ValidateStore() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	if c.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is not set")
	}
	return nil
}

func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

func (c *Config) GithubEnabled() bool {
	return c.GithubToken != "" && c.GithubRepo != ""
}

func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}
