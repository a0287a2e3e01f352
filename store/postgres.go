package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

var (
	ErrUserNotFound      = fmt.Errorf("subscription not found")
	ErrDuplicateUsername = fmt.Errorf("a subscription for this username already exists")
)

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnMaxIdleTime = 1 * time.Minute
)

const schema = `CREATE TABLE IF NOT EXISTS users (
	id                 BIGSERIAL PRIMARY KEY,
	username           TEXT NOT NULL UNIQUE,
	encrypted_password TEXT NOT NULL,
	subscription_token TEXT NOT NULL UNIQUE,
	google_calendar_id TEXT,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const userColumns = `id, username, encrypted_password, subscription_token, google_calendar_id, created_at, updated_at`

// NewPostgresConnection opens and pings a PostgreSQL database.
func NewPostgresConnection(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

type PostgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

// EnsureSchema creates the users table when it does not exist.
func (r *PostgresUserRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("error creating users table: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) Create(ctx context.Context, u *User) error {
	query := `INSERT INTO users (username, encrypted_password, subscription_token, google_calendar_id)
               VALUES ($1, $2, $3, $4)
               RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query, u.Username, u.EncryptedPassword, u.SubscriptionToken, u.GoogleCalendarID).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "unique constraint") && strings.Contains(err.Error(), "users_username_key") {
			return ErrDuplicateUsername
		}
		return fmt.Errorf("error creating user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) GetByToken(ctx context.Context, token string) (*User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE subscription_token = $1`, token)
}

func (r *PostgresUserRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (r *PostgresUserRepository) UpdatePassword(ctx context.Context, id int64, encryptedPassword string) error {
	return r.exec(ctx, `UPDATE users SET encrypted_password = $1, updated_at = NOW() WHERE id = $2`, encryptedPassword, id)
}

func (r *PostgresUserRepository) SetGoogleCalendar(ctx context.Context, id int64, calendarID string) error {
	value := sql.NullString{String: calendarID, Valid: calendarID != ""}
	return r.exec(ctx, `UPDATE users SET google_calendar_id = $1, updated_at = NOW() WHERE id = $2`, value, id)
}

func (r *PostgresUserRepository) ListAll(ctx context.Context) ([]*User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("error listing users: %w", err)
	}
	defer rows.Close()

	users := make([]*User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning user: %w", err)
		}
		users = append(users, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

func (r *PostgresUserRepository) getOne(ctx context.Context, query string, arg any) (*User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("error getting user: %w", err)
	}
	return u, nil
}

func (r *PostgresUserRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error updating user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*User, error) {
	u := &User{}
	err := row.Scan(&u.ID, &u.Username, &u.EncryptedPassword, &u.SubscriptionToken, &u.GoogleCalendarID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}
