package store

import (
	"context"
	"database/sql"
	"time"
)

// User is a subscribed portal account. The password is stored encrypted.
type User struct {
	ID                int64
	Username          string
	EncryptedPassword string
	SubscriptionToken string
	GoogleCalendarID  sql.NullString
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Repository persists subscriptions.
type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByToken(ctx context.Context, token string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	UpdatePassword(ctx context.Context, id int64, encryptedPassword string) error
	SetGoogleCalendar(ctx context.Context, id int64, calendarID string) error
	ListAll(ctx context.Context) ([]*User, error)
}
