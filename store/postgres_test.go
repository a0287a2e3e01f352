package store

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real database only when TEST_DATABASE_URL is set.
func newTestRepository(t *testing.T) *PostgresUserRepository {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := NewPostgresConnection(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewPostgresUserRepository(db)
	require.NoError(t, repo.EnsureSchema(context.Background()))
	return repo
}

func TestPostgresUserRepository(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	u := &User{
		Username:          "ab1234@example.edu." + uuid.NewString(),
		EncryptedPassword: "cipher",
		SubscriptionToken: uuid.NewString(),
	}
	require.NoError(t, repo.Create(ctx, u))
	assert.NotZero(t, u.ID)

	dup := *u
	dup.SubscriptionToken = uuid.NewString()
	assert.ErrorIs(t, repo.Create(ctx, &dup), ErrDuplicateUsername)

	got, err := repo.GetByToken(ctx, u.SubscriptionToken)
	require.NoError(t, err)
	assert.Equal(t, u.Username, got.Username)
	assert.False(t, got.GoogleCalendarID.Valid)

	require.NoError(t, repo.UpdatePassword(ctx, u.ID, "cipher-2"))
	require.NoError(t, repo.SetGoogleCalendar(ctx, u.ID, "primary"))
	got, err = repo.GetByUsername(ctx, u.Username)
	require.NoError(t, err)
	assert.Equal(t, "cipher-2", got.EncryptedPassword)
	assert.Equal(t, "primary", got.GoogleCalendarID.String)

	_, err = repo.GetByToken(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.ErrorIs(t, repo.UpdatePassword(ctx, -1, "x"), ErrUserNotFound)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, all)
}
