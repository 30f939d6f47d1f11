package psql

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smidr/smidr/config"
	"smidr/smidr/sources/psql/dao"
	"smidr/smidr/sources/psql/models"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(context.Background(), config.Config{DBDriver: "sqlite", DBDSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestSeedAndAuthenticate(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	require.NoError(t, db.SeedUsers(ctx, []config.User{
		{Username: "Alice@Example.com", Password: "pw", Pages: []string{"reports", "chat"}},
		{Username: "bob", Password: "hunter2", Pages: []string{"default"}},
	}))

	users := dao.NewUserDAO(db.DB)
	user, err := users.Authenticate(ctx, "alice@example.COM", "pw")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Username)
	assert.Equal(t, []string{"reports", "chat"}, user.Pages)
	assert.NotEqual(t, "pw", user.PasswordHash)

	_, err = users.Authenticate(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, dao.ErrInvalidCredentials)

	_, err = users.Authenticate(ctx, "nobody", "pw")
	assert.ErrorIs(t, err, dao.ErrInvalidCredentials)
}

func TestSeedReplacesPassword(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	require.NoError(t, db.SeedUsers(ctx, []config.User{{Username: "bob", Password: "old", Pages: []string{"a"}}}))
	require.NoError(t, db.SeedUsers(ctx, []config.User{{Username: "bob", Password: "new", Pages: []string{"b"}}}))

	users := dao.NewUserDAO(db.DB)
	var count int64
	require.NoError(t, db.DB.Model(&models.User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	_, err := users.Authenticate(ctx, "bob", "old")
	assert.ErrorIs(t, err, dao.ErrInvalidCredentials)
	user, err := users.Authenticate(ctx, "bob", "new")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, user.Pages)
}

func TestGetUserByUsernameNotFound(t *testing.T) {
	db := newTestDatabase(t)
	_, err := dao.NewUserDAO(db.DB).GetUserByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, dao.ErrUserNotFound)
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := NewDatabase(context.Background(), config.Config{DBDriver: "oracle"})
	assert.Error(t, err)
}
