package users_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	users "github.com/goliatone/go-users"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupUsersDB(t *testing.T) (*bun.DB, users.Users) {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	_, err = db.NewCreateTable().
		Model((*users.User)(nil)).
		Exec(context.Background())
	require.NoError(t, err)

	return db, users.NewUsersRepository(db)
}

func seedUser(t *testing.T, repo users.Users, mutate ...func(*users.User)) *users.User {
	t.Helper()

	n := uuid.NewString()[:8]
	user := &users.User{
		Email:         fmt.Sprintf("user_%s@example.com", n),
		Nickname:      "user_" + n,
		Role:          users.RoleAuthenticated,
		PasswordHash:  "$2a$10$fakefakefakefakefakefake",
		EmailVerified: true,
	}
	for _, fn := range mutate {
		fn(user)
	}

	created, err := repo.Create(context.Background(), user)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)
	return created
}

func TestUsersRepositoryGetByIdentifier(t *testing.T) {
	ctx := context.Background()
	_, repo := setupUsersDB(t)

	user := seedUser(t, repo)

	t.Run("by id", func(t *testing.T) {
		found, err := repo.GetByIdentifier(ctx, user.ID.String())
		require.NoError(t, err)
		assert.Equal(t, user.ID, found.ID)
	})

	t.Run("by email", func(t *testing.T) {
		found, err := repo.GetByIdentifier(ctx, user.Email)
		require.NoError(t, err)
		assert.Equal(t, user.ID, found.ID)
	})

	t.Run("by nickname", func(t *testing.T) {
		found, err := repo.GetByIdentifier(ctx, user.Nickname)
		require.NoError(t, err)
		assert.Equal(t, user.ID, found.ID)
	})

	t.Run("unknown identifier", func(t *testing.T) {
		_, err := repo.GetByIdentifier(ctx, "nobody@example.com")
		require.Error(t, err)
		assert.True(t, repository.IsRecordNotFound(err))
	})
}

func TestUsersRepositoryRegister(t *testing.T) {
	ctx := context.Background()
	_, repo := setupUsersDB(t)

	record := &users.User{
		Email:    "fresh@example.com",
		Nickname: "fresh",
		// registration never trusts these from the caller
		EmailVerified: true,
		Locked:        true,
		LoginAttempts: 3,
	}

	created, err := repo.Register(ctx, record)
	require.NoError(t, err)

	assert.False(t, created.EmailVerified, "accounts start unverified")
	assert.False(t, created.Locked)
	assert.Equal(t, 0, created.LoginAttempts)
	assert.Equal(t, users.RoleAuthenticated, created.Role)
}

func TestUsersRepositoryTrackAttemptedLogin(t *testing.T) {
	ctx := context.Background()
	_, repo := setupUsersDB(t)

	t.Run("increments below threshold", func(t *testing.T) {
		user := seedUser(t, repo)

		updated, err := repo.TrackAttemptedLogin(ctx, user, users.MaxLoginAttempts)
		require.NoError(t, err)

		assert.Equal(t, 1, updated.LoginAttempts)
		assert.False(t, updated.Locked)
		assert.NotNil(t, updated.LoginAttemptAt)
	})

	t.Run("locks when the counter reaches the threshold", func(t *testing.T) {
		user := seedUser(t, repo)

		var updated *users.User
		var err error
		for i := 0; i < users.MaxLoginAttempts; i++ {
			updated, err = repo.TrackAttemptedLogin(ctx, user, users.MaxLoginAttempts)
			require.NoError(t, err)
		}

		assert.Equal(t, users.MaxLoginAttempts, updated.LoginAttempts)
		assert.True(t, updated.Locked)
		assert.NotNil(t, updated.LockedAt)
	})

	t.Run("locked_at does not move on later attempts", func(t *testing.T) {
		user := seedUser(t, repo)

		var updated *users.User
		var err error
		for i := 0; i < users.MaxLoginAttempts; i++ {
			updated, err = repo.TrackAttemptedLogin(ctx, user, users.MaxLoginAttempts)
			require.NoError(t, err)
		}
		lockedAt := updated.LockedAt
		require.NotNil(t, lockedAt)

		updated, err = repo.TrackAttemptedLogin(ctx, user, users.MaxLoginAttempts)
		require.NoError(t, err)
		assert.True(t, updated.Locked)
		assert.Equal(t, lockedAt.Unix(), updated.LockedAt.Unix())
	})
}

func TestUsersRepositoryTrackSuccessfulLogin(t *testing.T) {
	ctx := context.Background()
	_, repo := setupUsersDB(t)

	user := seedUser(t, repo)

	_, err := repo.TrackAttemptedLogin(ctx, user, users.MaxLoginAttempts)
	require.NoError(t, err)
	_, err = repo.TrackAttemptedLogin(ctx, user, users.MaxLoginAttempts)
	require.NoError(t, err)

	updated, err := repo.TrackSuccessfulLogin(ctx, user)
	require.NoError(t, err)

	assert.Equal(t, 0, updated.LoginAttempts)
	assert.Nil(t, updated.LoginAttemptAt)
	assert.NotNil(t, updated.LoggedInAt)
}

func TestUsersRepositorySetEmailVerified(t *testing.T) {
	ctx := context.Background()
	_, repo := setupUsersDB(t)

	user := seedUser(t, repo, func(u *users.User) {
		u.EmailVerified = false
	})
	require.False(t, user.EmailVerified)

	now := time.Now()
	updated, err := repo.SetEmailVerified(ctx, user.ID, now)
	require.NoError(t, err)

	assert.True(t, updated.EmailVerified)
	require.NotNil(t, updated.VerifiedAt)
	assert.Equal(t, now.Unix(), updated.VerifiedAt.Unix())
}

func TestUsersRepositoryResetLockout(t *testing.T) {
	ctx := context.Background()
	_, repo := setupUsersDB(t)

	user := seedUser(t, repo)
	for i := 0; i < users.MaxLoginAttempts; i++ {
		_, err := repo.TrackAttemptedLogin(ctx, user, users.MaxLoginAttempts)
		require.NoError(t, err)
	}

	updated, err := repo.ResetLockout(ctx, user.ID)
	require.NoError(t, err)

	assert.False(t, updated.Locked)
	assert.Nil(t, updated.LockedAt)
	assert.Equal(t, 0, updated.LoginAttempts)
}

func TestUsersRepositoryHasDuplicateIdentity(t *testing.T) {
	ctx := context.Background()
	_, repo := setupUsersDB(t)

	user := seedUser(t, repo)
	other := seedUser(t, repo)

	t.Run("matches on email", func(t *testing.T) {
		dup, err := repo.HasDuplicateIdentity(ctx, user.Email, "brand_new", uuid.Nil)
		require.NoError(t, err)
		assert.True(t, dup)
	})

	t.Run("matches on nickname", func(t *testing.T) {
		dup, err := repo.HasDuplicateIdentity(ctx, "brand_new@example.com", user.Nickname, uuid.Nil)
		require.NoError(t, err)
		assert.True(t, dup)
	})

	t.Run("no match", func(t *testing.T) {
		dup, err := repo.HasDuplicateIdentity(ctx, "brand_new@example.com", "brand_new", uuid.Nil)
		require.NoError(t, err)
		assert.False(t, dup)
	})

	t.Run("excludes the record being updated", func(t *testing.T) {
		dup, err := repo.HasDuplicateIdentity(ctx, user.Email, user.Nickname, user.ID)
		require.NoError(t, err)
		assert.False(t, dup)

		dup, err = repo.HasDuplicateIdentity(ctx, other.Email, other.Nickname, user.ID)
		require.NoError(t, err)
		assert.True(t, dup)
	})
}

func TestUsersRepositoryList(t *testing.T) {
	ctx := context.Background()
	_, repo := setupUsersDB(t)

	for i := 0; i < 5; i++ {
		seedUser(t, repo)
	}

	page, err := repo.ListPage(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Len(t, page.Items, 3)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 3, page.Size)

	page, err = repo.ListPage(ctx, 2, 3)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
}

func TestUsersRepositoryDeleteByID(t *testing.T) {
	ctx := context.Background()
	_, repo := setupUsersDB(t)

	user := seedUser(t, repo)

	require.NoError(t, repo.DeleteByID(ctx, user.ID))

	_, err := repo.GetByIdentifier(ctx, user.ID.String())
	require.Error(t, err)
	assert.True(t, repository.IsRecordNotFound(err), "soft deleted records stay hidden")

	t.Run("second delete reports not found", func(t *testing.T) {
		err := repo.DeleteByID(ctx, user.ID)
		require.Error(t, err)
		assert.True(t, repository.IsRecordNotFound(err))
	})

	t.Run("unknown id reports not found", func(t *testing.T) {
		err := repo.DeleteByID(ctx, uuid.New())
		require.Error(t, err)
		assert.True(t, repository.IsRecordNotFound(err))
	})
}
