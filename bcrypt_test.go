package users_test

import (
	"strings"
	"testing"

	users "github.com/goliatone/go-users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	t.Run("hashes a valid password", func(t *testing.T) {
		hash, err := users.HashPassword("correct horse battery staple")
		require.NoError(t, err)
		assert.NotEmpty(t, hash)
		assert.True(t, strings.HasPrefix(hash, "$2a$"))
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := users.HashPassword("")
		assert.Error(t, err)
	})

	t.Run("same password gives different hashes", func(t *testing.T) {
		a, err := users.HashPassword("hunter2hunter2")
		require.NoError(t, err)
		b, err := users.HashPassword("hunter2hunter2")
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})
}

func TestComparePasswordAndHash(t *testing.T) {
	hash, err := users.HashPassword("s3cret-passw0rd")
	require.NoError(t, err)

	t.Run("matches the original password", func(t *testing.T) {
		assert.NoError(t, users.ComparePasswordAndHash("s3cret-passw0rd", hash))
	})

	t.Run("rejects a wrong password", func(t *testing.T) {
		assert.Error(t, users.ComparePasswordAndHash("not-the-password", hash))
	})

	t.Run("rejects an empty password", func(t *testing.T) {
		assert.Error(t, users.ComparePasswordAndHash("", hash))
	})

	t.Run("rejects a mangled hash", func(t *testing.T) {
		assert.Error(t, users.ComparePasswordAndHash("s3cret-passw0rd", "not-a-bcrypt-hash"))
	})
}

func TestRandomPasswordHash(t *testing.T) {
	hash := users.RandomPasswordHash()
	assert.NotEmpty(t, hash)

	// nothing should ever compare successfully against it
	assert.Error(t, users.ComparePasswordAndHash("", hash))
	assert.Error(t, users.ComparePasswordAndHash("password", hash))
}
