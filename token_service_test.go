package users_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	users "github.com/goliatone/go-users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockIdentity implements users.Identity for testing
type MockIdentity struct {
	mock.Mock
}

func (m *MockIdentity) ID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockIdentity) Nickname() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockIdentity) Email() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockIdentity) Role() string {
	args := m.Called()
	return args.String(0)
}

// MockLogger implements users.Logger for testing
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Info(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Warn(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Error(format string, args ...any) {
	m.Called(format, args)
}

func TestNewTokenService(t *testing.T) {
	signingKey := []byte("test-signing-key")
	tokenExpiration := 24
	issuer := "test-issuer"
	audience := jwt.ClaimStrings{"test-audience"}

	t.Run("creates token service with logger", func(t *testing.T) {
		logger := &MockLogger{}

		service := users.NewTokenService(signingKey, tokenExpiration, issuer, audience, logger)

		assert.NotNil(t, service)
	})

	t.Run("creates token service with nil logger", func(t *testing.T) {
		service := users.NewTokenService(signingKey, tokenExpiration, issuer, audience, nil)

		assert.NotNil(t, service)
	})
}

func TestTokenServiceGenerate(t *testing.T) {
	signingKey := []byte("test-signing-key")
	service := users.NewTokenService(signingKey, 24, "test-issuer", jwt.ClaimStrings{"test-audience"}, nil)

	t.Run("generates valid JWT token", func(t *testing.T) {
		identity := &MockIdentity{}
		identity.On("ID").Return("user-123")
		identity.On("Role").Return("ADMIN")

		tokenString, err := service.Generate(identity)

		assert.NoError(t, err)
		assert.NotEmpty(t, tokenString)

		token, err := jwt.ParseWithClaims(tokenString, &users.JWTClaims{}, func(token *jwt.Token) (any, error) {
			return signingKey, nil
		})

		require.NoError(t, err)
		require.True(t, token.Valid)

		claims, ok := token.Claims.(*users.JWTClaims)
		require.True(t, ok)
		assert.Equal(t, "user-123", claims.UserID())
		assert.Equal(t, "ADMIN", claims.Role())
		assert.Equal(t, "test-issuer", claims.RegisteredClaims.Issuer)
		assert.NotEmpty(t, claims.RegisteredClaims.ID, "tokens carry a unique id")
	})

	t.Run("role claim serializes as the enum name", func(t *testing.T) {
		identity := &MockIdentity{}
		identity.On("ID").Return("user-456")
		identity.On("Role").Return(string(users.RoleAuthenticated))

		tokenString, err := service.Generate(identity)
		require.NoError(t, err)

		claims, err := service.Validate(tokenString)
		require.NoError(t, err)
		assert.Equal(t, "AUTHENTICATED", claims.Role())
	})
}

func TestTokenServiceValidate(t *testing.T) {
	signingKey := []byte("test-signing-key")
	service := users.NewTokenService(signingKey, 24, "test-issuer", jwt.ClaimStrings{"test-audience"}, nil)

	identity := &MockIdentity{}
	identity.On("ID").Return("user-123")
	identity.On("Role").Return("MANAGER")

	t.Run("round trip", func(t *testing.T) {
		tokenString, err := service.Generate(identity)
		require.NoError(t, err)

		claims, err := service.Validate(tokenString)
		require.NoError(t, err)
		assert.Equal(t, "user-123", claims.Subject())
		assert.Equal(t, "MANAGER", claims.Role())
		assert.WithinDuration(t, time.Now().Add(24*time.Hour), claims.Expires(), time.Minute)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := service.Validate("not-a-token")
		require.Error(t, err)
		assert.True(t, users.IsMalformedError(err))
	})

	t.Run("rejects token signed with another key", func(t *testing.T) {
		other := users.NewTokenService([]byte("other-key"), 24, "test-issuer", jwt.ClaimStrings{"test-audience"}, nil)
		tokenString, err := other.Generate(identity)
		require.NoError(t, err)

		_, err = service.Validate(tokenString)
		require.Error(t, err)
	})

	t.Run("rejects expired token", func(t *testing.T) {
		now := time.Now()
		claims := &users.JWTClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "test-issuer",
				Subject:   "user-123",
				Audience:  jwt.ClaimStrings{"test-audience"},
				IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
				ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
			},
			UID:      "user-123",
			UserRole: "MANAGER",
		}

		tokenString, err := service.SignClaims(claims)
		require.NoError(t, err)

		_, err = service.Validate(tokenString)
		require.Error(t, err)
		assert.ErrorIs(t, err, users.ErrTokenExpired)
	})
}
