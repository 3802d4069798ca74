package users_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	users "github.com/goliatone/go-users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAutherLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("returns a signed token on success", func(t *testing.T) {
		identity := TestIdentity{
			id:       "user-123",
			nickname: "peperone",
			email:    "peperone@example.com",
			role:     string(users.RoleAdmin),
		}

		provider := &MockIdentityProvider{}
		provider.On("VerifyIdentity", mock.Anything, "peperone@example.com", "s3cret").
			Return(identity, nil)

		sink := &capturingSink{}
		auther := users.NewAuthenticator(provider, newMockConfig()).
			WithActivitySink(sink)

		token, err := auther.Login(ctx, "peperone@example.com", "s3cret")
		require.NoError(t, err)
		require.NotEmpty(t, token)

		claims, err := auther.TokenService().Validate(token)
		require.NoError(t, err)
		assert.Equal(t, "user-123", claims.UserID())
		assert.Equal(t, "ADMIN", claims.Role(), "role is captured at issue time")

		require.Len(t, sink.events, 1)
		assert.Equal(t, users.ActivityEventLoginSuccess, sink.events[0].EventType)
		assert.Equal(t, "user-123", sink.events[0].UserID)
		provider.AssertExpectations(t)
	})

	t.Run("propagates provider errors and records a failure", func(t *testing.T) {
		provider := &MockIdentityProvider{}
		provider.On("VerifyIdentity", mock.Anything, "ghost@example.com", "whatever").
			Return(nil, users.ErrIncorrectCredentials)

		sink := &capturingSink{}
		auther := users.NewAuthenticator(provider, newMockConfig()).
			WithActivitySink(sink)

		_, err := auther.Login(ctx, "ghost@example.com", "whatever")
		require.Error(t, err)
		assert.ErrorIs(t, err, users.ErrIncorrectCredentials)

		require.Len(t, sink.events, 1)
		assert.Equal(t, users.ActivityEventLoginFailure, sink.events[0].EventType)
	})

	t.Run("rejects a zero value identity", func(t *testing.T) {
		provider := &MockIdentityProvider{}
		provider.On("VerifyIdentity", mock.Anything, "empty@example.com", "pw").
			Return(TestIdentity{}, nil)

		auther := users.NewAuthenticator(provider, newMockConfig())

		_, err := auther.Login(ctx, "empty@example.com", "pw")
		require.Error(t, err)
		assert.ErrorIs(t, err, users.ErrIdentityNotFound)
	})
}

func TestAutherClaimsDecorator(t *testing.T) {
	ctx := context.Background()
	identity := TestIdentity{
		id:   "user-123",
		role: string(users.RoleManager),
	}

	newProvider := func() *MockIdentityProvider {
		provider := &MockIdentityProvider{}
		provider.On("VerifyIdentity", mock.Anything, "user-123", "pw").Return(identity, nil)
		return provider
	}

	t.Run("decorator can attach metadata", func(t *testing.T) {
		decorator := users.ClaimsDecoratorFunc(func(ctx context.Context, identity users.Identity, claims *users.JWTClaims) error {
			claims.Metadata = map[string]any{"tenant": "acme"}
			return nil
		})

		auther := users.NewAuthenticator(newProvider(), newMockConfig()).
			WithClaimsDecorator(decorator)

		token, err := auther.Login(ctx, "user-123", "pw")
		require.NoError(t, err)

		claims, err := auther.TokenService().Validate(token)
		require.NoError(t, err)
		assert.Equal(t, "acme", claims.ClaimsMetadata()["tenant"])
		assert.Equal(t, "MANAGER", claims.Role())
	})

	t.Run("decorator cannot change the subject", func(t *testing.T) {
		decorator := users.ClaimsDecoratorFunc(func(ctx context.Context, identity users.Identity, claims *users.JWTClaims) error {
			claims.RegisteredClaims.Subject = "someone-else"
			return nil
		})

		auther := users.NewAuthenticator(newProvider(), newMockConfig()).
			WithClaimsDecorator(decorator)

		_, err := auther.Login(ctx, "user-123", "pw")
		require.Error(t, err)
		assert.ErrorIs(t, err, users.ErrImmutableClaimMutation)
	})

	t.Run("decorator cannot change the role", func(t *testing.T) {
		decorator := users.ClaimsDecoratorFunc(func(ctx context.Context, identity users.Identity, claims *users.JWTClaims) error {
			claims.UserRole = string(users.RoleAdmin)
			return nil
		})

		auther := users.NewAuthenticator(newProvider(), newMockConfig()).
			WithClaimsDecorator(decorator)

		_, err := auther.Login(ctx, "user-123", "pw")
		require.Error(t, err)
		assert.ErrorIs(t, err, users.ErrImmutableClaimMutation)
	})
}

func TestAutherSessionFromToken(t *testing.T) {
	ctx := context.Background()
	identity := TestIdentity{
		id:   "user-123",
		role: string(users.RoleManager),
	}

	provider := &MockIdentityProvider{}
	provider.On("VerifyIdentity", mock.Anything, "user-123", "pw").Return(identity, nil)

	auther := users.NewAuthenticator(provider, newMockConfig())

	token, err := auther.Login(ctx, "user-123", "pw")
	require.NoError(t, err)

	t.Run("builds a session from a valid token", func(t *testing.T) {
		session, err := auther.SessionFromToken(token)
		require.NoError(t, err)

		assert.Equal(t, "user-123", session.GetUserID())
		assert.Equal(t, users.RoleManager, session.GetRole())
		assert.Equal(t, "test-issuer", session.GetIssuer())
		require.NotNil(t, session.GetIssuedAt())
		assert.WithinDuration(t, time.Now(), *session.GetIssuedAt(), time.Minute)
	})

	t.Run("rejects an invalid token", func(t *testing.T) {
		_, err := auther.SessionFromToken("garbage")
		require.Error(t, err)
	})

	t.Run("prefers a custom token validator", func(t *testing.T) {
		custom := users.TokenValidatorFunc(func(tokenString string) (users.AuthClaims, error) {
			return &users.JWTClaims{
				RegisteredClaims: jwt.RegisteredClaims{Subject: "custom-user"},
				UID:              "custom-user",
				UserRole:         string(users.RoleAuthenticated),
			}, nil
		})

		session, err := auther.WithTokenValidator(custom).SessionFromToken("anything")
		require.NoError(t, err)
		assert.Equal(t, "custom-user", session.GetUserID())
	})
}
