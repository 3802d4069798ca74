package users_test

import (
	"context"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	users "github.com/goliatone/go-users"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

// MockUsers implements the methods of users.Users that the components under
// test touch. The embedded interface covers the rest of the repository
// surface; calling an unmocked method panics, which is what we want.
type MockUsers struct {
	mock.Mock
	users.Users
}

func (m *MockUsers) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*users.User, error) {
	args := m.Called(ctx, identifier)
	if u := args.Get(0); u != nil {
		return u.(*users.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUsers) TrackAttemptedLogin(ctx context.Context, user *users.User, threshold int) (*users.User, error) {
	args := m.Called(ctx, user, threshold)
	if u := args.Get(0); u != nil {
		return u.(*users.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUsers) TrackSuccessfulLogin(ctx context.Context, user *users.User) (*users.User, error) {
	args := m.Called(ctx, user)
	if u := args.Get(0); u != nil {
		return u.(*users.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUsers) SetEmailVerified(ctx context.Context, id uuid.UUID, at time.Time) (*users.User, error) {
	args := m.Called(ctx, id, at)
	if u := args.Get(0); u != nil {
		return u.(*users.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUsers) ResetLockout(ctx context.Context, id uuid.UUID) (*users.User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*users.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUsers) RegisterTx(ctx context.Context, tx bun.IDB, user *users.User) (*users.User, error) {
	args := m.Called(ctx, tx, user)
	if u := args.Get(0); u != nil {
		return u.(*users.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUsers) HasDuplicateIdentity(ctx context.Context, email, nickname string, excludeID uuid.UUID) (bool, error) {
	args := m.Called(ctx, email, nickname, excludeID)
	return args.Bool(0), args.Error(1)
}

func (m *MockUsers) HasDuplicateIdentityTx(ctx context.Context, tx bun.IDB, email, nickname string, excludeID uuid.UUID) (bool, error) {
	args := m.Called(ctx, tx, email, nickname, excludeID)
	return args.Bool(0), args.Error(1)
}

func (m *MockUsers) Update(ctx context.Context, record *users.User, criteria ...repository.UpdateCriteria) (*users.User, error) {
	args := m.Called(ctx, record)
	if u := args.Get(0); u != nil {
		return u.(*users.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUsers) ListPage(ctx context.Context, page, size int) (*users.UserPage, error) {
	args := m.Called(ctx, page, size)
	if p := args.Get(0); p != nil {
		return p.(*users.UserPage), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUsers) DeleteByID(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockIdentityProvider implements users.IdentityProvider
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) VerifyIdentity(ctx context.Context, identifier, password string) (users.Identity, error) {
	args := m.Called(ctx, identifier, password)
	if id := args.Get(0); id != nil {
		return id.(users.Identity), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockIdentityProvider) FindIdentityByIdentifier(ctx context.Context, identifier string) (users.Identity, error) {
	args := m.Called(ctx, identifier)
	if id := args.Get(0); id != nil {
		return id.(users.Identity), args.Error(1)
	}
	return nil, args.Error(1)
}

// TestIdentity is a plain value implementation of users.Identity
type TestIdentity struct {
	id       string
	nickname string
	email    string
	role     string
}

func (t TestIdentity) ID() string       { return t.id }
func (t TestIdentity) Nickname() string { return t.nickname }
func (t TestIdentity) Email() string    { return t.email }
func (t TestIdentity) Role() string     { return t.role }

func newMockConfig() *users.SimpleConfig {
	cfg := users.NewDefaultConfig("test-signing-key")
	cfg.Issuer = "test-issuer"
	cfg.Audience = []string{"test-audience"}
	return cfg
}

// capturingSink collects activity events for assertions
type capturingSink struct {
	events []users.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt users.ActivityEvent) error {
	c.events = append(c.events, evt)
	return nil
}
