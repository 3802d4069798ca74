package users

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

type authIdentity struct {
	id       string
	nickname string
	email    string
	role     string
}

func (u authIdentity) ID() string       { return u.id }
func (u authIdentity) Nickname() string { return u.nickname }
func (u authIdentity) Email() string    { return u.email }
func (u authIdentity) Role() string     { return u.role }

type UserProvider struct {
	users  Users
	states AccountStateMachine
	logger Logger
}

type UserProviderOption func(*UserProvider)

func WithUserProviderLogger(logger Logger) UserProviderOption {
	return func(p *UserProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithUserProviderStateMachine(states AccountStateMachine) UserProviderOption {
	return func(p *UserProvider) {
		if states != nil {
			p.states = states
		}
	}
}

func NewUserProvider(users Users, opts ...UserProviderOption) *UserProvider {
	provider := &UserProvider{
		users:  users,
		logger: defLogger{},
	}

	for _, opt := range opts {
		opt(provider)
	}

	if provider.states == nil {
		provider.states = NewAccountStateMachine(users)
	}

	return provider
}

// VerifyIdentity checks credentials in a fixed order: account existence,
// lock state, verification state, then the password. Every credential
// failure surfaces as the same incorrect-credentials error so callers
// cannot discover which emails exist.
func (p *UserProvider) VerifyIdentity(ctx context.Context, identifier, password string) (Identity, error) {
	user, err := p.users.GetByIdentifier(ctx, identifier)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			// burn a hash comparison so unknown accounts cost the same
			// as a wrong password
			_ = ComparePasswordAndHash(password, RandomPasswordHash())
			return nil, ErrIncorrectCredentials
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account").
			WithTextCode("IDENTITY_LOOKUP_FAILED")
	}

	if user.IsLocked() {
		return nil, ErrAccountLocked
	}

	if !user.IsVerified() {
		return nil, ErrAccountNotVerified
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		actor := ActorRef{ID: user.ID.String(), Type: "user"}
		if _, serr := p.states.RecordFailedAttempt(ctx, actor, user, WithEventReason("password mismatch")); serr != nil {
			p.logger.Error("failed to record login attempt: %s", serr)
		}
		return nil, ErrIncorrectCredentials
	}

	actor := ActorRef{ID: user.ID.String(), Type: "user"}
	user, err = p.states.RecordSuccess(ctx, actor, user)
	if err != nil {
		if goerrors.Is(err, ErrAccountLocked) {
			return nil, ErrAccountLocked
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to record login").
			WithTextCode("LOGIN_TRACKING_FAILED")
	}

	return identityFromUser(user), nil
}

func (p *UserProvider) FindIdentityByIdentifier(ctx context.Context, identifier string) (Identity, error) {
	user, err := p.users.GetByIdentifier(ctx, identifier)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}

	return identityFromUser(user), nil
}

func identityFromUser(user *User) Identity {
	role := user.Role
	if role == "" {
		role = RoleAuthenticated
	}

	id := ""
	if user.ID != uuid.Nil {
		id = user.ID.String()
	}

	return authIdentity{
		id:       id,
		nickname: user.Nickname,
		email:    user.Email,
		role:     string(role),
	}
}
