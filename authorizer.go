package users

import (
	"context"
	"time"
)

// Permission names an operation on the user directory.
type Permission string

const (
	PermissionListUsers  Permission = "users:list"
	PermissionReadUser   Permission = "users:read"
	PermissionCreateUser Permission = "users:create"
	PermissionUpdateUser Permission = "users:update"
	PermissionDeleteUser Permission = "users:delete"
	PermissionUnlockUser Permission = "users:unlock"
)

// minimumRoleFor maps each permission to the weakest role that may hold it.
// Listing is open to managers; everything that mutates or inspects a single
// account belongs to admins.
var minimumRoleFor = map[Permission]UserRole{
	PermissionListUsers:  RoleManager,
	PermissionReadUser:   RoleAdmin,
	PermissionCreateUser: RoleAdmin,
	PermissionUpdateUser: RoleAdmin,
	PermissionDeleteUser: RoleAdmin,
	PermissionUnlockUser: RoleAdmin,
}

type Authorizer interface {
	Authorize(ctx context.Context, session Session, perm Permission) error
}

type RoleAuthorizer struct {
	rules  map[Permission]UserRole
	sink   ActivitySink
	logger Logger
}

type AuthorizerOption func(*RoleAuthorizer)

func WithAuthorizerActivitySink(sink ActivitySink) AuthorizerOption {
	return func(a *RoleAuthorizer) {
		a.sink = normalizeActivitySink(sink)
	}
}

func WithAuthorizerLogger(logger Logger) AuthorizerOption {
	return func(a *RoleAuthorizer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithPermissionRule overrides the minimum role required for a permission.
func WithPermissionRule(perm Permission, minRole UserRole) AuthorizerOption {
	return func(a *RoleAuthorizer) {
		a.rules[perm] = minRole
	}
}

func NewRoleAuthorizer(opts ...AuthorizerOption) *RoleAuthorizer {
	rules := make(map[Permission]UserRole, len(minimumRoleFor))
	for perm, role := range minimumRoleFor {
		rules[perm] = role
	}

	authorizer := &RoleAuthorizer{
		rules:  rules,
		sink:   noopActivitySink{},
		logger: defLogger{},
	}

	for _, opt := range opts {
		opt(authorizer)
	}

	return authorizer
}

// Authorize rejects the call before any resource lookup happens, so an
// under-privileged caller learns nothing about which records exist.
func (a *RoleAuthorizer) Authorize(ctx context.Context, session Session, perm Permission) error {
	role := RoleAnonymous
	userID := ""

	if session != nil {
		role = session.GetRole()
		userID = session.GetUserID()
	}

	minRole, ok := a.rules[perm]
	if !ok {
		minRole = RoleAdmin
	}

	if role.IsAtLeast(minRole) {
		return nil
	}

	a.logger.Warn("access denied for %s with role %s", perm, role)

	event := ActivityEvent{
		EventType: ActivityEventAccessDenied,
		Actor:     ActorRef{ID: userID, Type: "user"},
		UserID:    userID,
		Metadata: map[string]any{
			"permission": string(perm),
			"role":       string(role),
		},
		OccurredAt: time.Now(),
	}
	if err := a.sink.Record(ctx, event); err != nil {
		a.logger.Warn("activity sink record error: %v", err)
	}

	return ErrInsufficientRole
}
