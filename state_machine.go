package users

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const textCodeInvalidTransition = "INVALID_ACCOUNT_TRANSITION"

// ErrInvalidTransition is returned when a requested account change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid account state transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// MaxLoginAttempts is the number of consecutive failed logins after which an
// account transitions to locked.
var MaxLoginAttempts = 5

// AccountStateMachine tracks the two independent axes of account state:
// verification (unverified -> verified) and lockout (unlocked -> locked at
// the failure threshold). All mutations go through the Users repository in
// single atomic statements so concurrent login attempts against the same
// account cannot race past the threshold.
type AccountStateMachine interface {
	// RecordFailedAttempt increments the failed-login counter and locks the
	// account once the counter reaches the threshold. It is a no-op on an
	// already locked account: the counter freezes until an explicit unlock.
	RecordFailedAttempt(ctx context.Context, actor ActorRef, user *User, opts ...AccountEventOption) (*User, error)

	// RecordSuccess resets the failed-login counter after a successful
	// credential check.
	RecordSuccess(ctx context.Context, actor ActorRef, user *User, opts ...AccountEventOption) (*User, error)

	// Verify moves the account from unverified to verified. The trigger is
	// external (normally a link from the verification email); verifying an
	// already verified account is a no-op.
	Verify(ctx context.Context, actor ActorRef, user *User, opts ...AccountEventOption) (*User, error)

	// Unlock is the only exit from the locked state. It is an explicit
	// admin action and also resets the failed-login counter.
	Unlock(ctx context.Context, actor ActorRef, user *User, opts ...AccountEventOption) (*User, error)

	IsVerified(user *User) bool
	IsLocked(user *User) bool
}

// AccountEventOption customizes a single state machine call.
type AccountEventOption func(*accountEventOptions)

type accountEventOptions struct {
	reason   string
	metadata map[string]any
}

// WithEventReason sets the human-readable reason recorded with the event.
func WithEventReason(reason string) AccountEventOption {
	return func(opts *accountEventOptions) {
		opts.reason = reason
	}
}

// WithEventMetadata merges metadata into the recorded event.
func WithEventMetadata(metadata map[string]any) AccountEventOption {
	return func(opts *accountEventOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata == nil {
			opts.metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata[k] = v
		}
	}
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*accountStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *accountStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish account events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *accountStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *accountStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithLockoutThreshold overrides the failed-attempt count that locks an account.
func WithLockoutThreshold(threshold int) StateMachineOption {
	return func(sm *accountStateMachine) {
		if threshold > 0 {
			sm.threshold = threshold
		}
	}
}

// NewAccountStateMachine returns the default implementation backed by the
// provided repository.
func NewAccountStateMachine(users Users, opts ...StateMachineOption) AccountStateMachine {
	sm := &accountStateMachine{
		users:        users,
		threshold:    MaxLoginAttempts,
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type accountStateMachine struct {
	users        Users
	threshold    int
	now          func() time.Time
	activitySink ActivitySink
	logger       Logger
}

func (sm *accountStateMachine) RecordFailedAttempt(ctx context.Context, actor ActorRef, user *User, opts ...AccountEventOption) (*User, error) {
	if user == nil {
		return nil, invalidTransition("user is nil")
	}

	// counter is frozen while locked; only Unlock resets it
	if user.Locked {
		return user, nil
	}

	options := buildAccountEventOptions(opts...)

	updated, err := sm.users.TrackAttemptedLogin(ctx, user, sm.threshold)
	if err != nil {
		return nil, err
	}

	wasLocked := user.Locked
	sm.applyUpdates(user, updated)

	sm.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventFailedAttempt,
		Actor:     actor,
		UserID:    user.ID.String(),
		Metadata: options.eventMetadata(map[string]any{
			"login_attempts": user.LoginAttempts,
		}),
	})

	if !wasLocked && user.Locked {
		sm.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventUserLocked,
			Actor:     actor,
			UserID:    user.ID.String(),
			Metadata: options.eventMetadata(map[string]any{
				"threshold": sm.threshold,
			}),
		})
	}

	return user, nil
}

func (sm *accountStateMachine) RecordSuccess(ctx context.Context, actor ActorRef, user *User, opts ...AccountEventOption) (*User, error) {
	if user == nil {
		return nil, invalidTransition("user is nil")
	}

	if user.Locked {
		return nil, ErrAccountLocked
	}

	options := buildAccountEventOptions(opts...)

	updated, err := sm.users.TrackSuccessfulLogin(ctx, user)
	if err != nil {
		return nil, err
	}

	sm.applyUpdates(user, updated)

	sm.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     actor,
		UserID:    user.ID.String(),
		Metadata:  options.eventMetadata(nil),
	})

	return user, nil
}

func (sm *accountStateMachine) Verify(ctx context.Context, actor ActorRef, user *User, opts ...AccountEventOption) (*User, error) {
	if user == nil {
		return nil, invalidTransition("user is nil")
	}

	if user.EmailVerified {
		return user, nil
	}

	options := buildAccountEventOptions(opts...)

	verifiedAt := sm.now()
	updated, err := sm.users.SetEmailVerified(ctx, user.ID, verifiedAt)
	if err != nil {
		return nil, err
	}

	sm.applyUpdates(user, updated)

	sm.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventUserVerified,
		Actor:     actor,
		UserID:    user.ID.String(),
		Metadata:  options.eventMetadata(nil),
	})

	return user, nil
}

func (sm *accountStateMachine) Unlock(ctx context.Context, actor ActorRef, user *User, opts ...AccountEventOption) (*User, error) {
	if user == nil {
		return nil, invalidTransition("user is nil")
	}

	if !user.Locked {
		return user, nil
	}

	options := buildAccountEventOptions(opts...)

	updated, err := sm.users.ResetLockout(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	sm.applyUpdates(user, updated)

	sm.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventUserUnlocked,
		Actor:     actor,
		UserID:    user.ID.String(),
		Metadata:  options.eventMetadata(nil),
	})

	return user, nil
}

func (sm *accountStateMachine) IsVerified(user *User) bool {
	return user != nil && user.EmailVerified
}

func (sm *accountStateMachine) IsLocked(user *User) bool {
	return user != nil && user.Locked
}

func (sm *accountStateMachine) applyUpdates(user, updated *User) {
	if updated == nil {
		return
	}

	user.EmailVerified = updated.EmailVerified
	user.Locked = updated.Locked
	user.LoginAttempts = updated.LoginAttempts
	user.LoginAttemptAt = updated.LoginAttemptAt
	user.LoggedInAt = updated.LoggedInAt
	user.VerifiedAt = updated.VerifiedAt
	user.LockedAt = updated.LockedAt
}

func (sm *accountStateMachine) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		event.Actor = ActorRef{Type: "system"}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = sm.now()
	}

	sink := normalizeActivitySink(sm.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		sm.logger.Warn("state machine activity sink error: %v", err)
	}
}

func invalidTransition(reason string) error {
	clone := ErrInvalidTransition.Clone()
	clone.Source = ErrInvalidTransition
	return clone.WithMetadata(map[string]any{
		"reason": reason,
	})
}

func buildAccountEventOptions(opts ...AccountEventOption) *accountEventOptions {
	options := &accountEventOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	return options
}

func (o *accountEventOptions) eventMetadata(extra map[string]any) map[string]any {
	if o.reason == "" && len(o.metadata) == 0 && len(extra) == 0 {
		return nil
	}

	result := map[string]any{}
	if o.reason != "" {
		result["reason"] = o.reason
	}
	for k, v := range o.metadata {
		result[k] = v
	}
	for k, v := range extra {
		result[k] = v
	}
	return result
}
