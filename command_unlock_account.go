package users

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
)

// UnlockAccountMessage clears a lockout. Only operator flows dispatch it; a
// locked account has no self-service exit.
type UnlockAccountMessage struct {
	Identifier string `json:"identifier"`
	Actor      ActorRef
	Reason     string `json:"reason"`
	OnResponse func(u *User)
}

func (e UnlockAccountMessage) Type() string { return "user.unlock" }

type UnlockAccountHandler struct {
	repo   RepositoryManager
	states AccountStateMachine
}

func NewUnlockAccountHandler(repo RepositoryManager, states AccountStateMachine) *UnlockAccountHandler {
	if states == nil {
		states = NewAccountStateMachine(repo.Users())
	}

	return &UnlockAccountHandler{
		repo:   repo,
		states: states,
	}
}

func (h *UnlockAccountHandler) Execute(ctx context.Context, event UnlockAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account unlock")
	default:
		return h.execute(ctx, event)
	}
}

func (h *UnlockAccountHandler) execute(ctx context.Context, event UnlockAccountMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByIdentifier(ctx, event.Identifier)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrUserNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account for unlock")
	}

	opts := []AccountEventOption{}
	if event.Reason != "" {
		opts = append(opts, WithEventReason(event.Reason))
	}

	user, err = h.states.Unlock(ctx, event.Actor, user, opts...)
	if err != nil {
		return err
	}

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}
