package users

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
)

type VerifyAccountMessage struct {
	Identifier string `json:"identifier"`
	Actor      ActorRef
	OnResponse func(u *User)
}

func (e VerifyAccountMessage) Type() string { return "user.verify" }

type VerifyAccountHandler struct {
	repo   RepositoryManager
	states AccountStateMachine
}

func NewVerifyAccountHandler(repo RepositoryManager, states AccountStateMachine) *VerifyAccountHandler {
	if states == nil {
		states = NewAccountStateMachine(repo.Users())
	}

	return &VerifyAccountHandler{
		repo:   repo,
		states: states,
	}
}

func (h *VerifyAccountHandler) Execute(ctx context.Context, event VerifyAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account verification")
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyAccountHandler) execute(ctx context.Context, event VerifyAccountMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByIdentifier(ctx, event.Identifier)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrUserNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account for verification")
	}

	user, err = h.states.Verify(ctx, event.Actor, user)
	if err != nil {
		return err
	}

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}
