package users

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	FirstName          string `json:"first_name"`
	LastName           string `json:"last_name"`
	Nickname           string `json:"nickname"`
	Email              string `json:"email"`
	Bio                string `json:"bio"`
	GithubProfileURL   string `json:"github_profile_url"`
	LinkedinProfileURL string `json:"linkedin_profile_url"`
	Role               string `json:"role"`
	Password           string `json:"password"`
	UseHashid          bool
	OnResponse         func(u *User)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

type RegisterUserHandler struct {
	repo   RepositoryManager
	mailer Mailer
	sink   ActivitySink
	logger Logger
}

type RegisterUserHandlerOption func(*RegisterUserHandler)

func WithRegisterMailer(mailer Mailer) RegisterUserHandlerOption {
	return func(h *RegisterUserHandler) {
		h.mailer = mailer
	}
}

func WithRegisterActivitySink(sink ActivitySink) RegisterUserHandlerOption {
	return func(h *RegisterUserHandler) {
		h.sink = normalizeActivitySink(sink)
	}
}

func WithRegisterLogger(logger Logger) RegisterUserHandlerOption {
	return func(h *RegisterUserHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func NewRegisterUserHandler(repo RepositoryManager, opts ...RegisterUserHandlerOption) *RegisterUserHandler {
	handler := &RegisterUserHandler{
		repo:   repo,
		sink:   noopActivitySink{},
		logger: defLogger{},
	}

	for _, opt := range opts {
		opt(handler)
	}

	handler.mailer = normalizeMailer(handler.mailer, handler.logger)

	return handler
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	user := &User{}
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user.PasswordHash = hash
		user.Email = event.Email
		user.FirstName = event.FirstName
		user.LastName = event.LastName
		user.Bio = event.Bio
		user.GithubProfileURL = event.GithubProfileURL
		user.LinkedinProfileURL = event.LinkedinProfileURL
		user.Nickname = getNickname(event.Nickname, event.Email)

		if event.Role != "" {
			role := UserRole(event.Role)
			if !role.IsValid() {
				return goerrors.New("invalid role: "+event.Role, goerrors.CategoryValidation).
					WithTextCode("INVALID_ROLE")
			}
			user.Role = role
		}

		if event.UseHashid {
			if id, err := hashid.NewUUID(event.Email); err == nil {
				user.ID = id
			}
		}

		dupe, err := h.repo.Users().HasDuplicateIdentityTx(ctx, tx, user.Email, user.Nickname, user.ID)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check for duplicate identity")
		}

		if dupe {
			return ErrDuplicateIdentity
		}

		if user, err = h.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	if err := h.mailer.SendVerificationEmail(ctx, user); err != nil {
		h.logger.Warn("verification email delivery failed: %v", err)
	}

	activity := ActivityEvent{
		EventType:  ActivityEventUserRegistered,
		Actor:      ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:     user.ID.String(),
		Metadata:   map[string]any{"email": user.Email},
		OccurredAt: time.Now(),
	}
	if err := h.sink.Record(ctx, activity); err != nil {
		h.logger.Warn("activity sink record error: %v", err)
	}

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}

func getNickname(nickname, email string) string {
	if nickname != "" {
		return nickname
	}
	return GenerateNickname(email)
}
