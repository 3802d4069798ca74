package users

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-router"
)

// TokenResponse is the login payload. Clients send the token back in the
// Authorization header using the bearer scheme.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type UserControllerRoutes struct {
	Register string
	Login    string
	Users    string
}

type UserController struct {
	Debug      bool
	Logger     Logger
	Repo       RepositoryManager
	Routes     *UserControllerRoutes
	Auther     Authenticator
	Authorizer Authorizer
	States     AccountStateMachine
	Mailer     Mailer
	Sink       ActivitySink
	ContextKey string
}

type UserControllerOption func(*UserController) *UserController

func NewUserController(opts ...UserControllerOption) *UserController {
	c := &UserController{
		Logger: defLogger{},
		Routes: &UserControllerRoutes{
			Register: "/register",
			Login:    "/login",
			Users:    "/users",
		},
		Sink:       noopActivitySink{},
		ContextKey: "user",
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in user controller...")
	}

	if c.Auther == nil {
		panic("Missing Authenticator in user controller...")
	}

	if c.Authorizer == nil {
		c.Authorizer = NewRoleAuthorizer(WithAuthorizerLogger(c.Logger))
	}

	if c.States == nil {
		c.States = NewAccountStateMachine(
			c.Repo.Users(),
			WithStateMachineLogger(c.Logger),
			WithStateMachineActivitySink(c.Sink),
		)
	}

	return c
}

func WithControllerLogger(logger Logger) UserControllerOption {
	return func(c *UserController) *UserController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerRepo(repo RepositoryManager) UserControllerOption {
	return func(c *UserController) *UserController {
		c.Repo = repo
		return c
	}
}

func WithControllerAuther(auther Authenticator) UserControllerOption {
	return func(c *UserController) *UserController {
		c.Auther = auther
		return c
	}
}

func WithControllerAuthorizer(authorizer Authorizer) UserControllerOption {
	return func(c *UserController) *UserController {
		c.Authorizer = authorizer
		return c
	}
}

func WithControllerStateMachine(states AccountStateMachine) UserControllerOption {
	return func(c *UserController) *UserController {
		c.States = states
		return c
	}
}

func WithControllerMailer(mailer Mailer) UserControllerOption {
	return func(c *UserController) *UserController {
		c.Mailer = mailer
		return c
	}
}

func WithControllerActivitySink(sink ActivitySink) UserControllerOption {
	return func(c *UserController) *UserController {
		c.Sink = normalizeActivitySink(sink)
		return c
	}
}

func WithControllerDebug(debug bool) UserControllerOption {
	return func(c *UserController) *UserController {
		c.Debug = debug
		return c
	}
}

func RegisterUserRoutes[T any](app router.Router[T], opts ...UserControllerOption) *UserController {
	controller := NewUserController(opts...)

	app.Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("users.register")
	app.Post(controller.Routes.Login, controller.LoginPost).
		SetName("users.login")

	app.Get(controller.Routes.Users, controller.UserList).
		SetName("users.list")
	app.Post(controller.Routes.Users, controller.UserCreate).
		SetName("users.create")
	app.Get(fmt.Sprintf("%s/:id", controller.Routes.Users), controller.UserShow).
		SetName("users.show")
	app.Put(fmt.Sprintf("%s/:id", controller.Routes.Users), controller.UserUpdate).
		SetName("users.update")
	app.Delete(fmt.Sprintf("%s/:id", controller.Routes.Users), controller.UserDelete).
		SetName("users.delete")
	app.Post(fmt.Sprintf("%s/:id/verify", controller.Routes.Users), controller.UserVerify).
		SetName("users.verify")
	app.Post(fmt.Sprintf("%s/:id/unlock", controller.Routes.Users), controller.UserUnlock).
		SetName("users.unlock")

	return controller
}

// LoginRequest payload. The username field carries the email to match the
// password-grant form shape.
type LoginRequest struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

// GetIdentifier returns the identifier
func (r LoginRequest) GetIdentifier() string {
	return r.Username
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Username,
			validation.Required,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *UserController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload: %v", err)
		return a.renderError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse login payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return a.renderError(ctx, err)
	}

	if a.Debug {
		fmt.Println("======= USER LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("=========================")
	}

	token, err := a.Auther.Login(ctx.Context(), payload.GetIdentifier(), payload.GetPassword())
	if err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(fiber.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
	})
}

// RegistrationCreatePayload is the registration payload
type RegistrationCreatePayload struct {
	FirstName          string `form:"first_name" json:"first_name"`
	LastName           string `form:"last_name" json:"last_name"`
	Nickname           string `form:"nickname" json:"nickname"`
	Email              string `form:"email" json:"email"`
	Bio                string `form:"bio" json:"bio"`
	GithubProfileURL   string `form:"github_profile_url" json:"github_profile_url"`
	LinkedinProfileURL string `form:"linkedin_profile_url" json:"linkedin_profile_url"`
	Password           string `form:"password" json:"password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Length(0, 200)),
		validation.Field(&r.LastName, validation.Length(0, 200)),
		validation.Field(&r.Nickname, validation.Length(0, 100)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.GithubProfileURL, is.URL),
		validation.Field(&r.LinkedinProfileURL, is.URL),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
	)
}

func (a *UserController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegistrationCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register user parse payload: %v", err)
		return a.renderError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse registration payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("register user validate payload: %v", err)
		return a.renderError(ctx, err)
	}

	var created *User
	req := RegisterUserMessage{
		FirstName:          payload.FirstName,
		LastName:           payload.LastName,
		Nickname:           payload.Nickname,
		Email:              payload.Email,
		Bio:                payload.Bio,
		GithubProfileURL:   payload.GithubProfileURL,
		LinkedinProfileURL: payload.LinkedinProfileURL,
		Password:           payload.Password,
		OnResponse: func(u *User) {
			created = u
		},
	}

	registerUser := NewRegisterUserHandler(a.Repo,
		WithRegisterMailer(a.Mailer),
		WithRegisterActivitySink(a.Sink),
		WithRegisterLogger(a.Logger),
	)

	if err := registerUser.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("register user execute: %v", err)
		return a.renderError(ctx, err)
	}

	return ctx.JSON(fiber.StatusCreated, created)
}

func (a *UserController) UserList(ctx router.Context) error {
	if err := a.authorize(ctx, PermissionListUsers); err != nil {
		return a.renderError(ctx, err)
	}

	page := queryInt(ctx, "page", 1)
	size := queryInt(ctx, "size", 25)

	result, err := a.Repo.Users().ListPage(ctx.Context(), page, size)
	if err != nil {
		a.Logger.Error("user list: %v", err)
		return a.renderError(ctx, err)
	}

	return ctx.JSON(fiber.StatusOK, result)
}

// CreateUserPayload is the admin create payload
type CreateUserPayload struct {
	RegistrationCreatePayload
	Role string `form:"role" json:"role"`
}

// Validate will validate the payload
func (r CreateUserPayload) Validate() error {
	if err := r.RegistrationCreatePayload.Validate(); err != nil {
		return err
	}

	return validation.ValidateStruct(&r,
		validation.Field(&r.Role, validation.In(
			string(RoleAuthenticated),
			string(RoleManager),
			string(RoleAdmin),
		)),
	)
}

func (a *UserController) UserCreate(ctx router.Context) error {
	if err := a.authorize(ctx, PermissionCreateUser); err != nil {
		return a.renderError(ctx, err)
	}

	payload := new(CreateUserPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("create user parse payload: %v", err)
		return a.renderError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse user payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return a.renderError(ctx, err)
	}

	var created *User
	req := RegisterUserMessage{
		FirstName:          payload.FirstName,
		LastName:           payload.LastName,
		Nickname:           payload.Nickname,
		Email:              payload.Email,
		Bio:                payload.Bio,
		GithubProfileURL:   payload.GithubProfileURL,
		LinkedinProfileURL: payload.LinkedinProfileURL,
		Password:           payload.Password,
		Role:               payload.Role,
		OnResponse: func(u *User) {
			created = u
		},
	}

	registerUser := NewRegisterUserHandler(a.Repo,
		WithRegisterMailer(a.Mailer),
		WithRegisterActivitySink(a.Sink),
		WithRegisterLogger(a.Logger),
	)

	if err := registerUser.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("create user execute: %v", err)
		return a.renderError(ctx, err)
	}

	return ctx.JSON(fiber.StatusCreated, created)
}

func (a *UserController) UserShow(ctx router.Context) error {
	if err := a.authorize(ctx, PermissionReadUser); err != nil {
		return a.renderError(ctx, err)
	}

	user, err := a.loadUser(ctx)
	if err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(fiber.StatusOK, user)
}

// UpdateUserPayload carries a partial update. Nil fields stay untouched.
type UpdateUserPayload struct {
	FirstName          *string `form:"first_name" json:"first_name"`
	LastName           *string `form:"last_name" json:"last_name"`
	Nickname           *string `form:"nickname" json:"nickname"`
	Email              *string `form:"email" json:"email"`
	Bio                *string `form:"bio" json:"bio"`
	GithubProfileURL   *string `form:"github_profile_url" json:"github_profile_url"`
	LinkedinProfileURL *string `form:"linkedin_profile_url" json:"linkedin_profile_url"`
	Role               *string `form:"role" json:"role"`
	Password           *string `form:"password" json:"password"`
}

// Validate will validate the payload
func (r UpdateUserPayload) Validate() error {
	fields := []*validation.FieldRules{}

	if r.Email != nil {
		fields = append(fields, validation.Field(&r.Email, validation.Required, is.Email))
	}

	if r.Password != nil {
		fields = append(fields, validation.Field(&r.Password, validation.Length(8, 100)))
	}

	if r.Role != nil {
		fields = append(fields, validation.Field(&r.Role, validation.In(
			string(RoleAuthenticated),
			string(RoleManager),
			string(RoleAdmin),
		)))
	}

	if r.GithubProfileURL != nil {
		fields = append(fields, validation.Field(&r.GithubProfileURL, is.URL))
	}

	if r.LinkedinProfileURL != nil {
		fields = append(fields, validation.Field(&r.LinkedinProfileURL, is.URL))
	}

	return validation.ValidateStruct(&r, fields...)
}

func (a *UserController) UserUpdate(ctx router.Context) error {
	if err := a.authorize(ctx, PermissionUpdateUser); err != nil {
		return a.renderError(ctx, err)
	}

	payload := new(UpdateUserPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("update user parse payload: %v", err)
		return a.renderError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse user payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return a.renderError(ctx, err)
	}

	user, err := a.loadUser(ctx)
	if err != nil {
		return a.renderError(ctx, err)
	}

	if payload.Email != nil || payload.Nickname != nil {
		email := user.Email
		if payload.Email != nil {
			email = *payload.Email
		}

		nickname := user.Nickname
		if payload.Nickname != nil {
			nickname = *payload.Nickname
		}

		dupe, err := a.Repo.Users().HasDuplicateIdentity(ctx.Context(), email, nickname, user.ID)
		if err != nil {
			a.Logger.Error("update user duplicate check: %v", err)
			return a.renderError(ctx, err)
		}

		if dupe {
			return a.renderError(ctx, ErrDuplicateIdentity)
		}

		user.Email = email
		user.Nickname = nickname
	}

	applyString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}

	applyString(&user.FirstName, payload.FirstName)
	applyString(&user.LastName, payload.LastName)
	applyString(&user.Bio, payload.Bio)
	applyString(&user.GithubProfileURL, payload.GithubProfileURL)
	applyString(&user.LinkedinProfileURL, payload.LinkedinProfileURL)

	if payload.Role != nil {
		user.Role = UserRole(*payload.Role)
	}

	if payload.Password != nil {
		hash, err := HashPassword(*payload.Password)
		if err != nil {
			return a.renderError(ctx, err)
		}
		user.PasswordHash = hash
	}

	updated, err := a.Repo.Users().Update(ctx.Context(), user)
	if err != nil {
		a.Logger.Error("update user: %v", err)
		return a.renderError(ctx, err)
	}

	return ctx.JSON(fiber.StatusOK, updated)
}

func (a *UserController) UserDelete(ctx router.Context) error {
	if err := a.authorize(ctx, PermissionDeleteUser); err != nil {
		return a.renderError(ctx, err)
	}

	user, err := a.loadUser(ctx)
	if err != nil {
		return a.renderError(ctx, err)
	}

	if err := a.Repo.Users().DeleteByID(ctx.Context(), user.ID); err != nil {
		a.Logger.Error("delete user: %v", err)
		return a.renderError(ctx, err)
	}

	a.recordActivity(ctx, ActivityEventUserDeleted, user)

	return ctx.NoContent(fiber.StatusNoContent)
}

func (a *UserController) UserVerify(ctx router.Context) error {
	if err := a.authorize(ctx, PermissionUpdateUser); err != nil {
		return a.renderError(ctx, err)
	}

	user, err := a.loadUser(ctx)
	if err != nil {
		return a.renderError(ctx, err)
	}

	user, err = a.States.Verify(ctx.Context(), a.actorFromRequest(ctx), user)
	if err != nil {
		a.Logger.Error("verify user: %v", err)
		return a.renderError(ctx, err)
	}

	return ctx.JSON(fiber.StatusOK, user)
}

func (a *UserController) UserUnlock(ctx router.Context) error {
	if err := a.authorize(ctx, PermissionUnlockUser); err != nil {
		return a.renderError(ctx, err)
	}

	user, err := a.loadUser(ctx)
	if err != nil {
		return a.renderError(ctx, err)
	}

	user, err = a.States.Unlock(ctx.Context(), a.actorFromRequest(ctx), user)
	if err != nil {
		a.Logger.Error("unlock user: %v", err)
		return a.renderError(ctx, err)
	}

	return ctx.JSON(fiber.StatusOK, user)
}

// loadUser resolves the :id route param. It runs after authorization so a
// caller without the right role never learns whether the record exists.
func (a *UserController) loadUser(ctx router.Context) (*User, error) {
	identifier := ctx.Param("id", "")
	if identifier == "" {
		return nil, ErrUserNotFound
	}

	user, err := a.Repo.Users().GetByIdentifier(ctx.Context(), identifier)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return user, nil
}

func (a *UserController) authorize(ctx router.Context, perm Permission) error {
	return a.Authorizer.Authorize(ctx.Context(), a.sessionFromRequest(ctx), perm)
}

func (a *UserController) sessionFromRequest(ctx router.Context) Session {
	claims, ok := GetRouterClaims(ctx, a.ContextKey)
	if !ok {
		return nil
	}

	session, err := sessionFromAuthClaims(claims)
	if err != nil {
		a.Logger.Warn("failed to map claims to session: %v", err)
		return nil
	}

	return session
}

func (a *UserController) actorFromRequest(ctx router.Context) ActorRef {
	session := a.sessionFromRequest(ctx)
	if session == nil {
		return ActorRef{Type: "system"}
	}

	return ActorRef{ID: session.GetUserID(), Type: "user"}
}

func (a *UserController) recordActivity(ctx router.Context, eventType ActivityEventType, user *User) {
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      a.actorFromRequest(ctx),
		UserID:     user.ID.String(),
		Metadata:   map[string]any{"email": user.Email},
		OccurredAt: time.Now(),
	}

	if err := a.Sink.Record(ctx.Context(), event); err != nil {
		a.Logger.Warn("activity sink record error: %v", err)
	}
}

func (a *UserController) renderError(ctx router.Context, err error) error {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		return ctx.JSON(fiber.StatusUnprocessableEntity, router.ViewContext{
			"detail": FormatValidationErrorToMap(verrs),
		})
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		a.Logger.Error("unhandled controller error: %v", err)
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	status := richErr.Code
	if status == 0 {
		status = fiber.StatusInternalServerError
	}

	return ctx.JSON(status, router.ViewContext{
		"detail": richErr.Message,
	})
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field -> message map.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}

	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		if err != nil {
			out["error"] = err.Error()
		}
		return out
	}

	for field, ferr := range verrs {
		if ferr != nil {
			out[field] = ferr.Error()
		}
	}

	return out
}

func queryInt(ctx router.Context, key string, def int) int {
	raw := ctx.Query(key, strconv.Itoa(def))
	val, err := strconv.Atoi(raw)
	if err != nil || val < 1 {
		return def
	}
	return val
}
