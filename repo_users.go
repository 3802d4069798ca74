package users

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TrackAttemptedLoginSQL bumps the failed-login counter and flips the lock
// flag in one statement. Concurrent attempts serialize on the row, so the
// counter cannot skip past the threshold.
var TrackAttemptedLoginSQL = `UPDATE "users" AS "usr"
SET
	"login_attempts" = "usr"."login_attempts" + 1,
	"login_attempt_at" = ?,
	"locked_at" = CASE
		WHEN NOT "usr"."is_locked" AND ("usr"."login_attempts" + 1 >= ?) THEN ?
		ELSE "usr"."locked_at"
	END,
	"is_locked" = "usr"."is_locked" OR ("usr"."login_attempts" + 1 >= ?)
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

var TrackSuccessfulLoginSQL = `UPDATE "users" AS "usr"
SET
	"loggedin_at" = ?,
	"login_attempt_at" = NULL,
	"login_attempts" = 0
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

var SetEmailVerifiedSQL = `UPDATE "users" AS "usr"
SET
	"is_email_verified" = TRUE,
	"verified_at" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

var ResetLockoutSQL = `UPDATE "users" AS "usr"
SET
	"is_locked" = FALSE,
	"locked_at" = NULL,
	"login_attempts" = 0,
	"login_attempt_at" = NULL
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

type Users interface {
	repository.Repository[*User]

	TrackAttemptedLogin(ctx context.Context, user *User, threshold int) (*User, error)
	TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, user *User, threshold int) (*User, error)
	TrackSuccessfulLogin(ctx context.Context, user *User) (*User, error)
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error)

	SetEmailVerified(ctx context.Context, id uuid.UUID, at time.Time) (*User, error)
	SetEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (*User, error)
	ResetLockout(ctx context.Context, id uuid.UUID) (*User, error)
	ResetLockoutTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)

	HasDuplicateIdentity(ctx context.Context, email, nickname string, excludeID uuid.UUID) (bool, error)
	HasDuplicateIdentityTx(ctx context.Context, tx bun.IDB, email, nickname string, excludeID uuid.UUID) (bool, error)

	ListPage(ctx context.Context, page, size int) (*UserPage, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
}

type usersRepo struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*usersRepo)(nil)
	_ repository.Repository[*User] = (*usersRepo)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
	})

	return &usersRepo{
		Repository: repo,
		db:         db,
	}
}

func (a *usersRepo) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

// RegisterTx creates a new account. Accounts start unverified and unlocked.
func (a *usersRepo) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	if user != nil {
		user.EmailVerified = false
		user.Locked = false
		user.LoginAttempts = 0
	}
	return a.CreateTx(ctx, tx, user)
}

func (a *usersRepo) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*User, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier, criteria...)
}

func (a *usersRepo) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*User, error) {
	options := resolveUserIdentifier(identifier)
	if len(options) == 0 {
		options = []identifierOption{
			{
				column: "id",
				value:  strings.TrimSpace(identifier),
			},
		}
	}

	for _, opt := range options {
		record := &User{}
		q := tx.NewSelect().Model(record)

		for _, c := range criteria {
			q.Apply(c)
		}

		err := q.
			Where(fmt.Sprintf("?TableAlias.%s = ?", opt.column), opt.value).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if repository.IsRecordNotFound(err) {
				continue
			}
			return nil, err
		}

		return record, nil
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"identifier": identifier,
		})
}

func (a *usersRepo) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *usersRepo) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *usersRepo) TrackAttemptedLogin(ctx context.Context, user *User, threshold int) (*User, error) {
	return a.TrackAttemptedLoginTx(ctx, a.db, user, threshold)
}

func (a *usersRepo) TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, user *User, threshold int) (*User, error) {
	now := time.Now()
	res, err := a.Repository.RawTx(ctx, tx, TrackAttemptedLoginSQL,
		now, threshold, now, threshold, user.ID.String(),
	)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": user.ID.String(),
			})
	}

	return res[0], nil
}

func (a *usersRepo) TrackSuccessfulLogin(ctx context.Context, user *User) (*User, error) {
	return a.TrackSuccessfulLoginTx(ctx, a.db, user)
}

func (a *usersRepo) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	loggedInAt := time.Now()
	res, err := a.Repository.RawTx(ctx, tx, TrackSuccessfulLoginSQL, loggedInAt, user.ID.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": user.ID.String(),
			})
	}

	return res[0], nil
}

func (a *usersRepo) SetEmailVerified(ctx context.Context, id uuid.UUID, at time.Time) (*User, error) {
	return a.SetEmailVerifiedTx(ctx, a.db, id, at)
}

func (a *usersRepo) SetEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (*User, error) {
	res, err := a.Repository.RawTx(ctx, tx, SetEmailVerifiedSQL, at, id.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return res[0], nil
}

func (a *usersRepo) ResetLockout(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.ResetLockoutTx(ctx, a.db, id)
}

func (a *usersRepo) ResetLockoutTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	res, err := a.Repository.RawTx(ctx, tx, ResetLockoutSQL, id.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return res[0], nil
}

func (a *usersRepo) HasDuplicateIdentity(ctx context.Context, email, nickname string, excludeID uuid.UUID) (bool, error) {
	return a.HasDuplicateIdentityTx(ctx, a.db, email, nickname, excludeID)
}

// HasDuplicateIdentityTx reports whether another live record already claims
// the email or nickname.
func (a *usersRepo) HasDuplicateIdentityTx(ctx context.Context, tx bun.IDB, email, nickname string, excludeID uuid.UUID) (bool, error) {
	q := tx.NewSelect().Model((*User)(nil)).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("?TableAlias.email = ?", email).
				WhereOr("?TableAlias.nickname = ?", nickname)
		})

	if excludeID != uuid.Nil {
		q = q.Where("?TableAlias.id != ?", excludeID.String())
	}

	return q.Exists(ctx)
}

func (a *usersRepo) ListPage(ctx context.Context, page, size int) (*UserPage, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 25
	}

	items := []*User{}
	total, err := a.db.NewSelect().
		Model(&items).
		Order("created_at DESC").
		Limit(size).
		Offset((page - 1) * size).
		ScanAndCount(ctx)
	if err != nil {
		return nil, err
	}

	return &UserPage{
		Items: items,
		Total: total,
		Page:  page,
		Size:  size,
	}, nil
}

func (a *usersRepo) DeleteByID(ctx context.Context, id uuid.UUID) error {
	res, err := a.db.NewDelete().
		Model((*User)(nil)).
		Where("?TableAlias.id = ?", id.String()).
		Exec(ctx)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	record.EnsureRole()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

type identifierOption struct {
	column string
	value  string
}

func resolveUserIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 3)

	if isUUID(trimmed) {
		options = append(options, identifierOption{
			column: "id",
			value:  trimmed,
		})
	}

	if isEmail(trimmed) {
		options = append(options, identifierOption{
			column: "email",
			value:  trimmed,
		})
	}

	options = append(options, identifierOption{
		column: "nickname",
		value:  trimmed,
	})

	return options
}

func isEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func isUUID(identifier string) bool {
	_, err := uuid.Parse(identifier)
	return err == nil
}
