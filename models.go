package users

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the user model
type User struct {
	bun.BaseModel      `bun:"table:users,alias:usr"`
	ID                 uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role               UserRole   `bun:"user_role,notnull" json:"role,omitempty"`
	Nickname           string     `bun:"nickname,notnull,unique" json:"nickname,omitempty"`
	Email              string     `bun:"email,notnull,unique" json:"email,omitempty"`
	FirstName          string     `bun:"first_name" json:"first_name,omitempty"`
	LastName           string     `bun:"last_name" json:"last_name,omitempty"`
	Bio                string     `bun:"bio" json:"bio,omitempty"`
	GithubProfileURL   string     `bun:"github_profile_url" json:"github_profile_url,omitempty"`
	LinkedinProfileURL string     `bun:"linkedin_profile_url" json:"linkedin_profile_url,omitempty"`
	PasswordHash       string     `bun:"password_hash" json:"-"`
	EmailVerified      bool       `bun:"is_email_verified" json:"is_email_verified"`
	Locked             bool       `bun:"is_locked" json:"is_locked"`
	LoginAttempts      int        `bun:"login_attempts" json:"-"`
	LoginAttemptAt     *time.Time `bun:"login_attempt_at" json:"-"`
	LoggedInAt         *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	VerifiedAt         *time.Time `bun:"verified_at,nullzero" json:"verified_at,omitempty"`
	LockedAt           *time.Time `bun:"locked_at,nullzero" json:"-"`
	CreatedAt          *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt          *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt          *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"-"`
}

// EnsureRole defaults the role for records that never had one assigned
func (u *User) EnsureRole() {
	if u.Role == "" {
		u.Role = RoleAuthenticated
	}
}

// IsVerified reports whether the account completed email verification
func (u *User) IsVerified() bool {
	return u.EmailVerified
}

// IsLocked reports whether the account is locked out of login
func (u *User) IsLocked() bool {
	return u.Locked
}

// UserPage is a single page of the user directory listing
type UserPage struct {
	Items []*User `json:"items"`
	Total int     `json:"total"`
	Page  int     `json:"page"`
	Size  int     `json:"size"`
}
