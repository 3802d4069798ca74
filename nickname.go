package users

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateNickname derives a nickname from the email local part. Callers
// that hit a uniqueness conflict can retry with UniqueNickname.
func GenerateNickname(email string) string {
	local := email
	if at := strings.Index(email, "@"); at >= 0 {
		local = email[:at]
	}

	var b strings.Builder
	for _, r := range strings.ToLower(local) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_' || r == '+':
			b.WriteRune('_')
		}
	}

	nickname := strings.Trim(b.String(), "_")
	if nickname == "" {
		nickname = "user"
	}

	return nickname
}

// UniqueNickname appends a short random suffix to a base nickname.
func UniqueNickname(base string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return base + "_" + suffix
}
