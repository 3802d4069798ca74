package users

import (
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes surfaced in rich errors so API clients can branch without
// string-matching messages.
const (
	TextCodeIncorrectCredentials = "INCORRECT_CREDENTIALS"
	TextCodeAccountLocked        = "ACCOUNT_LOCKED"
	TextCodeAccountNotVerified   = "ACCOUNT_NOT_VERIFIED"
	TextCodeInsufficientRole     = "INSUFFICIENT_ROLE"
	TextCodeDuplicateIdentity    = "DUPLICATE_IDENTITY"
	TextCodeUserNotFound         = "USER_NOT_FOUND"
	TextCodeTokenExpired         = "TOKEN_EXPIRED"
	TextCodeTokenMalformed       = "TOKEN_MALFORMED"
)

// ErrIncorrectCredentials covers both unknown accounts and wrong passwords.
// The shared message keeps the API from leaking which of the two happened.
var ErrIncorrectCredentials = goerrors.New("Incorrect email or password.", goerrors.CategoryAuth).
	WithTextCode(TextCodeIncorrectCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountLocked is returned once the failed-login counter crossed the
// lockout threshold, even when the supplied password is correct.
var ErrAccountLocked = goerrors.New("Account locked due to too many failed login attempts.", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeAccountLocked).
	WithCode(goerrors.CodeBadRequest)

// ErrAccountNotVerified is returned when the account never completed email
// verification.
var ErrAccountNotVerified = goerrors.New("Account not verified.", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountNotVerified).
	WithCode(goerrors.CodeUnauthorized)

// ErrInsufficientRole is the uniform authorization denial. It carries no
// information about the target resource.
var ErrInsufficientRole = goerrors.New("Operation not permitted.", goerrors.CategoryAuthz).
	WithTextCode(TextCodeInsufficientRole).
	WithCode(goerrors.CodeForbidden)

// ErrUserNotFound is only surfaced to callers that already passed
// authorization.
var ErrUserNotFound = goerrors.New("User not found.", goerrors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrDuplicateIdentity is returned when a create collides with an existing
// email or nickname. The API maps duplicates to 400, not 409.
var ErrDuplicateIdentity = goerrors.New("Email or nickname already in use.", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateIdentity).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenExpired is returned when decoding a token past its expiry
var ErrTokenExpired = goerrors.New("Authentication token expired.", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed covers malformed tokens and bad signatures
var ErrTokenMalformed = goerrors.New("Invalid authentication token.", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrIdentityNotFound is the internal sentinel for missing accounts; the
// authenticator translates it before it reaches a response
var ErrIdentityNotFound = errors.New("identity not found")

// ErrMismatchedHashAndPassword is the internal sentinel for a bcrypt mismatch
var ErrMismatchedHashAndPassword = errors.New("identity auth failed, mismatched password")

// ErrNoEmptyString rejects empty plaintext passwords before hashing
var ErrNoEmptyString = errors.New("password must not be an empty string")

// ErrUnableToFindSession is the error when a request carries no token
var ErrUnableToFindSession = errors.New("unable to find session")

// ErrUnableToDecodeSession unable to decode JWT claims
var ErrUnableToDecodeSession = errors.New("unable to decode session")

// ErrUnableToMapClaims unable to get claims from token
var ErrUnableToMapClaims = errors.New("unable to map claims")

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode == TextCodeTokenMalformed {
		return true
	}

	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
