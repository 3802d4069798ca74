// Package users implements the authentication and authorization core of a
// user-management service: credential verification with bcrypt, account
// verification and lockout state transitions, stateless JWT session tokens
// carrying a role claim, and a role-based authorization gate over the user
// CRUD surface.
//
// Account lifecycle:
//   - Users carry an email-verification flag and a lockout flag persisted via
//     Bun. Registration creates unverified accounts; a verification event
//     (normally triggered from an emailed link) flips them to verified.
//   - AccountStateMachine centralizes the failed-login counter, the lockout
//     threshold, and the verification transition. Counter updates happen in a
//     single SQL statement so concurrent logins cannot skip past the
//     threshold.
//   - A locked account stays locked until an explicit admin Unlock.
//
// Login semantics:
//   - Checks run in a fixed order: account existence, lock status,
//     verification status, password. Unknown users and wrong passwords
//     surface the same error so callers cannot enumerate accounts. Locked
//     accounts are reported as locked even when the password is correct.
//
// Tokens and authorization:
//   - Tokens are HS256 JWTs; the role claim is captured at login time and
//     serialized as the enum name (e.g. "AUTHENTICATED").
//   - Authorization decisions are computed from claims alone, before any
//     record lookup, so a denial never reveals whether the target exists.
//
// http_controller.go exposes the REST contract (register, login, and the
// admin user CRUD endpoints) on top of go-router contexts, and
// middleware/jwtware protects routes with bearer-token validation plus role
// checks.
package users
