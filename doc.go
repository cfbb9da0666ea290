// Package authsystem authenticates users and issues bearer credentials: password
// registration and login, password change, JWT issuance and validation, and a TOTP
// second factor with an explicit enroll, confirm, verify lifecycle.
//
// Engine methods are safe to call from multiple goroutines after [Builder.Build].
//
// # Two-step login
//
// For an account with an active second factor, [Engine.Login] never returns a token.
// It returns a login challenge bound to the password step. The caller exchanges the
// challenge and a TOTP code for a single-use second-factor assertion
// ([Engine.CompleteLoginChallenge]), then redeems the assertion for a token marked
// TwoFactorVerified ([Engine.LoginWithTwoFactor]). Authenticated callers can mint an
// assertion directly with [Engine.VerifyTwoFactor] for step-up.
//
// # Architecture boundaries
//
// authsystem is the public surface. Persistence of users is delegated to a
// [CredentialStore]; challenge and assertion records live in Redis under
// internal/stores. Password hashing, token signing, and TOTP are provided by the
// password, jwt, and totp packages.
//
// # What this package must NOT do
//
//   - Return or log password hashes, TOTP secrets (outside enrollment), or codes.
//   - Enforce input shape policy (address format, minimum length); the request
//     boundary owns that.
//   - Distinguish a wrong password from a wrong code in returned messages.
package authsystem
