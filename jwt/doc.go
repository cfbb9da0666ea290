// Package jwt issues and validates HMAC-signed access tokens carrying a subject,
// an email, and a flag recording whether the second factor was verified.
//
// Validation is pure: it never touches storage. Callers that need to confirm the
// subject still exists do so after Validate returns.
package jwt
