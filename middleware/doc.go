// Package middleware adapts authsystem bearer validation to net/http.
//
// # Guards
//
//   - [Guard] validates the Authorization header and attaches the identity to
//     the request context.
//   - [RequireTwoFactor] additionally demands a token minted after a second
//     factor was verified. It must run inside Guard.
//
// # What this package must NOT do
//
//   - Parse or sign JWTs itself (Engine.ValidateBearerToken does).
//   - Reveal why a credential was rejected; every rejection is the same 401.
package middleware
