// Package totp generates RFC 6238 shared secrets, enrollment URIs, QR images,
// and verifies time-based one-time codes against an injected clock.
//
// Secrets are exchanged as unpadded base32 strings. Verification tolerates a
// configurable number of adjacent time steps and reports which step matched so
// callers can reject replays.
package totp
