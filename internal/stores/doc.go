// Package stores provides Redis-backed, short-lived records for the second-factor
// flow: login challenges, second-factor assertions, and used-code markers.
//
// # Design
//
// Each record is a versioned binary encoding stored under a prefixed key with a
// TTL. Records also carry their own expiry, checked against an injected clock, so
// behaviour is deterministic in tests regardless of the Redis server clock.
// Challenge attempt counting uses WATCH/MULTI with retry on contention.
// Assertions are single-use and consumed with GETDEL.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for transient records.
// It does not verify codes, issue tokens, or make authentication decisions.
//
// # What this package must NOT do
//
//   - Import the root package or any sibling internal package.
//   - Store TOTP secrets or codes.
package stores
