// Package password implements one-way salted password hashing and constant-time
// verification.
//
// # Output formats
//
// Every hash is self-describing, so verification needs no side-channel parameters:
//
//	$2a$<cost>$<salt+hash>                                  (bcrypt, the default)
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>  (PHC)
//
// [Multi] hashes with one primary scheme and verifies every supported scheme. Its
// NeedsRehash reports true when a stored hash uses another scheme or weaker
// parameters, so callers can re-hash on the next successful login.
//
// [Pool] bounds how many hash or verify calls run at once. Both primitives are
// CPU-bound and must not be allowed to saturate every core under load.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (minimum length,
// address shape) is enforced at the request boundary.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other package of this module.
//   - Log plaintext passwords or hash material.
package password
