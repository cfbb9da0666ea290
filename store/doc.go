// Package store groups CredentialStore implementations.
//
//   - store/memory keeps users in process memory, for tests and single-node
//     development.
//   - store/postgres persists users in PostgreSQL and applies its own schema
//     migrations on Open.
package store
