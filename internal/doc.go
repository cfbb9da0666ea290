// Package internal contains helpers private to this module, currently opaque
// identifier generation for challenge and assertion records.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - config: process configuration from environment and YAML
//   - httpapi: HTTP boundary over the engine
//   - stores: Redis-backed challenge, assertion, and used-code records
package internal
