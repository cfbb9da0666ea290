// Package httpapi exposes the authentication engine over JSON/HTTP.
//
// Routes live under /v1. Public routes cover registration and the login
// steps; the rest sit behind middleware.Guard, and disabling the second
// factor additionally requires a token minted after a verified code.
//
// Errors are written as {"error": "<message>"} with the status chosen by
// statusFor. Password hashes and TOTP secrets never appear in a response,
// except the secret returned once when enrollment begins.
package httpapi
