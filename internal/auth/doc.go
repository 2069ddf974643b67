// ABOUTME: Package doc for authentication
// ABOUTME: JWT tokens, user directory, HTTP middleware

// Package auth authenticates API requests. A TOML-backed user directory
// holds the known users, JWT bearer tokens carry identity between requests,
// and the middleware resolves the token to a user on the request context.
// With no signing secret configured the middleware runs every request as the
// directory's default user.
package auth
