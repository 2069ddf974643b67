// ABOUTME: Request context plumbing for the authenticated user
// ABOUTME: WithUser/UserFromContext propagate identity through handlers

package auth

import (
	"context"

	"github.com/2389/knowledge-gateway/internal/chat"
)

// userContextKey is the key type for storing the user in context.Context.
type userContextKey struct{}

// WithUser returns a new context with the authenticated user attached.
func WithUser(ctx context.Context, user chat.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext retrieves the authenticated user from the context.
// The second return is false if no user is attached.
func UserFromContext(ctx context.Context) (chat.User, bool) {
	user, ok := ctx.Value(userContextKey{}).(chat.User)
	return user, ok
}

// MustUserFromContext retrieves the user, panicking if not present. Only for
// handlers behind the auth middleware, where absence is a programming error.
func MustUserFromContext(ctx context.Context) chat.User {
	user, ok := UserFromContext(ctx)
	if !ok {
		panic("auth: user not found in context")
	}
	return user
}
