// Package middleware provides HTTP middleware components for the Snapmap API.
package middleware

import (
	"context"
	"time"
)

// userContextKey is the context key for authenticated user information.
// Using a struct type ensures type safety and prevents collisions with other context keys.
type userContextKey struct{}

// UserContext contains authenticated user information enriched in the request context.
// This context is added by the authentication middleware after successful device key validation.
type UserContext struct {
	// UserID is the owner of the device credential
	UserID string

	// CredentialID is the device credential used for authentication (for audit logging)
	CredentialID string

	// DeviceName is the human-readable credential name for logging and display
	DeviceName string

	// AuthTime is the timestamp when authentication occurred (for latency tracking)
	AuthTime time.Time
}

// GetUserContext extracts the authenticated user from the request context.
// Returns (context, true) if authenticated, (empty, false) if not found.
//
// Example usage:
//
//	userCtx, authenticated := middleware.GetUserContext(r.Context())
//	if !authenticated {
//	    // Handle unauthenticated request
//	    return
//	}
func GetUserContext(ctx context.Context) (UserContext, bool) {
	userCtx, ok := ctx.Value(userContextKey{}).(UserContext)

	return userCtx, ok
}

// SetUserContext adds the authenticated user to the request context.
// Returns a new context with the user context attached.
//
// This function is used by the authentication middleware to enrich the request
// context after successful device key validation.
func SetUserContext(ctx context.Context, userCtx UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, userCtx)
}
