// Package middleware provides HTTP middleware components for the Snapmap API.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/snapmap-io/snapmap/internal/storage"
)

// publicEndpoints defines public endpoints that bypass authentication.
// These endpoints are accessible without device keys (e.g., K8s health probes,
// monitoring tools).
//
// Security note: Only health check endpoints should be in this map.
// Never add business logic endpoints to this bypass list.
var publicEndpoints = map[string]bool{} //nolint: gochecknoglobals

// RegisterPublicEndpoint registers an endpoint that bypasses authentication.
// This should only be called during route setup for health check endpoints.
//
// Security Warning: Never register business logic endpoints as public.
//
// Example:
//
//	middleware.RegisterPublicEndpoint("/ping")
//	middleware.RegisterPublicEndpoint("/health")
func RegisterPublicEndpoint(endpoint string) {
	publicEndpoints[endpoint] = true
}

type (
	// AuthError represents an authentication error with a specific type.
	AuthError struct {
		Type    error
		Message string
	}
)

// Authentication error types for granular error handling.
var (
	// ErrMissingDeviceKey is returned when no device key is provided in headers.
	ErrMissingDeviceKey = errors.New("missing device key")

	// ErrInvalidDeviceKey is returned for invalid device key format or not found.
	// Generic error prevents enumeration attacks.
	ErrInvalidDeviceKey = errors.New("invalid device key")

	// ErrDeviceKeyExpired is returned when the device key has expired.
	ErrDeviceKeyExpired = errors.New("device key expired")

	// ErrDeviceKeyInactive is returned when the device key is inactive (revoked).
	ErrDeviceKeyInactive = errors.New("device key inactive")
)

// extractDeviceKey extracts the device key from request headers.
// It checks the X-Device-Key header first (primary), then falls back to
// Authorization: Bearer header (secondary).
//
// Returns (key, true) if found and valid, ("", false) otherwise.
//
// Security considerations:
// - Rejects keys containing newlines (header injection prevention)
// - Trims whitespace from keys
// - Case-sensitive "Bearer " prefix check
// - X-Device-Key takes precedence over Authorization header.
func extractDeviceKey(r *http.Request) (string, bool) {
	if deviceKey := r.Header.Get("X-Device-Key"); deviceKey != "" {
		return validateKeyHeader(deviceKey)
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		if strings.HasPrefix(authHeader, "Bearer ") {
			token := strings.TrimPrefix(authHeader, "Bearer ")

			return validateKeyHeader(token)
		}
	}

	return "", false
}

// validateKeyHeader validates and cleans a device key header value.
// Returns (cleanedKey, true) if valid, ("", false) otherwise.
//
// Validation rules:
// - Rejects keys containing newlines (\r or \n) for header injection prevention
// - Trims leading/trailing whitespace
// - Rejects empty keys after trimming.
func validateKeyHeader(key string) (string, bool) {
	if strings.ContainsAny(key, "\r\n") {
		return "", false
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return "", false
	}

	return key, true
}

// Error implements the error interface for AuthError.
func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("authentication failed: %s: %s", e.Type.Error(), e.Message)
	}

	return "authentication failed: " + e.Type.Error()
}

// Unwrap returns the wrapped error type, enabling standard errors.Is() and errors.As() behavior.
func (e *AuthError) Unwrap() error {
	return e.Type
}

// Timing attack prevention: Perform dummy bcrypt comparison
// to maintain constant time.
func performDummyBcryptComparison() {
	_ = bcrypt.CompareHashAndPassword([]byte("dummy"), []byte("dummy"))
}

// authenticateRequest performs device key authentication and validation.
// Returns the authenticated credential or an AuthError.
//
// Security considerations:
// - Timing attack prevention: Always performs full validation even if format is invalid
// - Generic error messages to prevent enumeration
//
// Error handling:
// - Invalid format → ErrInvalidDeviceKey (generic)
// - Key not found → ErrInvalidDeviceKey (generic)
// - Inactive key → ErrDeviceKeyInactive (specific)
// - Expired key → ErrDeviceKeyExpired (specific)
//
// Logging:
// - All authentication failures logged at ERROR level for operational monitoring
// - Includes correlation_id and failure_type for filtering/aggregation.
func authenticateRequest(
	ctx context.Context,
	store storage.CredentialStore,
	deviceKey string,
	logger *slog.Logger,
) (*storage.Credential, error) {
	parsedKey, err := storage.ParseDeviceKey(deviceKey)
	if err != nil {
		performDummyBcryptComparison()

		logger.Error("authentication failed: invalid key format",
			slog.String("error", err.Error()),
			slog.String("correlation_id", GetCorrelationID(ctx)),
			slog.String("failure_type", "format_validation"),
		)

		return nil, &AuthError{
			Type:    ErrInvalidDeviceKey,
			Message: "Invalid or missing device key",
		}
	}

	credential, exists := store.FindByKey(ctx, parsedKey)
	if !exists {
		performDummyBcryptComparison()

		logger.Error("authentication failed: key not found",
			slog.String("correlation_id", GetCorrelationID(ctx)),
			slog.String("failure_type", "key_not_found"),
		)

		return nil, &AuthError{
			Type:    ErrInvalidDeviceKey,
			Message: "Invalid or missing device key",
		}
	}

	if !credential.Active {
		logger.Error("authentication failed: key inactive",
			slog.String("credential_id", credential.ID),
			slog.String("user_id", credential.UserID),
			slog.String("correlation_id", GetCorrelationID(ctx)),
			slog.String("failure_type", "key_inactive"),
		)

		return nil, &AuthError{
			Type:    ErrDeviceKeyInactive,
			Message: "Device key is inactive",
		}
	}

	if credential.ExpiresAt != nil && time.Now().After(*credential.ExpiresAt) {
		logger.Error("authentication failed: key expired",
			slog.String("credential_id", credential.ID),
			slog.String("user_id", credential.UserID),
			slog.Time("expired_at", *credential.ExpiresAt),
			slog.String("correlation_id", GetCorrelationID(ctx)),
			slog.String("failure_type", "key_expired"),
		)

		return nil, &AuthError{
			Type:    ErrDeviceKeyExpired,
			Message: "Device key has expired",
		}
	}

	return credential, nil
}

// AuthenticateDevice creates an authentication middleware that validates
// device keys and enriches request context with the owning user.
//
// The middleware:
// - Skips paths registered via RegisterPublicEndpoint
// - Extracts device keys from X-Device-Key (primary) or Authorization: Bearer (fallback) headers
// - Validates device key format and authenticity
// - Checks active status and expiration
// - Enriches request context with UserContext
// - Returns RFC 7807 compliant error responses on failure
//
// Example usage:
//
//	store := storage.NewPersistentCredentialStore(conn)
//	logger := slog.Default()
//	authMiddleware := middleware.AuthenticateDevice(store, logger)
//	handler = authMiddleware(handler)
func AuthenticateDevice(store storage.CredentialStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicEndpoints[r.URL.Path] {
				next.ServeHTTP(w, r)

				return
			}

			authStart := time.Now()

			deviceKey, found := extractDeviceKey(r)
			if !found {
				writeAuthError(w, r, logger, &AuthError{
					Type:    ErrMissingDeviceKey,
					Message: "Missing device key",
				})

				return
			}

			credential, err := authenticateRequest(r.Context(), store, deviceKey, logger)
			if err != nil {
				writeAuthError(w, r, logger, err)

				return
			}

			userCtx := UserContext{
				UserID:       credential.UserID,
				CredentialID: credential.ID,
				DeviceName:   credential.Name,
				AuthTime:     time.Now(),
			}
			ctx := SetUserContext(r.Context(), userCtx)

			logger.Info("device key authenticated",
				slog.String("user_id", userCtx.UserID),
				slog.String("credential_id", userCtx.CredentialID),
				slog.String("key", storage.MaskKey(credential.Key)),
				slog.Duration("auth_latency", time.Since(authStart)),
				slog.String("correlation_id", GetCorrelationID(r.Context())),
				slog.String("endpoint", r.URL.Path),
			)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeAuthError writes an RFC 7807 compliant error response for authentication failures.
// It maps authentication errors to appropriate HTTP status codes and logs the failure.
func writeAuthError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	correlationID := GetCorrelationID(r.Context())

	var statusCode int

	var authErr *AuthError
	if errors.As(err, &authErr) {
		switch {
		case errors.Is(authErr.Type, ErrMissingDeviceKey):
			statusCode = http.StatusUnauthorized
		case errors.Is(authErr.Type, ErrInvalidDeviceKey):
			statusCode = http.StatusUnauthorized
		case errors.Is(authErr.Type, ErrDeviceKeyExpired):
			statusCode = http.StatusUnauthorized
		case errors.Is(authErr.Type, ErrDeviceKeyInactive):
			statusCode = http.StatusForbidden
		default:
			statusCode = http.StatusUnauthorized
		}
	} else {
		statusCode = http.StatusUnauthorized
	}

	// Log authentication failure (no sensitive data)
	logger.Warn("Authentication failed",
		slog.String("reason", err.Error()),
		slog.String("correlation_id", correlationID),
		slog.String("endpoint", r.URL.Path),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("user_agent", r.UserAgent()),
	)

	if err := writeRFC7807Error(w, r, statusCode, err.Error(), correlationID); err != nil {
		logger.Error("Failed to encode authentication error response",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.Any("encode_error", err),
		)
	}
}

// writeRFC7807Error writes an RFC 7807 compliant error response without importing the api package.
func writeRFC7807Error(
	w http.ResponseWriter,
	r *http.Request,
	statusCode int,
	detail,
	correlationID string,
) error {
	var title string

	switch statusCode {
	case http.StatusUnauthorized:
		title = "Unauthorized"
	case http.StatusForbidden:
		title = "Forbidden"
	case http.StatusTooManyRequests:
		title = "Too Many Requests"
	default:
		title = "Authentication Failed"
	}

	problem := map[string]interface{}{
		"type":          fmt.Sprintf("https://snapmap.io/problems/%d", statusCode),
		"title":         title,
		"status":        statusCode,
		"detail":        detail,
		"instance":      r.URL.Path,
		"correlationId": correlationID,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(statusCode)

	return json.NewEncoder(w).Encode(problem)
}
