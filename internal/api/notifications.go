package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/snapmap-io/snapmap/internal/api/middleware"
	"github.com/snapmap-io/snapmap/internal/storage"
)

// registerTokenRequest is the request body for registering an FCM token.
type registerTokenRequest struct {
	FCMToken string `json:"fcmToken"`
}

// handleRegisterToken handles POST /api/v1/notifications/register-token.
//
// Stores the caller's FCM device token so validation outcomes can be pushed
// to their device. Re-registering replaces any previous token.
func (s *Server) handleRegisterToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	user, ok := middleware.GetUserContext(ctx)
	if !ok {
		WriteErrorResponse(w, r, s.logger, InternalServerError("Missing authentication context"))

		return
	}

	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		WriteErrorResponse(w, r, s.logger, BadRequest("Content-Type must be application/json"))

		return
	}

	var req registerTokenRequest

	body := http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("Invalid request body: "+err.Error()))

		return
	}

	if req.FCMToken == "" {
		WriteErrorResponse(w, r, s.logger, BadRequest("fcmToken is required"))

		return
	}

	if err := s.ledger.SetFCMToken(ctx, user.UserID, &req.FCMToken); err != nil {
		s.writeTokenError(w, r, err, correlationID, user.UserID)

		return
	}

	s.writeTokenResponse(w, r, "FCM token registered", correlationID)
}

// handleUnregisterToken handles DELETE /api/v1/notifications/unregister-token.
//
// Clears the caller's FCM device token; no further pushes are sent until a
// new token is registered.
func (s *Server) handleUnregisterToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	user, ok := middleware.GetUserContext(ctx)
	if !ok {
		WriteErrorResponse(w, r, s.logger, InternalServerError("Missing authentication context"))

		return
	}

	if err := s.ledger.SetFCMToken(ctx, user.UserID, nil); err != nil {
		s.writeTokenError(w, r, err, correlationID, user.UserID)

		return
	}

	s.writeTokenResponse(w, r, "FCM token unregistered", correlationID)
}

// writeTokenError maps token update failures to problem responses.
func (s *Server) writeTokenError(w http.ResponseWriter, r *http.Request, err error, correlationID, userID string) {
	if errors.Is(err, storage.ErrUserNotFound) {
		WriteErrorResponse(w, r, s.logger, NotFound("User account not found"))

		return
	}

	s.logger.ErrorContext(r.Context(), "Failed to update FCM token",
		"correlation_id", correlationID,
		"user_id", userID,
		"error", err.Error(),
	)
	WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to update FCM token"))
}

// writeTokenResponse writes the shared success shape for token changes.
func (s *Server) writeTokenResponse(w http.ResponseWriter, r *http.Request, message, correlationID string) {
	response := FCMTokenResponse{
		Success: true,
		Message: message,
	}

	data, err := json.Marshal(response)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to marshal token response",
			"correlation_id", correlationID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
