package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/snapmap-io/snapmap/internal/api/middleware"
	"github.com/snapmap-io/snapmap/internal/storage"
)

// handleGetMe handles GET /api/v1/users/me.
//
// Returns the caller's account record including aggregate counters
// (total points earned, total validated uploads).
func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	user, ok := middleware.GetUserContext(ctx)
	if !ok {
		WriteErrorResponse(w, r, s.logger, InternalServerError("Missing authentication context"))

		return
	}

	account, err := s.ledger.GetUser(ctx, user.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			s.logger.ErrorContext(ctx, "Authenticated user has no account record",
				"correlation_id", correlationID,
				"user_id", user.UserID,
			)
			WriteErrorResponse(w, r, s.logger, NotFound("User account not found"))

			return
		}

		s.logger.ErrorContext(ctx, "Failed to load user",
			"correlation_id", correlationID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to load user"))

		return
	}

	response := UserResponse{
		ID:           account.ID,
		Email:        account.Email,
		DisplayName:  account.DisplayName,
		AvatarURL:    account.AvatarURL,
		TotalPoints:  account.TotalPoints,
		TotalUploads: account.TotalUploads,
		CreatedAt:    account.CreatedAt,
	}

	data, err := json.Marshal(response)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to marshal user response",
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
