package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/snapmap-io/snapmap/internal/api/middleware"
	"github.com/snapmap-io/snapmap/internal/blob"
	"github.com/snapmap-io/snapmap/internal/storage"
)

// issueUploadRequest is the request body for POST /api/v1/uploads.
type issueUploadRequest struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	ContentType string  `json:"contentType"`
}

// handleIssueUpload handles POST /api/v1/uploads.
//
// Issues a presigned upload grant for a new image. The client then PUTs the
// image bytes directly to object storage using the returned URL and headers;
// the upload is validated asynchronously once the storage notification
// arrives. The grant expires after a fixed window, after which the client
// must request a new one.
//
// Request body: {"latitude": <float>, "longitude": <float>, "contentType": <string>}
//
// Response: 201 Created with the upload grant.
func (s *Server) handleIssueUpload(w http.ResponseWriter, r *http.Request) {
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

	var req issueUploadRequest

	body := http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&req); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("Invalid request body: "+err.Error()))

		return
	}

	if err := storage.ValidateCoordinates(req.Latitude, req.Longitude); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	if !strings.HasPrefix(req.ContentType, "image/") {
		WriteErrorResponse(w, r, s.logger, BadRequest("Unsupported content type: must be an image/* MIME type"))

		return
	}

	// The object name embeds the owner's email, so look up the account
	owner, err := s.ledger.GetUser(ctx, user.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			s.logger.ErrorContext(ctx, "Authenticated user has no account record",
				"correlation_id", correlationID,
				"user_id", user.UserID,
			)
			WriteErrorResponse(w, r, s.logger, NotFound("User account not found"))

			return
		}

		s.logger.ErrorContext(ctx, "Failed to load user for upload grant",
			"correlation_id", correlationID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to issue upload grant"))

		return
	}

	grant, err := s.blobs.PresignUpload(ctx, &blob.UploadRequest{
		UserID:      owner.ID,
		UserEmail:   owner.Email,
		ContentType: req.ContentType,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to presign upload",
			"correlation_id", correlationID,
			"user_id", owner.ID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to issue upload grant"))

		return
	}

	s.logger.InfoContext(ctx, "Upload grant issued",
		"correlation_id", correlationID,
		"user_id", owner.ID,
		"object_name", grant.ObjectName,
	)

	data, err := json.Marshal(grant)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to marshal upload grant",
			"correlation_id", correlationID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(data)
}
