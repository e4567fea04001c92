package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/snapmap-io/snapmap/internal/api/middleware"
	"github.com/snapmap-io/snapmap/internal/storage"
)

// handleDeleteUpload handles DELETE /api/v1/uploads/{id}.
//
// Removes one of the caller's points and withdraws the points it earned.
// The point row and the owner's counters change atomically; the stored
// image is then deleted best-effort. A point belonging to another user is
// reported as not found rather than forbidden, so point IDs cannot be
// probed for existence.
func (s *Server) handleDeleteUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	user, ok := middleware.GetUserContext(ctx)
	if !ok {
		WriteErrorResponse(w, r, s.logger, InternalServerError("Missing authentication context"))

		return
	}

	pointID := r.PathValue("id")
	if pointID == "" {
		WriteErrorResponse(w, r, s.logger, BadRequest("Missing point ID"))

		return
	}

	// Fetch the point first: the image URL is needed to delete the object
	// after the ledger reversal
	point, err := s.ledger.FindPoint(ctx, pointID, user.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrPointNotFound) {
			WriteErrorResponse(w, r, s.logger, NotFound("Upload not found"))

			return
		}

		s.logger.ErrorContext(ctx, "Failed to load point for deletion",
			"correlation_id", correlationID,
			"point_id", pointID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to delete upload"))

		return
	}

	reversed, err := s.ledger.Reverse(ctx, pointID, user.UserID)
	if err != nil {
		// A concurrent delete settles the race; report it as gone
		if errors.Is(err, storage.ErrPointNotFound) {
			WriteErrorResponse(w, r, s.logger, NotFound("Upload not found"))

			return
		}

		s.logger.ErrorContext(ctx, "Failed to reverse point",
			"correlation_id", correlationID,
			"point_id", pointID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to delete upload"))

		return
	}

	if reversed {
		s.deleteImage(r, point.ImageURL, correlationID)
	}

	response := DeleteUploadResponse{
		Success: true,
		Message: "Upload deleted",
		PointID: pointID,
	}

	data, err := json.Marshal(response)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to marshal delete response",
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

// deleteImage removes the stored object behind an image URL, best-effort.
// The ledger reversal has already committed; a leaked object costs storage,
// not correctness.
func (s *Server) deleteImage(r *http.Request, imageURL, correlationID string) {
	objectName := strings.TrimPrefix(imageURL, s.imageBaseURL+"/")
	if objectName == imageURL || objectName == "" {
		s.logger.Warn("Image URL outside configured base, skipping object delete",
			"correlation_id", correlationID,
			"image_url", imageURL,
		)

		return
	}

	if err := s.blobs.Delete(r.Context(), objectName); err != nil {
		s.logger.Warn("Failed to delete image object",
			"correlation_id", correlationID,
			"object_name", objectName,
			"error", err.Error(),
		)
	}
}
