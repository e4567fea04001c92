package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/snapmap-io/snapmap/internal/api/middleware"
	"github.com/snapmap-io/snapmap/internal/storage"
)

type (
	// pointQueryParams holds parsed query parameters for the bounding-box query.
	pointQueryParams struct {
		bounds storage.Bounds
		limit  int
	}

	// paramError represents a parameter validation error.
	paramError struct {
		param string
		msg   string
	}
)

// maxPointLimit caps how many points one bounding-box query may return.
const maxPointLimit = 1000

func (e *paramError) Error() string {
	return "Invalid parameter '" + e.param + "': " + e.msg
}

// handleQueryPoints handles GET /api/v1/points.
//
// Returns all validated points inside an axis-aligned bounding box, newest
// first. Rejected uploads are never included.
//
// Query Parameters:
//   - lat1, lng1: southwest corner (required)
//   - lat2, lng2: northeast corner (required, must exceed the southwest corner)
//   - limit: 1-1000 (default: 1000)
func (s *Server) handleQueryPoints(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	params, err := parsePointQueryParams(r)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	points, err := s.ledger.QueryBounds(ctx, params.bounds, params.limit)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to query points",
			"correlation_id", correlationID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to query points"))

		return
	}

	s.writePointList(w, r, points, correlationID)
}

// handleMyUploads handles GET /api/v1/points/my-uploads.
//
// Returns all of the caller's points newest first, including rejected
// uploads, so users can review what happened to each submission.
func (s *Server) handleMyUploads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	user, ok := middleware.GetUserContext(ctx)
	if !ok {
		WriteErrorResponse(w, r, s.logger, InternalServerError("Missing authentication context"))

		return
	}

	points, err := s.ledger.QueryByOwner(ctx, user.UserID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to query user uploads",
			"correlation_id", correlationID,
			"user_id", user.UserID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to query uploads"))

		return
	}

	s.writePointList(w, r, points, correlationID)
}

// writePointList marshals points into the shared list response shape.
func (s *Server) writePointList(w http.ResponseWriter, r *http.Request, points []storage.Point, correlationID string) {
	records := make([]PointRecord, 0, len(points))
	for _, p := range points {
		records = append(records, mapPointToRecord(p))
	}

	response := PointListResponse{
		Points: records,
		Total:  len(records),
	}

	data, err := json.Marshal(response)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to marshal point list",
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

// parsePointQueryParams parses and validates bounding-box query parameters.
func parsePointQueryParams(r *http.Request) (*pointQueryParams, error) {
	q := r.URL.Query()

	coords := make(map[string]float64, 4)

	for _, name := range []string{"lat1", "lng1", "lat2", "lng2"} {
		raw := q.Get(name)
		if raw == "" {
			return nil, &paramError{param: name, msg: "is required"}
		}

		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, &paramError{param: name, msg: "must be a valid number"}
		}

		coords[name] = value
	}

	params := &pointQueryParams{
		bounds: storage.Bounds{
			MinLat: coords["lat1"],
			MinLng: coords["lng1"],
			MaxLat: coords["lat2"],
			MaxLng: coords["lng2"],
		},
		limit: maxPointLimit,
	}

	if err := params.bounds.Validate(); err != nil {
		return nil, &paramError{param: "bounds", msg: err.Error()}
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, &paramError{param: "limit", msg: "must be a valid integer"}
		}

		if limit < 1 || limit > maxPointLimit {
			return nil, &paramError{param: "limit", msg: "must be between 1 and 1000"}
		}

		params.limit = limit
	}

	return params, nil
}
