// Package api provides the HTTP API server for the Snapmap service.
package api

import (
	"net/http"
	"time"

	"github.com/snapmap-io/snapmap/internal/storage"
)

type (
	// HealthStatus represents the health check response structure.
	HealthStatus struct {
		Status      string `json:"status"`
		ServiceName string `json:"serviceName"`
		Version     string `json:"version"`
		Uptime      string `json:"uptime,omitempty"`
	}

	// PointRecord represents a single map point in list responses.
	PointRecord struct {
		ID           string    `json:"id"`
		UserID       string    `json:"userId"`
		ImageURL     string    `json:"imageUrl"`
		Latitude     float64   `json:"latitude"`
		Longitude    float64   `json:"longitude"`
		Category     int       `json:"category"`
		CategoryName string    `json:"categoryName"`
		Weight       float64   `json:"weight"`
		Rejected     bool      `json:"rejected"`
		CapturedAt   time.Time `json:"capturedAt"`
		CreatedAt    time.Time `json:"createdAt"`
	}

	// PointListResponse represents the response for point list endpoints.
	PointListResponse struct {
		Points []PointRecord `json:"points"`
		Total  int           `json:"total"`
	}

	// UserResponse represents the response for GET /api/v1/users/me.
	UserResponse struct {
		ID           string    `json:"id"`
		Email        string    `json:"email"`
		DisplayName  string    `json:"displayName"`
		AvatarURL    string    `json:"avatarUrl"`
		TotalPoints  int64     `json:"totalPoints"`
		TotalUploads int64     `json:"totalUploads"`
		CreatedAt    time.Time `json:"createdAt"`
	}

	// DeleteUploadResponse confirms a reversed upload.
	DeleteUploadResponse struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		PointID string `json:"pointId"`
	}

	// FCMTokenResponse confirms a notification token change.
	FCMTokenResponse struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}

	// Route represents an HTTP route configuration with a path and handler.
	// Used for declarative route registration with middleware bypass support.
	Route struct {
		Path    string           // The URL path for this route (e.g., "/ping", "/api/v1/points")
		Handler http.HandlerFunc // The HTTP handler function for this route
	}
)

// mapPointToRecord converts a storage point to its API representation.
func mapPointToRecord(p storage.Point) PointRecord {
	return PointRecord{
		ID:           p.ID,
		UserID:       p.UserID,
		ImageURL:     p.ImageURL,
		Latitude:     p.Latitude,
		Longitude:    p.Longitude,
		Category:     int(p.Category),
		CategoryName: p.Category.Name(),
		Weight:       p.Weight,
		Rejected:     p.Rejected,
		CapturedAt:   p.CapturedAt,
		CreatedAt:    p.CreatedAt,
	}
}
