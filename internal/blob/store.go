package blob

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Metadata header names embedded into presigned PUT requests. The client
// must send them verbatim; they travel with the object and are read back
// by the validation worker.
const (
	MetaUserID     = "user-id"
	MetaLatitude   = "latitude"
	MetaLongitude  = "longitude"
	MetaUploadedAt = "uploaded-at"
)

const objectNameRandomBytes = 4

// UploadRequest describes a pending image upload for which a client wants
// write credentials.
type UploadRequest struct {
	UserID      string
	UserEmail   string
	ContentType string
	Latitude    float64
	Longitude   float64
}

// UploadGrant is a time-limited permission to write one object.
type UploadGrant struct {
	ObjectName string            `json:"object_name"`
	URL        string            `json:"url"`
	Method     string            `json:"method"`
	Headers    map[string]string `json:"headers"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

// ObjectMetadata is the metadata recovered from a stored object.
type ObjectMetadata struct {
	UserID     string
	Latitude   float64
	Longitude  float64
	UploadedAt time.Time
}

// Store abstracts the object storage backend.
type Store interface {
	// PresignUpload issues a grant for writing a new object. The object
	// name is generated server-side so clients cannot choose keys.
	PresignUpload(ctx context.Context, req *UploadRequest) (*UploadGrant, error)

	// Download fetches an object's bytes together with its metadata.
	Download(ctx context.Context, objectName string) ([]byte, *ObjectMetadata, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectName string) error
}

// ObjectName builds a storage key for a new upload. Keys are partitioned
// by a sanitized owner email so operators can inspect a user's uploads
// with a prefix listing.
func ObjectName(userEmail string, now time.Time) (string, error) {
	randomBytes := make([]byte, objectNameRandomBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate object name: %w", err)
	}

	return fmt.Sprintf("uploads/%s/%s_%s.jpg",
		sanitizeEmail(userEmail),
		now.UTC().Format("20060102_150405"),
		hex.EncodeToString(randomBytes),
	), nil
}

// sanitizeEmail maps an email address onto a key-safe path segment.
func sanitizeEmail(email string) string {
	var b strings.Builder
	b.Grow(len(email))

	for _, r := range strings.ToLower(email) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	return b.String()
}
