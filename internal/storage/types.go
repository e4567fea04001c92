// Package storage provides data storage interfaces and domain types for the Snapmap API.
package storage

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// PointsPerUpload is the number of points awarded for each accepted upload.
	PointsPerUpload = 250

	// Device key format constants.
	randomBytesSize = 32
	deviceKeyLength = 75 // "snapmap_dk_" + 64 hex chars
	prefixLen       = 15 // Show "snapmap_dk_1234"
	suffixLen       = 4  // Show last 4 chars
)

var (
	// ErrUserNotFound is returned when a user lookup finds no row.
	ErrUserNotFound = errors.New("user not found")

	// ErrPointNotFound is returned when a point lookup finds no row.
	ErrPointNotFound = errors.New("point not found")

	// ErrInvalidCategory is returned when a category is outside 1..4.
	ErrInvalidCategory = errors.New("category must be between 1 and 4")

	// ErrInvalidCoordinates is returned when latitude or longitude is out of range.
	ErrInvalidCoordinates = errors.New("coordinates out of range")

	// ErrInvalidBounds is returned when a bounding box is malformed.
	ErrInvalidBounds = errors.New("invalid bounding box")

	// ErrKeyAlreadyExists is returned when attempting to add a key that already exists.
	ErrKeyAlreadyExists = errors.New("device key already exists")

	// ErrKeyNotFound is returned when attempting to operate on a non-existent key.
	ErrKeyNotFound = errors.New("device key not found")

	// ErrKeyNil is returned when a nil credential is provided.
	ErrKeyNil = errors.New("credential cannot be nil")

	// ErrUserIDEmpty is returned when user ID is empty during key generation.
	ErrUserIDEmpty = errors.New("user ID cannot be empty")

	// ErrKeyStringEmpty is returned when key string is empty during parsing.
	ErrKeyStringEmpty = errors.New("key string cannot be empty")

	// ErrInvalidKeyFormat is returned when a device key doesn't match expected format.
	ErrInvalidKeyFormat = errors.New("invalid device key format")

	// ErrInvalidKeyLength is returned when a device key length is incorrect.
	ErrInvalidKeyLength = errors.New("invalid device key length")
)

// Category is the trash density classification of an accepted upload.
// Valid values run 1 (light litter) through 4 (severe pollution).
type Category int

// Trash density categories.
const (
	CategoryLightLitter     Category = 1
	CategoryModerateTrash   Category = 2
	CategoryHeavyDebris     Category = 3
	CategorySeverePollution Category = 4
)

// categoryWeightStep is the weight contribution of one category level.
const categoryWeightStep = 0.25

// Valid reports whether the category is within 1..4.
func (c Category) Valid() bool {
	return c >= CategoryLightLitter && c <= CategorySeverePollution
}

// Name returns the human-readable category label used in notifications.
func (c Category) Name() string {
	switch c {
	case CategoryLightLitter:
		return "Light Litter"
	case CategoryModerateTrash:
		return "Moderate Trash"
	case CategoryHeavyDebris:
		return "Heavy Debris"
	case CategorySeverePollution:
		return "Severe Pollution"
	default:
		return "Unknown"
	}
}

// Weight converts a category into a map render weight in (0, 1].
// Category 1 maps to 0.25, 2 to 0.5, 3 to 0.75, 4 to 1.0.
func (c Category) Weight() float64 {
	return float64(c) * categoryWeightStep
}

// CategoryFromWeight converts a render weight back to a category.
// The conversion is lossless for the four canonical weights.
func CategoryFromWeight(weight float64) (Category, error) {
	c := Category(weight / categoryWeightStep)
	if !c.Valid() || c.Weight() != weight {
		return 0, fmt.Errorf("%w: weight %v has no category", ErrInvalidCategory, weight)
	}

	return c, nil
}

// User is an upload owner with aggregate counters.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	DisplayName  string     `json:"displayName"`
	AvatarURL    string     `json:"avatarUrl"`
	TotalPoints  int64      `json:"totalPoints"`
	TotalUploads int64      `json:"totalUploads"`
	FCMToken     *string    `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Point is a validated upload pinned to a location.
type Point struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	ImageURL   string    `json:"imageUrl"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Category   Category  `json:"category"`
	Weight     float64   `json:"weight"`
	Rejected   bool      `json:"rejected"`
	CapturedAt time.Time `json:"capturedAt"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Bounds is a geographic bounding box. Both edges are inclusive: a point
// lying exactly on a boundary is inside the box.
type Bounds struct {
	MinLat float64 `json:"minLat"`
	MinLng float64 `json:"minLng"`
	MaxLat float64 `json:"maxLat"`
	MaxLng float64 `json:"maxLng"`
}

// Validate checks coordinate ranges and edge ordering.
func (b Bounds) Validate() error {
	if b.MinLat < -90 || b.MaxLat > 90 {
		return fmt.Errorf("%w: latitude must be within [-90, 90]", ErrInvalidBounds)
	}

	if b.MinLng < -180 || b.MaxLng > 180 {
		return fmt.Errorf("%w: longitude must be within [-180, 180]", ErrInvalidBounds)
	}

	if b.MinLat >= b.MaxLat {
		return fmt.Errorf("%w: maxLat must be greater than minLat", ErrInvalidBounds)
	}

	if b.MinLng >= b.MaxLng {
		return fmt.Errorf("%w: maxLng must be greater than minLng", ErrInvalidBounds)
	}

	return nil
}

// ValidateCoordinates checks a single latitude/longitude pair.
func ValidateCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v", ErrInvalidCoordinates, lat)
	}

	if lng < -180 || lng > 180 {
		return fmt.Errorf("%w: longitude %v", ErrInvalidCoordinates, lng)
	}

	return nil
}

// Credential represents a device API key bound to a user.
type Credential struct {
	ID        string     `json:"id"`
	Key       string     `json:"key"`
	UserID    string     `json:"userId"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Active    bool       `json:"active"`
}

// CredentialStore defines the interface for device credential storage and retrieval.
type CredentialStore interface {
	// FindByKey retrieves a credential by its key value
	FindByKey(ctx context.Context, key string) (*Credential, bool)
	// Add stores a new credential
	Add(ctx context.Context, cred *Credential) error
	// Update modifies an existing credential
	Update(ctx context.Context, cred *Credential) error
	// Delete removes a credential
	Delete(ctx context.Context, credID string) error
	// ListByUser returns all credentials for a specific user
	ListByUser(ctx context.Context, userID string) ([]*Credential, error)
}

// ValidateKey performs constant-time comparison of the provided key against this credential.
func (c *Credential) ValidateKey(providedKey string) bool {
	if providedKey == "" || c.Key == "" {
		return false
	}

	if !c.Active {
		return false
	}

	if c.ExpiresAt != nil && time.Now().After(*c.ExpiresAt) {
		return false
	}

	return SecureCompare(c.Key, providedKey)
}

// SecureCompare performs constant-time comparison of two strings to prevent timing attacks.
func SecureCompare(a, b string) bool {
	// If lengths differ, still perform comparison to prevent timing attacks
	// but ensure we return false
	if len(a) != len(b) {
		dummy := make([]byte, len(a))
		subtle.ConstantTimeCompare([]byte(a), dummy)

		return false
	}

	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// MaskKey masks a device key for secure logging by showing only the prefix and suffix.
// Designed for 75-character snapmap device keys in format:
// "snapmap_dk_" + 64 hex chars = 75 total chars.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}

	keyLen := len(key)

	if keyLen == deviceKeyLength {
		maskedLen := keyLen - prefixLen - suffixLen

		return key[:prefixLen] + strings.Repeat("*", maskedLen) + key[keyLen-suffixLen:]
	}

	// Any other key length (testing, development, etc.) is masked completely.
	return strings.Repeat("*", keyLen)
}

// GenerateDeviceKey creates a new secure device key for a user.
func GenerateDeviceKey(userID string) (string, error) {
	if userID == "" {
		return "", ErrUserIDEmpty
	}

	randomBytes := make([]byte, randomBytesSize)

	_, err := rand.Read(randomBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	randomHex := hex.EncodeToString(randomBytes)
	deviceKey := "snapmap_dk_" + randomHex // pragma: allowlist secret

	return deviceKey, nil
}

// ParseDeviceKey extracts the device key from various header formats.
func ParseDeviceKey(keyString string) (string, error) {
	if keyString == "" {
		return "", ErrKeyStringEmpty
	}

	keyString = strings.TrimPrefix(keyString, "Bearer ")

	if !strings.HasPrefix(keyString, "snapmap_dk_") {
		return "", ErrInvalidKeyFormat
	}

	// "snapmap_dk_" + 64 hex chars = 75 total
	if len(keyString) != deviceKeyLength {
		return "", ErrInvalidKeyLength
	}

	return keyString, nil
}
