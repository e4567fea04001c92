// Package blob provides object storage access for upload images: presigned
// write credentials for mobile clients and server-side download/delete for
// the validation worker.
package blob

import (
	"errors"
	"time"

	"github.com/snapmap-io/snapmap/internal/config"
)

// defaultPresignExpiry bounds how long an issued upload URL stays usable.
const defaultPresignExpiry = 15 * time.Minute

var (
	// ErrBucketEmpty is returned when no bucket name is configured.
	ErrBucketEmpty = errors.New("bucket name cannot be empty")

	// ErrRegionEmpty is returned when no region is configured.
	ErrRegionEmpty = errors.New("region cannot be empty")
)

// Config holds object storage configuration.
//
// Endpoint is optional: when set, the client talks to an S3-compatible
// server (MinIO in development) instead of AWS.
type Config struct {
	Region        string
	Bucket        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
	PresignExpiry time.Duration
}

// LoadConfig loads object storage configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		Region:        config.GetEnvStr("SNAPMAP_S3_REGION", "eu-west-1"),
		Bucket:        config.GetEnvStr("SNAPMAP_S3_BUCKET", "snapmap-uploads"),
		Endpoint:      config.GetEnvStr("SNAPMAP_S3_ENDPOINT", ""),
		AccessKey:     config.GetEnvStr("SNAPMAP_S3_ACCESS_KEY", ""),
		SecretKey:     config.GetEnvStr("SNAPMAP_S3_SECRET_KEY", ""),
		PublicBaseURL: config.GetEnvStr("SNAPMAP_PUBLIC_IMAGE_BASE_URL", ""),
		PresignExpiry: config.GetEnvDuration("SNAPMAP_S3_PRESIGN_EXPIRY", defaultPresignExpiry),
	}
}

// PublicImageBase returns the base URL under which uploaded objects are
// publicly readable. Image URLs are composed as base/bucket/object-name.
// Falls back to the S3-compatible endpoint, then to the AWS regional host.
func (c *Config) PublicImageBase() string {
	if c.PublicBaseURL != "" {
		return c.PublicBaseURL
	}

	if c.Endpoint != "" {
		return c.Endpoint
	}

	return "https://s3." + c.Region + ".amazonaws.com"
}

// Validate checks the object storage configuration.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return ErrBucketEmpty
	}

	if c.Region == "" {
		return ErrRegionEmpty
	}

	if c.PresignExpiry <= 0 {
		c.PresignExpiry = defaultPresignExpiry
	}

	return nil
}
