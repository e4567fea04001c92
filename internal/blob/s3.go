package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var (
	// ErrPresignFailed is returned when a presigned URL cannot be issued.
	ErrPresignFailed = errors.New("failed to presign upload")

	// ErrDownloadFailed is returned when an object cannot be fetched.
	ErrDownloadFailed = errors.New("failed to download object")

	// ErrMetadataInvalid is returned when a stored object carries
	// missing or unparseable upload metadata.
	ErrMetadataInvalid = errors.New("invalid object metadata")
)

// S3Store implements Store on top of S3 or any S3-compatible server.
type S3Store struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	presignExpiry time.Duration
	now           func() time.Time
}

// NewS3Store creates an object store client from configuration.
func NewS3Store(ctx context.Context, cfg *Config) (*S3Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid blob config: %w", err)
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        cfg.Bucket,
		presignExpiry: cfg.PresignExpiry,
		now:           time.Now,
	}, nil
}

// PresignUpload issues a presigned PUT for a freshly generated object name.
// The upload metadata is baked into the signature, so the client must send
// the returned headers unmodified or the write is refused.
func (s *S3Store) PresignUpload(ctx context.Context, req *UploadRequest) (*UploadGrant, error) {
	now := s.now()

	objectName, err := ObjectName(req.UserEmail, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPresignFailed, err)
	}

	metadata := map[string]string{
		MetaUserID:     req.UserID,
		MetaLatitude:   strconv.FormatFloat(req.Latitude, 'f', -1, 64),
		MetaLongitude:  strconv.FormatFloat(req.Longitude, 'f', -1, 64),
		MetaUploadedAt: now.UTC().Format(time.RFC3339),
	}

	presigned, err := s.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectName),
		ContentType: aws.String(req.ContentType),
		Metadata:    metadata,
	}, s3.WithPresignExpires(s.presignExpiry))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPresignFailed, err)
	}

	headers := make(map[string]string, len(metadata)+1)
	for name, value := range metadata {
		headers["x-amz-meta-"+name] = value
	}
	headers["Content-Type"] = req.ContentType

	return &UploadGrant{
		ObjectName: objectName,
		URL:        presigned.URL,
		Method:     presigned.Method,
		Headers:    headers,
		ExpiresAt:  now.Add(s.presignExpiry),
	}, nil
}

// Download fetches an object and decodes the upload metadata attached to it.
func (s *S3Store) Download(ctx context.Context, objectName string) ([]byte, *ObjectMetadata, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectName),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, nil, fmt.Errorf("%w: %s", ErrObjectNotFound, objectName)
		}

		return nil, nil, fmt.Errorf("%w: %s: %w", ErrDownloadFailed, objectName, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrDownloadFailed, objectName, err)
	}

	meta, err := ParseObjectMetadata(out.Metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", objectName, err)
	}

	return data, meta, nil
}

// Delete removes an object. S3 DeleteObject is idempotent, so deleting a
// missing object succeeds.
func (s *S3Store) Delete(ctx context.Context, objectName string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectName),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", objectName, err)
	}

	return nil
}

// ParseObjectMetadata decodes the x-amz-meta headers stored with an upload.
func ParseObjectMetadata(metadata map[string]string) (*ObjectMetadata, error) {
	userID, ok := metadata[MetaUserID]
	if !ok || userID == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrMetadataInvalid, MetaUserID)
	}

	lat, err := strconv.ParseFloat(metadata[MetaLatitude], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad %s: %w", ErrMetadataInvalid, MetaLatitude, err)
	}

	lng, err := strconv.ParseFloat(metadata[MetaLongitude], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad %s: %w", ErrMetadataInvalid, MetaLongitude, err)
	}

	uploadedAt, err := time.Parse(time.RFC3339, metadata[MetaUploadedAt])
	if err != nil {
		return nil, fmt.Errorf("%w: bad %s: %w", ErrMetadataInvalid, MetaUploadedAt, err)
	}

	return &ObjectMetadata{
		UserID:     userID,
		Latitude:   lat,
		Longitude:  lng,
		UploadedAt: uploadedAt,
	}, nil
}
