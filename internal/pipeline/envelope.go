// Package pipeline consumes upload arrival notifications and drives each
// upload through validation: download, classify, and either commit the
// point with its award or record a rejection.
package pipeline

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/snapmap-io/snapmap/internal/blob"
)

var (
	// ErrEnvelopeInvalid is returned for notifications that cannot be
	// decoded. Invalid envelopes are dropped, not retried.
	ErrEnvelopeInvalid = errors.New("invalid upload notification")
)

// Envelope is a storage notification announcing that an object finished
// uploading. The payload mirrors what object storage emits on bucket
// events: the object name, its bucket, and the metadata attached by the
// presigned upload.
type Envelope struct {
	Name        string            `json:"name"`
	Bucket      string            `json:"bucket"`
	ContentType string            `json:"contentType"`
	Metadata    map[string]string `json:"metadata"`
}

// DecodeEnvelope parses a notification payload. Payloads arrive either as
// raw JSON or base64-encoded JSON, depending on the event transport in
// front of the broker.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrEnvelopeInvalid)
	}

	raw := data
	if data[0] != '{' {
		decoded, err := base64.StdEncoding.DecodeString(string(data))
		if err != nil {
			return nil, fmt.Errorf("%w: payload is neither JSON nor base64: %w", ErrEnvelopeInvalid, err)
		}
		raw = decoded
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnvelopeInvalid, err)
	}

	if env.Name == "" {
		return nil, fmt.Errorf("%w: missing object name", ErrEnvelopeInvalid)
	}

	return &env, nil
}

// EncodeEnvelope serializes a notification for publishing.
func EncodeEnvelope(env *Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification: %w", err)
	}

	return data, nil
}

// UploadMetadata decodes the upload metadata carried by the notification.
func (e *Envelope) UploadMetadata() (*blob.ObjectMetadata, error) {
	meta, err := blob.ParseObjectMetadata(e.Metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnvelopeInvalid, err)
	}

	return meta, nil
}
