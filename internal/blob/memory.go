package blob

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// ErrObjectNotFound is returned when a requested object does not exist.
var ErrObjectNotFound = errors.New("object not found")

type memoryObject struct {
	data []byte
	meta ObjectMetadata
}

// InMemoryStore implements Store with a map. Used in tests and for local
// development without an object storage server.
type InMemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	expiry  time.Duration
	now     func() time.Time
}

// NewInMemoryStore creates an empty in-memory object store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		objects: make(map[string]memoryObject),
		expiry:  defaultPresignExpiry,
		now:     time.Now,
	}
}

// PresignUpload issues a grant pointing at a memory:// URL. The object is
// not created until Put is called.
func (s *InMemoryStore) PresignUpload(_ context.Context, req *UploadRequest) (*UploadGrant, error) {
	now := s.now()

	objectName, err := ObjectName(req.UserEmail, now)
	if err != nil {
		return nil, err
	}

	return &UploadGrant{
		ObjectName: objectName,
		URL:        "memory://" + objectName,
		Method:     "PUT",
		Headers: map[string]string{
			"Content-Type":                 req.ContentType,
			"x-amz-meta-" + MetaUserID:     req.UserID,
			"x-amz-meta-" + MetaLatitude:   strconv.FormatFloat(req.Latitude, 'f', -1, 64),
			"x-amz-meta-" + MetaLongitude:  strconv.FormatFloat(req.Longitude, 'f', -1, 64),
			"x-amz-meta-" + MetaUploadedAt: now.UTC().Format(time.RFC3339),
		},
		ExpiresAt: now.Add(s.expiry),
	}, nil
}

// Put stores an object directly, standing in for the client-side upload.
func (s *InMemoryStore) Put(objectName string, data []byte, meta ObjectMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	s.objects[objectName] = memoryObject{data: stored, meta: meta}
}

// Download returns a stored object and its metadata.
func (s *InMemoryStore) Download(_ context.Context, objectName string) ([]byte, *ObjectMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[objectName]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrObjectNotFound, objectName)
	}

	data := make([]byte, len(obj.data))
	copy(data, obj.data)
	meta := obj.meta

	return data, &meta, nil
}

// Delete removes an object. Missing objects are ignored.
func (s *InMemoryStore) Delete(_ context.Context, objectName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, objectName)

	return nil
}

// Exists reports whether an object is stored. Test helper.
func (s *InMemoryStore) Exists(objectName string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.objects[objectName]

	return ok
}
