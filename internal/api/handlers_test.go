package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/snapmap-io/snapmap/internal/api/middleware"
	"github.com/snapmap-io/snapmap/internal/blob"
	"github.com/snapmap-io/snapmap/internal/storage"
)

// mockLedger implements the Ledger interface with overridable functions.
type mockLedger struct {
	healthCheckFunc func(ctx context.Context) error
	queryBoundsFunc func(ctx context.Context, bounds storage.Bounds, limit int) ([]storage.Point, error)
	queryOwnerFunc  func(ctx context.Context, userID string) ([]storage.Point, error)
	findPointFunc   func(ctx context.Context, pointID, ownerID string) (*storage.Point, error)
	reverseFunc     func(ctx context.Context, pointID, ownerID string) (bool, error)
	getUserFunc     func(ctx context.Context, userID string) (*storage.User, error)
	setTokenFunc    func(ctx context.Context, userID string, token *string) error
}

func (m *mockLedger) HealthCheck(ctx context.Context) error {
	if m.healthCheckFunc != nil {
		return m.healthCheckFunc(ctx)
	}

	return nil
}

func (m *mockLedger) QueryBounds(ctx context.Context, bounds storage.Bounds, limit int) ([]storage.Point, error) {
	if m.queryBoundsFunc != nil {
		return m.queryBoundsFunc(ctx, bounds, limit)
	}

	return nil, nil
}

func (m *mockLedger) QueryByOwner(ctx context.Context, userID string) ([]storage.Point, error) {
	if m.queryOwnerFunc != nil {
		return m.queryOwnerFunc(ctx, userID)
	}

	return nil, nil
}

func (m *mockLedger) FindPoint(ctx context.Context, pointID, ownerID string) (*storage.Point, error) {
	if m.findPointFunc != nil {
		return m.findPointFunc(ctx, pointID, ownerID)
	}

	return nil, storage.ErrPointNotFound
}

func (m *mockLedger) Reverse(ctx context.Context, pointID, ownerID string) (bool, error) {
	if m.reverseFunc != nil {
		return m.reverseFunc(ctx, pointID, ownerID)
	}

	return false, storage.ErrPointNotFound
}

func (m *mockLedger) GetUser(ctx context.Context, userID string) (*storage.User, error) {
	if m.getUserFunc != nil {
		return m.getUserFunc(ctx, userID)
	}

	return nil, storage.ErrUserNotFound
}

func (m *mockLedger) SetFCMToken(ctx context.Context, userID string, token *string) error {
	if m.setTokenFunc != nil {
		return m.setTokenFunc(ctx, userID, token)
	}

	return nil
}

// newTestServer builds a server with quiet logging and in-memory blobs.
func newTestServer(ledger Ledger) (*Server, *blob.InMemoryStore) {
	blobs := blob.NewInMemoryStore()

	return &Server{
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		config:       LoadServerConfig(),
		ledger:       ledger,
		blobs:        blobs,
		imageBaseURL: "https://img.snapmap.io/snapmap-uploads",
	}, blobs
}

// authedRequest attaches a user context the way the auth middleware would.
func authedRequest(r *http.Request, userID string) *http.Request {
	ctx := middleware.SetUserContext(r.Context(), middleware.UserContext{
		UserID:       userID,
		CredentialID: "cred-1",
		DeviceName:   "Test Device",
		AuthTime:     time.Now(),
	})

	return r.WithContext(ctx)
}

func testUser() *storage.User {
	return &storage.User{
		ID:           "user-1",
		Email:        "jane@example.com",
		DisplayName:  "Jane",
		AvatarURL:    "https://img.example.com/jane.png",
		TotalPoints:  500,
		TotalUploads: 2,
		CreatedAt:    time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
}

func testPoint(id string) storage.Point {
	return storage.Point{
		ID:         id,
		UserID:     "user-1",
		ImageURL:   "https://img.snapmap.io/snapmap-uploads/uploads/jane_example_com/20260314_092653_a1b2c3d4.jpg",
		Latitude:   52.37,
		Longitude:  4.89,
		Category:   storage.CategoryHeavyDebris,
		Weight:     0.75,
		CapturedAt: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		CreatedAt:  time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
}

func TestHandleIssueUpload(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("issues grant for valid request", func(t *testing.T) {
		ledger := &mockLedger{
			getUserFunc: func(_ context.Context, userID string) (*storage.User, error) {
				if userID != "user-1" {
					t.Errorf("GetUser called with %q, want user-1", userID)
				}

				return testUser(), nil
			},
		}
		server, _ := newTestServer(ledger)

		body := bytes.NewBufferString(`{"latitude": 52.37, "longitude": 4.89, "contentType": "image/jpeg"}`)
		r := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
		r.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		server.handleIssueUpload(w, authedRequest(r, "user-1"))

		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201, body: %s", w.Code, w.Body.String())
		}

		var grant blob.UploadGrant
		if err := json.Unmarshal(w.Body.Bytes(), &grant); err != nil {
			t.Fatalf("failed to decode grant: %v", err)
		}

		if grant.Method != http.MethodPut {
			t.Errorf("grant method = %q, want PUT", grant.Method)
		}

		if !strings.HasPrefix(grant.ObjectName, "uploads/jane_example_com/") {
			t.Errorf("object name = %q, want email-partitioned key", grant.ObjectName)
		}

		if grant.ExpiresAt.IsZero() {
			t.Error("grant should carry an expiry")
		}

		if grant.Headers["Content-Type"] != "image/jpeg" {
			t.Errorf("grant Content-Type header = %q, want image/jpeg", grant.Headers["Content-Type"])
		}
	})

	t.Run("rejects non-image content type", func(t *testing.T) {
		ledger := &mockLedger{
			getUserFunc: func(_ context.Context, _ string) (*storage.User, error) {
				return testUser(), nil
			},
		}
		server, _ := newTestServer(ledger)

		body := bytes.NewBufferString(`{"latitude": 52.37, "longitude": 4.89, "contentType": "application/pdf"}`)
		r := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
		r.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		server.handleIssueUpload(w, authedRequest(r, "user-1"))

		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("rejects invalid coordinates", func(t *testing.T) {
		ledger := &mockLedger{
			getUserFunc: func(_ context.Context, _ string) (*storage.User, error) {
				return testUser(), nil
			},
		}
		server, _ := newTestServer(ledger)

		body := bytes.NewBufferString(`{"latitude": 95.0, "longitude": 4.89, "contentType": "image/jpeg"}`)
		r := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
		r.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		server.handleIssueUpload(w, authedRequest(r, "user-1"))

		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}

		if ct := w.Header().Get("Content-Type"); ct != contentTypeProblemJSON {
			t.Errorf("Content-Type = %q, want %q", ct, contentTypeProblemJSON)
		}
	})

	t.Run("rejects non-JSON content type", func(t *testing.T) {
		server, _ := newTestServer(&mockLedger{})

		r := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", strings.NewReader("lat=52"))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()

		server.handleIssueUpload(w, authedRequest(r, "user-1"))

		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("unknown account is not found", func(t *testing.T) {
		server, _ := newTestServer(&mockLedger{})

		body := bytes.NewBufferString(`{"latitude": 52.37, "longitude": 4.89, "contentType": "image/jpeg"}`)
		r := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
		r.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		server.handleIssueUpload(w, authedRequest(r, "ghost"))

		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})
}

func TestHandleDeleteUpload(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("reverses point and deletes image", func(t *testing.T) {
		point := testPoint("point-1")
		reversed := false

		ledger := &mockLedger{
			findPointFunc: func(_ context.Context, pointID, ownerID string) (*storage.Point, error) {
				if pointID != "point-1" || ownerID != "user-1" {
					return nil, storage.ErrPointNotFound
				}

				return &point, nil
			},
			reverseFunc: func(_ context.Context, _, _ string) (bool, error) {
				reversed = true

				return true, nil
			},
		}
		server, blobs := newTestServer(ledger)

		objectName := "uploads/jane_example_com/20260314_092653_a1b2c3d4.jpg"
		blobs.Put(objectName, []byte("jpeg"), blob.ObjectMetadata{UserID: "user-1"})

		r := httptest.NewRequest(http.MethodDelete, "/api/v1/uploads/point-1", nil)
		r.SetPathValue("id", "point-1")
		w := httptest.NewRecorder()

		server.handleDeleteUpload(w, authedRequest(r, "user-1"))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
		}

		if !reversed {
			t.Error("ledger reversal should run before object deletion")
		}

		if blobs.Exists(objectName) {
			t.Error("image object should be deleted after reversal")
		}

		var resp DeleteUploadResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if !resp.Success || resp.PointID != "point-1" {
			t.Errorf("response = %+v, want success for point-1", resp)
		}
	})

	t.Run("missing point is not found", func(t *testing.T) {
		server, _ := newTestServer(&mockLedger{})

		r := httptest.NewRequest(http.MethodDelete, "/api/v1/uploads/ghost", nil)
		r.SetPathValue("id", "ghost")
		w := httptest.NewRecorder()

		server.handleDeleteUpload(w, authedRequest(r, "user-1"))

		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})

	t.Run("another user's point is not found", func(t *testing.T) {
		point := testPoint("point-1")

		ledger := &mockLedger{
			findPointFunc: func(_ context.Context, pointID, ownerID string) (*storage.Point, error) {
				if ownerID != "user-1" {
					return nil, storage.ErrPointNotFound
				}

				return &point, nil
			},
		}
		server, _ := newTestServer(ledger)

		r := httptest.NewRequest(http.MethodDelete, "/api/v1/uploads/point-1", nil)
		r.SetPathValue("id", "point-1")
		w := httptest.NewRecorder()

		server.handleDeleteUpload(w, authedRequest(r, "intruder"))

		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404 for foreign point", w.Code)
		}
	})

	t.Run("blob failure does not fail the request", func(t *testing.T) {
		point := testPoint("point-1")
		point.ImageURL = "https://elsewhere.example.com/not-ours.jpg"

		ledger := &mockLedger{
			findPointFunc: func(_ context.Context, _, _ string) (*storage.Point, error) {
				return &point, nil
			},
			reverseFunc: func(_ context.Context, _, _ string) (bool, error) {
				return true, nil
			},
		}
		server, _ := newTestServer(ledger)

		r := httptest.NewRequest(http.MethodDelete, "/api/v1/uploads/point-1", nil)
		r.SetPathValue("id", "point-1")
		w := httptest.NewRecorder()

		server.handleDeleteUpload(w, authedRequest(r, "user-1"))

		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200 even when the object cannot be mapped", w.Code)
		}
	})
}

func TestHandleQueryPoints(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("returns points in box", func(t *testing.T) {
		var gotBounds storage.Bounds

		ledger := &mockLedger{
			queryBoundsFunc: func(_ context.Context, bounds storage.Bounds, _ int) ([]storage.Point, error) {
				gotBounds = bounds

				return []storage.Point{testPoint("point-1"), testPoint("point-2")}, nil
			},
		}
		server, _ := newTestServer(ledger)

		r := httptest.NewRequest(http.MethodGet, "/api/v1/points?lat1=52.0&lng1=4.0&lat2=53.0&lng2=5.0", nil)
		w := httptest.NewRecorder()

		server.handleQueryPoints(w, r)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
		}

		want := storage.Bounds{MinLat: 52.0, MinLng: 4.0, MaxLat: 53.0, MaxLng: 5.0}
		if gotBounds != want {
			t.Errorf("bounds = %+v, want %+v", gotBounds, want)
		}

		var resp PointListResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if resp.Total != 2 || len(resp.Points) != 2 {
			t.Errorf("response = %+v, want 2 points", resp)
		}

		if resp.Points[0].CategoryName != "Heavy Debris" {
			t.Errorf("categoryName = %q, want Heavy Debris", resp.Points[0].CategoryName)
		}
	})

	t.Run("missing parameter is a client error", func(t *testing.T) {
		server, _ := newTestServer(&mockLedger{})

		r := httptest.NewRequest(http.MethodGet, "/api/v1/points?lat1=52.0&lng1=4.0&lat2=53.0", nil)
		w := httptest.NewRecorder()

		server.handleQueryPoints(w, r)

		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("inverted box is a client error", func(t *testing.T) {
		queried := false
		ledger := &mockLedger{
			queryBoundsFunc: func(_ context.Context, _ storage.Bounds, _ int) ([]storage.Point, error) {
				queried = true

				return nil, nil
			},
		}
		server, _ := newTestServer(ledger)

		r := httptest.NewRequest(http.MethodGet, "/api/v1/points?lat1=53.0&lng1=4.0&lat2=52.0&lng2=5.0", nil)
		w := httptest.NewRecorder()

		server.handleQueryPoints(w, r)

		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}

		if queried {
			t.Error("invalid box should fail before any query executes")
		}
	})

	t.Run("degenerate box is a client error", func(t *testing.T) {
		server, _ := newTestServer(&mockLedger{})

		r := httptest.NewRequest(http.MethodGet, "/api/v1/points?lat1=52.0&lng1=4.0&lat2=52.0&lng2=5.0", nil)
		w := httptest.NewRecorder()

		server.handleQueryPoints(w, r)

		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("query failure is a server error", func(t *testing.T) {
		ledger := &mockLedger{
			queryBoundsFunc: func(_ context.Context, _ storage.Bounds, _ int) ([]storage.Point, error) {
				return nil, errors.New("connection refused")
			},
		}
		server, _ := newTestServer(ledger)

		r := httptest.NewRequest(http.MethodGet, "/api/v1/points?lat1=52.0&lng1=4.0&lat2=53.0&lng2=5.0", nil)
		w := httptest.NewRecorder()

		server.handleQueryPoints(w, r)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", w.Code)
		}
	})
}

func TestHandleMyUploads(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rejected := testPoint("point-2")
	rejected.Rejected = true

	ledger := &mockLedger{
		queryOwnerFunc: func(_ context.Context, userID string) ([]storage.Point, error) {
			if userID != "user-1" {
				t.Errorf("QueryByOwner called with %q, want user-1", userID)
			}

			return []storage.Point{testPoint("point-1"), rejected}, nil
		},
	}
	server, _ := newTestServer(ledger)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/points/my-uploads", nil)
	w := httptest.NewRecorder()

	server.handleMyUploads(w, authedRequest(r, "user-1"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}

	var resp PointListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Total != 2 {
		t.Fatalf("total = %d, want 2", resp.Total)
	}

	if !resp.Points[1].Rejected {
		t.Error("owner view should include rejected uploads")
	}
}

func TestHandleGetMe(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("returns account with counters", func(t *testing.T) {
		ledger := &mockLedger{
			getUserFunc: func(_ context.Context, _ string) (*storage.User, error) {
				return testUser(), nil
			},
		}
		server, _ := newTestServer(ledger)

		r := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
		w := httptest.NewRecorder()

		server.handleGetMe(w, authedRequest(r, "user-1"))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}

		var resp UserResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if resp.TotalPoints != 500 || resp.TotalUploads != 2 {
			t.Errorf("counters = %d/%d, want 500/2", resp.TotalPoints, resp.TotalUploads)
		}

		if resp.Email != "jane@example.com" {
			t.Errorf("email = %q, want jane@example.com", resp.Email)
		}

		if resp.AvatarURL != "https://img.example.com/jane.png" {
			t.Errorf("avatar = %q", resp.AvatarURL)
		}
	})

	t.Run("missing account is not found", func(t *testing.T) {
		server, _ := newTestServer(&mockLedger{})

		r := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
		w := httptest.NewRecorder()

		server.handleGetMe(w, authedRequest(r, "ghost"))

		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})
}

func TestHandleTokenRegistration(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("registers token", func(t *testing.T) {
		var stored *string

		ledger := &mockLedger{
			setTokenFunc: func(_ context.Context, userID string, token *string) error {
				if userID != "user-1" {
					t.Errorf("SetFCMToken called with %q, want user-1", userID)
				}

				stored = token

				return nil
			},
		}
		server, _ := newTestServer(ledger)

		body := bytes.NewBufferString(`{"fcmToken": "device-token-123"}`)
		r := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/register-token", body)
		r.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		server.handleRegisterToken(w, authedRequest(r, "user-1"))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
		}

		if stored == nil || *stored != "device-token-123" {
			t.Errorf("stored token = %v, want device-token-123", stored)
		}
	})

	t.Run("empty token is a client error", func(t *testing.T) {
		server, _ := newTestServer(&mockLedger{})

		body := bytes.NewBufferString(`{"fcmToken": ""}`)
		r := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/register-token", body)
		r.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		server.handleRegisterToken(w, authedRequest(r, "user-1"))

		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("unregister clears token", func(t *testing.T) {
		cleared := false

		ledger := &mockLedger{
			setTokenFunc: func(_ context.Context, _ string, token *string) error {
				if token != nil {
					t.Errorf("SetFCMToken called with %v, want nil", *token)
				}

				cleared = true

				return nil
			},
		}
		server, _ := newTestServer(ledger)

		r := httptest.NewRequest(http.MethodDelete, "/api/v1/notifications/unregister-token", nil)
		w := httptest.NewRecorder()

		server.handleUnregisterToken(w, authedRequest(r, "user-1"))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}

		if !cleared {
			t.Error("unregister should clear the stored token")
		}
	})

	t.Run("unknown account is not found", func(t *testing.T) {
		ledger := &mockLedger{
			setTokenFunc: func(_ context.Context, _ string, _ *string) error {
				return storage.ErrUserNotFound
			},
		}
		server, _ := newTestServer(ledger)

		body := bytes.NewBufferString(`{"fcmToken": "device-token-123"}`)
		r := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/register-token", body)
		r.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		server.handleRegisterToken(w, authedRequest(r, "ghost"))

		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})
}

func TestHandleHealthEndpoints(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("ping", func(t *testing.T) {
		server, _ := newTestServer(&mockLedger{})

		r := httptest.NewRequest(http.MethodGet, "/ping", nil)
		w := httptest.NewRecorder()

		server.handlePing(w, r)

		if w.Code != http.StatusOK || w.Body.String() != "pong" {
			t.Errorf("ping = %d %q, want 200 pong", w.Code, w.Body.String())
		}
	})

	t.Run("ready when storage healthy", func(t *testing.T) {
		server, _ := newTestServer(&mockLedger{})

		r := httptest.NewRequest(http.MethodGet, "/ready", nil)
		w := httptest.NewRecorder()

		server.handleReady(w, r)

		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})

	t.Run("ready reports unhealthy storage", func(t *testing.T) {
		ledger := &mockLedger{
			healthCheckFunc: func(_ context.Context) error {
				return errors.New("connection refused")
			},
		}
		server, _ := newTestServer(ledger)

		r := httptest.NewRequest(http.MethodGet, "/ready", nil)
		w := httptest.NewRecorder()

		server.handleReady(w, r)

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", w.Code)
		}
	})

	t.Run("health reports service info", func(t *testing.T) {
		server, _ := newTestServer(&mockLedger{})

		r := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()

		server.handleHealth(w, r)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}

		var health HealthStatus
		if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
			t.Fatalf("failed to decode health: %v", err)
		}

		if health.ServiceName != "snapmap" || health.Status != "healthy" {
			t.Errorf("health = %+v, want healthy snapmap", health)
		}
	})
}
