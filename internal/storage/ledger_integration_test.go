package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"

	"github.com/snapmap-io/snapmap/internal/config"
)

// newTestPoint builds a valid accepted point for the given user.
func newTestPoint(userID string) *Point {
	return &Point{
		UserID:     userID,
		ImageURL:   fmt.Sprintf("uploads/test/%s.jpg", uuid.NewString()),
		Latitude:   52.37,
		Longitude:  4.89,
		Category:   CategoryHeavyDebris,
		CapturedAt: time.Now().UTC().Truncate(time.Second),
	}
}

// TestLedgerIntegration runs all integration tests for the Ledger.
func TestLedgerIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	testDB := config.SetupTestDatabase(ctx, t)

	t.Cleanup(func() {
		_ = testDB.Connection.Close()
		_ = testcontainers.TerminateContainer(testDB.Container)
	})

	conn := NewConnection(testDB.Connection)

	ledger, err := NewLedger(conn, time.Hour)
	if err != nil {
		t.Fatalf("NewLedger() error = %v", err)
	}

	t.Cleanup(func() {
		_ = ledger.Close()
	})

	t.Run("Commit_AwardsCounters", testCommitAwardsCounters(ctx, ledger))
	t.Run("Commit_DuplicateDelivery", testCommitDuplicateDelivery(ctx, ledger))
	t.Run("Commit_UnknownUser", testCommitUnknownUser(ctx, ledger))
	t.Run("Commit_InvalidPoint", testCommitInvalidPoint(ctx, ledger))
	t.Run("Reverse_Symmetry", testReverseSymmetry(ctx, ledger))
	t.Run("Reverse_ClampsAtZero", testReverseClampsAtZero(ctx, ledger, conn))
	t.Run("Reverse_WrongOwner", testReverseWrongOwner(ctx, ledger))
	t.Run("Reverse_MissingPoint", testReverseMissingPoint(ctx, ledger))
	t.Run("RecordRejection_NoCounters", testRecordRejectionNoCounters(ctx, ledger))
	t.Run("Users_FCMTokenLifecycle", testFCMTokenLifecycle(ctx, ledger))
	t.Run("Users_CreateIdempotentByEmail", testCreateUserIdempotent(ctx, ledger))
}

func mustCreateUser(ctx context.Context, t *testing.T, ledger *Ledger) *User {
	t.Helper()

	user, err := ledger.CreateUser(ctx, uuid.NewString()+"@example.com", "Test User", "")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	return user
}

// testCommitAwardsCounters verifies the accept path: one transaction inserts
// the point and awards 250 points plus one upload.
func testCommitAwardsCounters(ctx context.Context, ledger *Ledger) func(*testing.T) {
	return func(t *testing.T) {
		user := mustCreateUser(ctx, t, ledger)
		point := newTestPoint(user.ID)

		committed, duplicate, err := ledger.Commit(ctx, point)
		if err != nil {
			t.Fatalf("Commit() error = %v", err)
		}

		if !committed || duplicate {
			t.Fatalf("Commit() = (%v, %v), want (true, false)", committed, duplicate)
		}

		after, err := ledger.GetUser(ctx, user.ID)
		if err != nil {
			t.Fatalf("GetUser() error = %v", err)
		}

		if after.TotalPoints != PointsPerUpload {
			t.Errorf("TotalPoints = %d, want %d", after.TotalPoints, PointsPerUpload)
		}

		if after.TotalUploads != 1 {
			t.Errorf("TotalUploads = %d, want 1", after.TotalUploads)
		}

		stored, err := ledger.FindByImageURL(ctx, point.ImageURL)
		if err != nil {
			t.Fatalf("FindByImageURL() error = %v", err)
		}

		if stored.Category != CategoryHeavyDebris {
			t.Errorf("Category = %v, want %v", stored.Category, CategoryHeavyDebris)
		}

		if stored.Weight != 0.75 {
			t.Errorf("Weight = %v, want 0.75", stored.Weight)
		}

		if stored.Rejected {
			t.Error("accepted point must not be rejected")
		}
	}
}

// testCommitDuplicateDelivery verifies idempotency: a second delivery of the
// same object name changes nothing and reports duplicate.
func testCommitDuplicateDelivery(ctx context.Context, ledger *Ledger) func(*testing.T) {
	return func(t *testing.T) {
		user := mustCreateUser(ctx, t, ledger)
		point := newTestPoint(user.ID)

		if _, _, err := ledger.Commit(ctx, point); err != nil {
			t.Fatalf("first Commit() error = %v", err)
		}

		committed, duplicate, err := ledger.Commit(ctx, point)
		if err != nil {
			t.Fatalf("second Commit() error = %v", err)
		}

		if committed || !duplicate {
			t.Fatalf("second Commit() = (%v, %v), want (false, true)", committed, duplicate)
		}

		after, err := ledger.GetUser(ctx, user.ID)
		if err != nil {
			t.Fatalf("GetUser() error = %v", err)
		}

		// Exactly one award despite two deliveries
		if after.TotalPoints != PointsPerUpload || after.TotalUploads != 1 {
			t.Errorf("counters = (%d, %d), want (%d, 1)",
				after.TotalPoints, after.TotalUploads, PointsPerUpload)
		}
	}
}

func testCommitUnknownUser(ctx context.Context, ledger *Ledger) func(*testing.T) {
	return func(t *testing.T) {
		point := newTestPoint(uuid.NewString())

		committed, duplicate, err := ledger.Commit(ctx, point)
		if err != nil {
			t.Fatalf("Commit() with unknown user error = %v, want none", err)
		}

		if !committed || duplicate {
			t.Errorf("Commit() = (%v, %v), want (true, false)", committed, duplicate)
		}

		// The point survives without an owner row.
		stored, err := ledger.FindByImageURL(ctx, point.ImageURL)
		if err != nil {
			t.Fatalf("FindByImageURL() error = %v", err)
		}

		if stored.UserID != point.UserID {
			t.Errorf("stored UserID = %q, want %q", stored.UserID, point.UserID)
		}

		// Redelivery is still a duplicate, not a second insert.
		committed, duplicate, err = ledger.Commit(ctx, point)
		if err != nil || committed || !duplicate {
			t.Errorf("redelivered Commit() = (%v, %v, %v), want (false, true, nil)", committed, duplicate, err)
		}
	}
}

func testCommitInvalidPoint(ctx context.Context, ledger *Ledger) func(*testing.T) {
	return func(t *testing.T) {
		user := mustCreateUser(ctx, t, ledger)

		invalid := newTestPoint(user.ID)
		invalid.Category = Category(7)

		if _, _, err := ledger.Commit(ctx, invalid); err == nil {
			t.Error("Commit() with invalid category expected error")
		}

		invalid = newTestPoint(user.ID)
		invalid.Latitude = 123.0

		if _, _, err := ledger.Commit(ctx, invalid); err == nil {
			t.Error("Commit() with invalid latitude expected error")
		}

		if _, _, err := ledger.Commit(ctx, nil); err == nil {
			t.Error("Commit(nil) expected error")
		}
	}
}

// testReverseSymmetry verifies that a reversal exactly undoes a commit.
func testReverseSymmetry(ctx context.Context, ledger *Ledger) func(*testing.T) {
	return func(t *testing.T) {
		user := mustCreateUser(ctx, t, ledger)
		point := newTestPoint(user.ID)

		if _, _, err := ledger.Commit(ctx, point); err != nil {
			t.Fatalf("Commit() error = %v", err)
		}

		stored, err := ledger.FindByImageURL(ctx, point.ImageURL)
		if err != nil {
			t.Fatalf("FindByImageURL() error = %v", err)
		}

		reversed, err := ledger.Reverse(ctx, stored.ID, user.ID)
		if err != nil {
			t.Fatalf("Reverse() error = %v", err)
		}

		if !reversed {
			t.Fatal("Reverse() = false, want true")
		}

		after, err := ledger.GetUser(ctx, user.ID)
		if err != nil {
			t.Fatalf("GetUser() error = %v", err)
		}

		if after.TotalPoints != 0 || after.TotalUploads != 0 {
			t.Errorf("counters after reverse = (%d, %d), want (0, 0)",
				after.TotalPoints, after.TotalUploads)
		}

		if _, err := ledger.FindByImageURL(ctx, point.ImageURL); err == nil {
			t.Error("point should be gone after reverse")
		}
	}
}

// testReverseClampsAtZero verifies counters never go negative even when they
// were zeroed out of band before the reversal.
func testReverseClampsAtZero(ctx context.Context, ledger *Ledger, conn *Connection) func(*testing.T) {
	return func(t *testing.T) {
		user := mustCreateUser(ctx, t, ledger)
		point := newTestPoint(user.ID)

		if _, _, err := ledger.Commit(ctx, point); err != nil {
			t.Fatalf("Commit() error = %v", err)
		}

		// Zero the counters behind the ledger's back
		_, err := conn.ExecContext(ctx,
			`UPDATE users SET total_points = 0, total_uploads = 0 WHERE id = $1`, user.ID)
		if err != nil {
			t.Fatalf("failed to zero counters: %v", err)
		}

		stored, err := ledger.FindByImageURL(ctx, point.ImageURL)
		if err != nil {
			t.Fatalf("FindByImageURL() error = %v", err)
		}

		if _, err := ledger.Reverse(ctx, stored.ID, user.ID); err != nil {
			t.Fatalf("Reverse() error = %v", err)
		}

		after, err := ledger.GetUser(ctx, user.ID)
		if err != nil {
			t.Fatalf("GetUser() error = %v", err)
		}

		if after.TotalPoints != 0 || after.TotalUploads != 0 {
			t.Errorf("counters = (%d, %d), want clamped (0, 0)",
				after.TotalPoints, after.TotalUploads)
		}
	}
}

func testReverseWrongOwner(ctx context.Context, ledger *Ledger) func(*testing.T) {
	return func(t *testing.T) {
		owner := mustCreateUser(ctx, t, ledger)
		intruder := mustCreateUser(ctx, t, ledger)

		point := newTestPoint(owner.ID)
		if _, _, err := ledger.Commit(ctx, point); err != nil {
			t.Fatalf("Commit() error = %v", err)
		}

		stored, err := ledger.FindByImageURL(ctx, point.ImageURL)
		if err != nil {
			t.Fatalf("FindByImageURL() error = %v", err)
		}

		// Another user's point must look like it does not exist
		if _, err := ledger.Reverse(ctx, stored.ID, intruder.ID); err != ErrPointNotFound {
			t.Errorf("Reverse() by non-owner error = %v, want ErrPointNotFound", err)
		}

		// And the point survives
		if _, err := ledger.FindByImageURL(ctx, point.ImageURL); err != nil {
			t.Errorf("point should survive a non-owner reversal: %v", err)
		}
	}
}

func testReverseMissingPoint(ctx context.Context, ledger *Ledger) func(*testing.T) {
	return func(t *testing.T) {
		user := mustCreateUser(ctx, t, ledger)

		if _, err := ledger.Reverse(ctx, uuid.NewString(), user.ID); err != ErrPointNotFound {
			t.Errorf("Reverse() of missing point error = %v, want ErrPointNotFound", err)
		}
	}
}

// testRecordRejectionNoCounters verifies rejection tombstones never award
// points and tolerate duplicate delivery.
func testRecordRejectionNoCounters(ctx context.Context, ledger *Ledger) func(*testing.T) {
	return func(t *testing.T) {
		user := mustCreateUser(ctx, t, ledger)
		point := newTestPoint(user.ID)

		if err := ledger.RecordRejection(ctx, point); err != nil {
			t.Fatalf("RecordRejection() error = %v", err)
		}

		// Duplicate delivery of the rejection outcome
		if err := ledger.RecordRejection(ctx, point); err != nil {
			t.Fatalf("second RecordRejection() error = %v", err)
		}

		after, err := ledger.GetUser(ctx, user.ID)
		if err != nil {
			t.Fatalf("GetUser() error = %v", err)
		}

		if after.TotalPoints != 0 || after.TotalUploads != 0 {
			t.Errorf("counters = (%d, %d), want (0, 0) after rejection",
				after.TotalPoints, after.TotalUploads)
		}

		stored, err := ledger.FindByImageURL(ctx, point.ImageURL)
		if err != nil {
			t.Fatalf("FindByImageURL() error = %v", err)
		}

		if !stored.Rejected {
			t.Error("tombstone should be marked rejected")
		}

		// A later commit of the same object name is a duplicate: the
		// tombstone holds the unique constraint.
		committed, duplicate, err := ledger.Commit(ctx, point)
		if err != nil {
			t.Fatalf("Commit() after rejection error = %v", err)
		}

		if committed || !duplicate {
			t.Errorf("Commit() after rejection = (%v, %v), want (false, true)", committed, duplicate)
		}
	}
}

func testFCMTokenLifecycle(ctx context.Context, ledger *Ledger) func(*testing.T) {
	return func(t *testing.T) {
		user := mustCreateUser(ctx, t, ledger)

		token, err := ledger.FCMToken(ctx, user.ID)
		if err != nil {
			t.Fatalf("FCMToken() error = %v", err)
		}

		if token != nil {
			t.Errorf("fresh user token = %v, want nil", *token)
		}

		deviceToken := "fcm-token-abc123"
		if err := ledger.SetFCMToken(ctx, user.ID, &deviceToken); err != nil {
			t.Fatalf("SetFCMToken() error = %v", err)
		}

		token, err = ledger.FCMToken(ctx, user.ID)
		if err != nil {
			t.Fatalf("FCMToken() error = %v", err)
		}

		if token == nil || *token != deviceToken {
			t.Errorf("token = %v, want %q", token, deviceToken)
		}

		// Unregister
		if err := ledger.SetFCMToken(ctx, user.ID, nil); err != nil {
			t.Fatalf("SetFCMToken(nil) error = %v", err)
		}

		token, err = ledger.FCMToken(ctx, user.ID)
		if err != nil {
			t.Fatalf("FCMToken() error = %v", err)
		}

		if token != nil {
			t.Errorf("token after unregister = %v, want nil", *token)
		}

		if err := ledger.SetFCMToken(ctx, uuid.NewString(), &deviceToken); err != ErrUserNotFound {
			t.Errorf("SetFCMToken() for unknown user error = %v, want ErrUserNotFound", err)
		}
	}
}

func testCreateUserIdempotent(ctx context.Context, ledger *Ledger) func(*testing.T) {
	return func(t *testing.T) {
		email := uuid.NewString() + "@example.com"

		first, err := ledger.CreateUser(ctx, email, "First", "")
		if err != nil {
			t.Fatalf("CreateUser() error = %v", err)
		}

		second, err := ledger.CreateUser(ctx, email, "Second", "")
		if err != nil {
			t.Fatalf("second CreateUser() error = %v", err)
		}

		if first.ID != second.ID {
			t.Errorf("CreateUser() same email produced two users: %s, %s", first.ID, second.ID)
		}

		byEmail, err := ledger.GetUserByEmail(ctx, email)
		if err != nil {
			t.Fatalf("GetUserByEmail() error = %v", err)
		}

		if byEmail.ID != first.ID {
			t.Errorf("GetUserByEmail() = %s, want %s", byEmail.ID, first.ID)
		}
	}
}
