package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/snapmap-io/snapmap/internal/storage"
)

func TestAcceptedMessage(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	msg := acceptedMessage("device-token", storage.CategoryHeavyDebris, 250)

	if msg.Title != "Image Accepted!" {
		t.Errorf("Title = %q", msg.Title)
	}

	if msg.Body != "You earned 250 points! Category: Heavy Debris" {
		t.Errorf("Body = %q", msg.Body)
	}

	want := map[string]string{
		"type":          "image_accepted",
		"category":      "3",
		"weight":        "0.75",
		"points_earned": "250",
	}
	for k, v := range want {
		if msg.Data[k] != v {
			t.Errorf("Data[%q] = %q, want %q", k, msg.Data[k], v)
		}
	}
}

func TestRejectedMessage(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	msg := rejectedMessage("device-token", "")

	if msg.Body != "Image doesn't meet quality standards. Please try again with a clearer trash photo." {
		t.Errorf("Body = %q", msg.Body)
	}

	if msg.Data["type"] != "image_rejected" {
		t.Errorf("Data[type] = %q", msg.Data["type"])
	}

	custom := rejectedMessage("device-token", "Not an outdoor scene")
	if custom.Data["reason"] != "Not an outdoor scene" {
		t.Errorf("Data[reason] = %q", custom.Data["reason"])
	}
}

func newTestNotifier(server *httptest.Server) *FCMNotifier {
	return &FCMNotifier{
		projectID:  "snapmap-test",
		baseURL:    server.URL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		logger:     slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
}

func TestFCMNotifierSend(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("delivers accepted notification", func(t *testing.T) {
		var got fcmRequest

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/projects/snapmap-test/messages:send" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}

			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("failed to decode request: %v", err)
			}

			_, _ = w.Write([]byte(`{"name":"projects/snapmap-test/messages/1"}`))
		}))
		t.Cleanup(server.Close)

		notifier := newTestNotifier(server)

		err := notifier.NotifyAccepted(context.Background(), "device-token", storage.CategoryLightLitter, 250)
		if err != nil {
			t.Fatalf("NotifyAccepted() error = %v", err)
		}

		if got.Message.Token != "device-token" {
			t.Errorf("Token = %q", got.Message.Token)
		}

		if got.Message.Data["category"] != "1" {
			t.Errorf("Data[category] = %q", got.Message.Data["category"])
		}

		if got.Message.Android == nil || got.Message.Android.Priority != "high" {
			t.Error("android priority should be high")
		}
	})

	t.Run("maps unregistered tokens", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"status":"UNREGISTERED","message":"Requested entity was not found."}}`))
		}))
		t.Cleanup(server.Close)

		notifier := newTestNotifier(server)

		err := notifier.NotifyRejected(context.Background(), "stale-token", "")
		if !errors.Is(err, ErrTokenUnregistered) {
			t.Errorf("NotifyRejected() error = %v, want ErrTokenUnregistered", err)
		}
	})

	t.Run("surfaces server errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "internal", http.StatusInternalServerError)
		}))
		t.Cleanup(server.Close)

		notifier := newTestNotifier(server)

		err := notifier.NotifyAccepted(context.Background(), "device-token", storage.CategoryModerateTrash, 250)
		if !errors.Is(err, ErrSendFailed) {
			t.Errorf("NotifyAccepted() error = %v, want ErrSendFailed", err)
		}
	})

	t.Run("rejects empty token", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
			t.Error("no request expected")
		}))
		t.Cleanup(server.Close)

		notifier := newTestNotifier(server)

		if err := notifier.NotifyAccepted(context.Background(), "", storage.CategoryLightLitter, 250); !errors.Is(err, ErrTokenEmpty) {
			t.Errorf("NotifyAccepted() error = %v, want ErrTokenEmpty", err)
		}
	})
}

func TestPrefixToken(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	if got := prefixToken("short"); got != "short" {
		t.Errorf("prefixToken() = %q", got)
	}

	long := "abcdefghijklmnopqrstuvwxyz"
	if got := prefixToken(long); got != "abcdefghijklmnopqrst..." {
		t.Errorf("prefixToken() = %q", got)
	}
}
