package classify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/snapmap-io/snapmap/internal/storage"
)

func TestParseVerdict(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name         string
		raw          string
		wantRejected bool
		wantCategory storage.Category
	}{
		{"trash token", "TRASH", true, 0},
		{"trash lowercase", "trash", true, 0},
		{"trash padded", "  TRASH\n", true, 0},
		{"category 1", "1", false, storage.CategoryLightLitter},
		{"category 4", "4", false, storage.CategorySeverePollution},
		{"category padded", " 3 ", false, storage.CategoryHeavyDebris},
		{"digit inside prose", "The scene looks like a 2 to me.", false, storage.CategoryModerateTrash},
		{"first usable digit wins", "between 3 and 4", false, storage.CategoryHeavyDebris},
		{"out of range digit ignored", "density 7", true, 0},
		{"zero ignored", "0", true, 0},
		{"empty", "", true, 0},
		{"gibberish", "MAYBE?", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseVerdict(tt.raw)

			if got.Rejected != tt.wantRejected {
				t.Errorf("ParseVerdict(%q).Rejected = %v, want %v", tt.raw, got.Rejected, tt.wantRejected)
			}

			if got.Category != tt.wantCategory {
				t.Errorf("ParseVerdict(%q).Category = %v, want %v", tt.raw, got.Category, tt.wantCategory)
			}
		})
	}
}

func TestExtractText(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	body := []byte(`{"candidates":[{"content":{"parts":[{"text":"TRA"},{"text":"SH"}]}}]}`)

	text, err := extractText(body)
	if err != nil {
		t.Fatalf("extractText() error = %v", err)
	}

	if text != "TRASH" {
		t.Errorf("extractText() = %q, want TRASH", text)
	}

	if _, err := extractText([]byte(`{"candidates":[]}`)); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("extractText() error = %v, want ErrEmptyResponse", err)
	}

	if _, err := extractText([]byte(`{"candidates":[{"content":{"parts":[{"text":"  "}]}}]}`)); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("extractText() error = %v, want ErrEmptyResponse", err)
	}

	if _, err := extractText([]byte(`not json`)); !errors.Is(err, ErrClassifyFailed) {
		t.Errorf("extractText() error = %v, want ErrClassifyFailed", err)
	}
}

func TestGeminiClassifier(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	newAnswerServer := func(t *testing.T, answer string) *httptest.Server {
		t.Helper()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("x-goog-api-key") != "test-key" {
				t.Errorf("missing api key header")
			}

			var req geminiRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("failed to decode request: %v", err)
			}

			if len(req.Contents) != 1 || len(req.Contents[0].Parts) != 2 {
				t.Errorf("unexpected request shape: %+v", req)
			} else if req.Contents[0].Parts[1].InlineData == nil {
				t.Error("request missing inline image data")
			}

			_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"` + answer + `"}]}}]}`))
		}))
		t.Cleanup(server.Close)

		return server
	}

	newClassifier := func(t *testing.T, baseURL string) *GeminiClassifier {
		t.Helper()

		classifier, err := NewGeminiClassifier(&GeminiConfig{
			APIKey:  "test-key",
			Model:   "gemini-2.5-flash",
			BaseURL: baseURL,
			Timeout: 5 * time.Second,
		})
		if err != nil {
			t.Fatalf("NewGeminiClassifier() error = %v", err)
		}

		return classifier
	}

	t.Run("accepts with category", func(t *testing.T) {
		server := newAnswerServer(t, "3")
		classifier := newClassifier(t, server.URL)

		verdict, err := classifier.Classify(context.Background(), []byte("jpeg-bytes"))
		if err != nil {
			t.Fatalf("Classify() error = %v", err)
		}

		if verdict.Rejected {
			t.Error("verdict should not be rejected")
		}

		if verdict.Category != storage.CategoryHeavyDebris {
			t.Errorf("Category = %v, want %v", verdict.Category, storage.CategoryHeavyDebris)
		}
	})

	t.Run("rejects trash", func(t *testing.T) {
		server := newAnswerServer(t, "TRASH")
		classifier := newClassifier(t, server.URL)

		verdict, err := classifier.Classify(context.Background(), []byte("jpeg-bytes"))
		if err != nil {
			t.Fatalf("Classify() error = %v", err)
		}

		if !verdict.Rejected {
			t.Error("verdict should be rejected")
		}
	})

	t.Run("surfaces server errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		}))
		t.Cleanup(server.Close)

		classifier := newClassifier(t, server.URL)

		if _, err := classifier.Classify(context.Background(), []byte("jpeg-bytes")); !errors.Is(err, ErrClassifyFailed) {
			t.Errorf("Classify() error = %v, want ErrClassifyFailed", err)
		}
	})

	t.Run("requires api key", func(t *testing.T) {
		if _, err := NewGeminiClassifier(&GeminiConfig{}); !errors.Is(err, ErrAPIKeyEmpty) {
			t.Errorf("NewGeminiClassifier() error = %v, want ErrAPIKeyEmpty", err)
		}
	})
}

func TestClassifyPromptMatchesCategoryNames(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	// The scale described to the model must be the same one shown to
	// users in push notifications.
	for c := storage.CategoryLightLitter; c <= storage.CategorySeverePollution; c++ {
		if !strings.Contains(classifyPrompt, c.Name()) {
			t.Errorf("prompt does not describe category %d as %q", c, c.Name())
		}
	}
}
