package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/snapmap-io/snapmap/internal/config"
	"github.com/snapmap-io/snapmap/internal/storage"
)

const (
	fcmScope   = "https://www.googleapis.com/auth/firebase.messaging"
	fcmBaseURL = "https://fcm.googleapis.com"

	// tokenLogPrefix is how much of a device token appears in logs.
	tokenLogPrefix = 20
)

var (
	// ErrProjectIDEmpty is returned when no Firebase project is configured.
	ErrProjectIDEmpty = errors.New("project id cannot be empty")

	// ErrTokenEmpty is returned when a notification targets no device.
	ErrTokenEmpty = errors.New("device token cannot be empty")

	// ErrSendFailed is returned when FCM refuses a message.
	ErrSendFailed = errors.New("failed to send notification")

	// ErrTokenUnregistered is returned when the device token is stale.
	ErrTokenUnregistered = errors.New("device token is unregistered")
)

// FCMConfig holds Firebase Cloud Messaging configuration.
type FCMConfig struct {
	ProjectID       string
	CredentialsFile string
	Timeout         time.Duration
}

// LoadFCMConfig loads FCM configuration from environment variables.
func LoadFCMConfig() *FCMConfig {
	return &FCMConfig{
		ProjectID:       config.GetEnvStr("SNAPMAP_FCM_PROJECT_ID", ""),
		CredentialsFile: config.GetEnvStr("SNAPMAP_FCM_CREDENTIALS_FILE", ""),
		Timeout:         config.GetEnvDuration("SNAPMAP_FCM_TIMEOUT", 10*time.Second),
	}
}

// FCMNotifier implements Notifier against the FCM HTTP v1 API.
type FCMNotifier struct {
	projectID  string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFCMNotifier creates a notifier authenticated with service account
// credentials. When CredentialsFile is empty, application default
// credentials are used.
func NewFCMNotifier(ctx context.Context, cfg *FCMConfig) (*FCMNotifier, error) {
	if cfg.ProjectID == "" {
		return nil, ErrProjectIDEmpty
	}

	var tokenSource oauth2.TokenSource

	if cfg.CredentialsFile != "" {
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}

		creds, err := google.CredentialsFromJSON(ctx, data, fcmScope)
		if err != nil {
			return nil, fmt.Errorf("failed to parse credentials: %w", err)
		}
		tokenSource = creds.TokenSource
	} else {
		creds, err := google.FindDefaultCredentials(ctx, fcmScope)
		if err != nil {
			return nil, fmt.Errorf("failed to find default credentials: %w", err)
		}
		tokenSource = creds.TokenSource
	}

	httpClient := oauth2.NewClient(ctx, tokenSource)
	httpClient.Timeout = cfg.Timeout

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	})).With("component", "fcm-notifier")

	return &FCMNotifier{
		projectID:  cfg.ProjectID,
		baseURL:    fcmBaseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type fcmRequest struct {
	Message fcmMessage `json:"message"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
	Android      *fcmAndroid       `json:"android,omitempty"`
	APNS         *fcmAPNS          `json:"apns,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmAndroid struct {
	Priority     string `json:"priority"`
	Notification struct {
		Sound string `json:"sound"`
	} `json:"notification"`
}

type fcmAPNS struct {
	Headers map[string]string `json:"headers"`
	Payload struct {
		APS struct {
			Sound string `json:"sound"`
		} `json:"aps"`
	} `json:"payload"`
}

type fcmErrorResponse struct {
	Error struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// NotifyAccepted implements Notifier.
func (n *FCMNotifier) NotifyAccepted(ctx context.Context, deviceToken string, category storage.Category, pointsEarned int64) error {
	return n.send(ctx, acceptedMessage(deviceToken, category, pointsEarned))
}

// NotifyRejected implements Notifier.
func (n *FCMNotifier) NotifyRejected(ctx context.Context, deviceToken string, reason string) error {
	return n.send(ctx, rejectedMessage(deviceToken, reason))
}

func (n *FCMNotifier) send(ctx context.Context, msg *Message) error {
	if msg.Token == "" {
		return ErrTokenEmpty
	}

	payload := fcmRequest{
		Message: fcmMessage{
			Token:        msg.Token,
			Notification: fcmNotification{Title: msg.Title, Body: msg.Body},
			Data:         msg.Data,
			Android:      &fcmAndroid{Priority: "high"},
			APNS:         &fcmAPNS{Headers: map[string]string{"apns-priority": "10"}},
		},
	}
	payload.Message.Android.Notification.Sound = "default"
	payload.Message.APNS.Payload.APS.Sound = "default"

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal message: %w", ErrSendFailed, err)
	}

	endpoint := fmt.Sprintf("%s/v1/projects/%s/messages:send", n.baseURL, n.projectID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %w", ErrSendFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		var fcmErr fcmErrorResponse
		_ = json.Unmarshal(respBody, &fcmErr)

		if resp.StatusCode == http.StatusNotFound || fcmErr.Error.Status == "UNREGISTERED" {
			n.logger.Warn("device token is unregistered", "token_prefix", prefixToken(msg.Token))
			return fmt.Errorf("%w: %s", ErrTokenUnregistered, prefixToken(msg.Token))
		}

		return fmt.Errorf("%w: status %d: %s", ErrSendFailed, resp.StatusCode, respBody)
	}

	n.logger.Info("notification sent",
		"token_prefix", prefixToken(msg.Token),
		"type", msg.Data["type"])

	return nil
}

// prefixToken truncates a device token for logging.
func prefixToken(token string) string {
	if len(token) <= tokenLogPrefix {
		return token
	}

	return token[:tokenLogPrefix] + "..."
}
