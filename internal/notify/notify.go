// Package notify delivers push notifications about upload outcomes.
// Delivery is best effort: validation results are never rolled back
// because a notification could not be sent.
package notify

import (
	"context"
	"fmt"
	"strconv"

	"github.com/snapmap-io/snapmap/internal/storage"
)

// Notifier sends upload outcome notifications to a device.
type Notifier interface {
	// NotifyAccepted tells a device that an upload passed validation.
	NotifyAccepted(ctx context.Context, deviceToken string, category storage.Category, pointsEarned int64) error

	// NotifyRejected tells a device that an upload was rejected.
	NotifyRejected(ctx context.Context, deviceToken string, reason string) error
}

// Message is one push notification.
type Message struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

// acceptedMessage builds the notification for a validated upload.
func acceptedMessage(deviceToken string, category storage.Category, pointsEarned int64) *Message {
	return &Message{
		Token: deviceToken,
		Title: "Image Accepted!",
		Body:  fmt.Sprintf("You earned %d points! Category: %s", pointsEarned, category.Name()),
		Data: map[string]string{
			"type":          "image_accepted",
			"category":      strconv.Itoa(int(category)),
			"weight":        strconv.FormatFloat(category.Weight(), 'f', -1, 64),
			"points_earned": strconv.FormatInt(pointsEarned, 10),
		},
	}
}

// rejectedMessage builds the notification for a rejected upload.
func rejectedMessage(deviceToken string, reason string) *Message {
	if reason == "" {
		reason = "Image doesn't meet quality standards"
	}

	return &Message{
		Token: deviceToken,
		Title: "Image Rejected",
		Body:  fmt.Sprintf("%s. Please try again with a clearer trash photo.", reason),
		Data: map[string]string{
			"type":   "image_rejected",
			"reason": reason,
		},
	}
}

// NopNotifier discards all notifications. Used when push delivery is not
// configured.
type NopNotifier struct{}

// NewNopNotifier creates a notifier that does nothing.
func NewNopNotifier() *NopNotifier {
	return &NopNotifier{}
}

// NotifyAccepted implements Notifier.
func (n *NopNotifier) NotifyAccepted(context.Context, string, storage.Category, int64) error {
	return nil
}

// NotifyRejected implements Notifier.
func (n *NopNotifier) NotifyRejected(context.Context, string, string) error {
	return nil
}
