package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/snapmap-io/snapmap/internal/blob"
	"github.com/snapmap-io/snapmap/internal/classify"
	"github.com/snapmap-io/snapmap/internal/config"
	"github.com/snapmap-io/snapmap/internal/notify"
	"github.com/snapmap-io/snapmap/internal/storage"
)

const defaultRejectionReason = "Image doesn't meet quality standards"

// ErrProcessFailed is returned when an upload could not be processed and
// should be redelivered.
var ErrProcessFailed = errors.New("failed to process upload")

// Outcome is the terminal state of one processed notification.
type Outcome string

const (
	// OutcomeAccepted means the point was stored and its award granted.
	OutcomeAccepted Outcome = "accepted"

	// OutcomeRejected means the image failed validation and was removed.
	OutcomeRejected Outcome = "rejected"

	// OutcomeDuplicate means this notification was already processed.
	OutcomeDuplicate Outcome = "duplicate"
)

// Ledger is the slice of the aggregate store the processor needs.
type Ledger interface {
	Commit(ctx context.Context, point *storage.Point) (bool, bool, error)
	RecordRejection(ctx context.Context, point *storage.Point) error
	FindByImageURL(ctx context.Context, imageURL string) (*storage.Point, error)
	FCMToken(ctx context.Context, userID string) (*string, error)
}

// Processor validates a single upload end to end.
type Processor struct {
	ledger        Ledger
	blobs         blob.Store
	classifier    classify.Classifier
	notifier      notify.Notifier
	publicBaseURL string
	logger        *slog.Logger
}

// NewProcessor wires a processor from its collaborators. publicBaseURL is
// prepended to bucket and object name to form the stable image URL stored
// with each point.
func NewProcessor(ledger Ledger, blobs blob.Store, classifier classify.Classifier, notifier notify.Notifier, publicBaseURL string) *Processor {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	})).With("component", "upload-processor")

	return &Processor{
		ledger:        ledger,
		blobs:         blobs,
		classifier:    classifier,
		notifier:      notifier,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger,
	}
}

// Process runs one notification through validation.
//
// The sequence is download, classify, then commit or reject. Any error
// before the terminal write returns ErrProcessFailed so the broker
// redelivers the notification; the idempotent ledger makes redelivery
// after a successful write harmless.
func (p *Processor) Process(ctx context.Context, env *Envelope) (Outcome, error) {
	meta, err := env.UploadMetadata()
	if err != nil {
		return "", err
	}

	imageURL := p.imageURL(env.Bucket, env.Name)

	logger := p.logger.With(
		slog.String("object", env.Name),
		slog.String("user_id", meta.UserID),
	)

	// A notification for an already-settled upload needs no download or
	// model call. Both accepted points and rejected tombstones answer here.
	if existing, err := p.ledger.FindByImageURL(ctx, imageURL); err == nil && existing != nil {
		logger.Info("notification already processed", slog.Bool("rejected", existing.Rejected))
		return OutcomeDuplicate, nil
	} else if err != nil && !errors.Is(err, storage.ErrPointNotFound) {
		return "", fmt.Errorf("%w: %w", ErrProcessFailed, err)
	}

	image, _, err := p.blobs.Download(ctx, env.Name)
	if err != nil {
		// A vanished object means an earlier delivery already settled this
		// upload and removed it. Retrying cannot bring it back.
		if errors.Is(err, blob.ErrObjectNotFound) {
			logger.Info("object gone, notification already settled")
			return OutcomeDuplicate, nil
		}

		return "", fmt.Errorf("%w: %w", ErrProcessFailed, err)
	}

	verdict, err := p.classifier.Classify(ctx, image)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrProcessFailed, err)
	}

	point := &storage.Point{
		UserID:     meta.UserID,
		ImageURL:   imageURL,
		Latitude:   meta.Latitude,
		Longitude:  meta.Longitude,
		CapturedAt: meta.UploadedAt,
	}

	if verdict.Rejected {
		return p.reject(ctx, env, point, logger)
	}

	return p.accept(ctx, point, verdict.Category, logger)
}

func (p *Processor) accept(ctx context.Context, point *storage.Point, category storage.Category, logger *slog.Logger) (Outcome, error) {
	point.Category = category
	point.Weight = category.Weight()

	committed, duplicate, err := p.ledger.Commit(ctx, point)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrProcessFailed, err)
	}

	if duplicate {
		logger.Info("duplicate commit, award already granted")
		return OutcomeDuplicate, nil
	}

	if committed {
		logger.Info("upload accepted",
			slog.Int("category", int(category)),
			slog.Float64("weight", point.Weight),
		)
		p.notifyAccepted(ctx, point.UserID, category, logger)
	}

	return OutcomeAccepted, nil
}

func (p *Processor) reject(ctx context.Context, env *Envelope, point *storage.Point, logger *slog.Logger) (Outcome, error) {
	// Tombstone category is never surfaced; the schema requires one.
	point.Category = storage.CategoryLightLitter
	point.Rejected = true

	if err := p.ledger.RecordRejection(ctx, point); err != nil {
		return "", fmt.Errorf("%w: %w", ErrProcessFailed, err)
	}

	// The tombstone is durable, so the image removal and the
	// notification are best effort from here.
	if err := p.blobs.Delete(ctx, env.Name); err != nil {
		logger.Warn("failed to delete rejected image", "error", err)
	}

	logger.Info("upload rejected")
	p.notifyRejected(ctx, point.UserID, logger)

	return OutcomeRejected, nil
}

func (p *Processor) notifyAccepted(ctx context.Context, userID string, category storage.Category, logger *slog.Logger) {
	token, err := p.ledger.FCMToken(ctx, userID)
	if err != nil {
		logger.Warn("failed to load device token", "error", err)
		return
	}

	if token == nil {
		logger.Debug("no device token, skipping notification")
		return
	}

	if err := p.notifier.NotifyAccepted(ctx, *token, category, storage.PointsPerUpload); err != nil {
		logger.Warn("failed to send acceptance notification", "error", err)
	}
}

func (p *Processor) notifyRejected(ctx context.Context, userID string, logger *slog.Logger) {
	token, err := p.ledger.FCMToken(ctx, userID)
	if err != nil {
		logger.Warn("failed to load device token", "error", err)
		return
	}

	if token == nil {
		logger.Debug("no device token, skipping notification")
		return
	}

	if err := p.notifier.NotifyRejected(ctx, *token, defaultRejectionReason); err != nil {
		logger.Warn("failed to send rejection notification", "error", err)
	}
}

// imageURL builds the stable public URL stored with each point.
func (p *Processor) imageURL(bucket, name string) string {
	return fmt.Sprintf("%s/%s/%s", p.publicBaseURL, bucket, name)
}
