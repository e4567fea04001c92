package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/snapmap-io/snapmap/internal/config"
)

var (
	// ErrBrokersEmpty is returned when no broker addresses are configured.
	ErrBrokersEmpty = errors.New("broker list cannot be empty")

	// ErrTopicEmpty is returned when no topic is configured.
	ErrTopicEmpty = errors.New("topic cannot be empty")
)

// ConsumerConfig holds broker configuration for the validation worker.
type ConsumerConfig struct {
	Brokers        []string
	Topic          string
	GroupID        string
	MinBytes       int
	MaxBytes       int
	CommitInterval time.Duration
}

// LoadConsumerConfig loads broker configuration from environment variables.
func LoadConsumerConfig() *ConsumerConfig {
	return &ConsumerConfig{
		Brokers:        config.ParseCommaSeparatedList(config.GetEnvStr("SNAPMAP_KAFKA_BROKERS", "localhost:9092")),
		Topic:          config.GetEnvStr("SNAPMAP_KAFKA_TOPIC", "snapmap.upload-events"),
		GroupID:        config.GetEnvStr("SNAPMAP_KAFKA_GROUP_ID", "snapmap-validation-worker"),
		MinBytes:       config.GetEnvInt("SNAPMAP_KAFKA_MIN_BYTES", 1),
		MaxBytes:       config.GetEnvInt("SNAPMAP_KAFKA_MAX_BYTES", 10*1024*1024),
		CommitInterval: 0,
	}
}

// Validate checks the broker configuration.
func (c *ConsumerConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return ErrBrokersEmpty
	}

	if c.Topic == "" {
		return ErrTopicEmpty
	}

	return nil
}

// retryBackoff is the pause between attempts on a notification that
// failed processing.
const retryBackoff = 5 * time.Second

// Consumer reads upload notifications from the broker and hands each one
// to the processor. Offsets are committed only after processing succeeds,
// giving at-least-once delivery; the idempotent ledger absorbs the
// resulting duplicates.
type Consumer struct {
	reader    *kafka.Reader
	processor *Processor
	logger    *slog.Logger
	backoff   time.Duration
}

// NewConsumer creates a consumer from configuration.
func NewConsumer(cfg *ConsumerConfig, processor *Processor) (*Consumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid consumer config: %w", err)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       cfg.MinBytes,
		MaxBytes:       cfg.MaxBytes,
		CommitInterval: cfg.CommitInterval,
	})

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	})).With("component", "upload-consumer")

	return &Consumer{
		reader:    reader,
		processor: processor,
		logger:    logger,
		backoff:   retryBackoff,
	}, nil
}

// Run consumes notifications until the context is canceled.
//
// Malformed envelopes are committed and dropped: redelivering a payload
// that cannot be decoded only loops forever. Processing failures hold
// the consumer on the same message until it succeeds.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				c.logger.Info("consumer stopped")
				return nil
			}

			return fmt.Errorf("failed to fetch message: %w", err)
		}

		if err := c.process(ctx, msg); err != nil {
			c.logger.Info("consumer stopped")
			return nil
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit offset",
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()),
			)
		}
	}
}

// process drives one message to completion, retrying failed attempts
// after a backoff. Moving on and committing a later offset would drop
// the failed notification for the whole consumer group, so the loop
// stays on the message until it succeeds or the context ends.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	for {
		err := c.handle(ctx, msg)
		if err == nil {
			return nil
		}

		c.logger.Error("processing failed, retrying",
			slog.Int64("offset", msg.Offset),
			slog.Duration("backoff", c.backoff),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff):
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	env, err := DecodeEnvelope(msg.Value)
	if err != nil {
		c.logger.Warn("dropping undecodable notification",
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)

		return c.reader.CommitMessages(ctx, msg)
	}

	outcome, err := c.processor.Process(ctx, env)
	if err != nil {
		if errors.Is(err, ErrEnvelopeInvalid) {
			c.logger.Warn("dropping notification with invalid metadata",
				slog.String("object", env.Name),
				slog.String("error", err.Error()),
			)

			return c.reader.CommitMessages(ctx, msg)
		}

		return err
	}

	c.logger.Info("notification processed",
		slog.String("object", env.Name),
		slog.String("outcome", string(outcome)),
	)

	return nil
}

// Close releases the broker connection.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
