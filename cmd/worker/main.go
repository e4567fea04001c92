// Package main provides the Snapmap validation worker.
//
// The worker consumes upload arrival notifications from Kafka, downloads
// each image, classifies it, and settles the outcome in the aggregate
// ledger: accepted uploads become map points and award points, rejected
// uploads leave a tombstone and the image is removed. Outcomes are pushed
// to the uploader's device best-effort.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/snapmap-io/snapmap/internal/blob"
	"github.com/snapmap-io/snapmap/internal/classify"
	"github.com/snapmap-io/snapmap/internal/config"
	"github.com/snapmap-io/snapmap/internal/notify"
	"github.com/snapmap-io/snapmap/internal/pipeline"
	"github.com/snapmap-io/snapmap/internal/storage"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "snapmap-worker"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	}))

	logger.Info("Starting Snapmap validation worker",
		slog.String("service", name),
		slog.String("version", version),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage: ledger over PostgreSQL/PostGIS
	storageConfig := storage.LoadConfig()

	dbConn, err := storage.Connect(ctx, storageConfig)
	if err != nil {
		logger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		_ = dbConn.Close()
	}()

	ledger, err := storage.NewLedger(dbConn, storageConfig.CleanupInterval)
	if err != nil {
		logger.Error("Failed to create ledger", slog.String("error", err.Error()))

		_ = dbConn.Close()
		//nolint:gocritic // Explicit cleanup before os.Exit is intentional (defer won't run)
		os.Exit(1)
	}

	defer func() {
		_ = ledger.Close()
	}()

	logger.Info("Ledger initialized",
		slog.String("database_url", storageConfig.MaskDatabaseURL()),
		slog.Duration("cleanup_interval", storageConfig.CleanupInterval),
	)

	// Object storage: download and delete rights on the upload bucket
	blobConfig := blob.LoadConfig()

	blobs, err := blob.NewS3Store(ctx, blobConfig)
	if err != nil {
		logger.Error("Failed to create object storage client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Object storage initialized",
		slog.String("bucket", blobConfig.Bucket),
		slog.String("region", blobConfig.Region),
	)

	// Classifier: Gemini vision API
	classifierConfig := classify.LoadGeminiConfig()

	classifier, err := classify.NewGeminiClassifier(classifierConfig)
	if err != nil {
		logger.Error("Failed to create classifier", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Classifier initialized", slog.String("model", classifierConfig.Model))

	// Notifier: FCM, degrading to no-op when unconfigured
	var notifier notify.Notifier

	fcmConfig := notify.LoadFCMConfig()
	if fcmConfig.ProjectID == "" {
		logger.Warn("FCM project not configured - push notifications disabled")

		notifier = notify.NewNopNotifier()
	} else {
		notifier, err = notify.NewFCMNotifier(ctx, fcmConfig)
		if err != nil {
			logger.Error("Failed to create FCM notifier", slog.String("error", err.Error()))
			os.Exit(1)
		}

		logger.Info("FCM notifier initialized", slog.String("project_id", fcmConfig.ProjectID))
	}

	processor := pipeline.NewProcessor(ledger, blobs, classifier, notifier, blobConfig.PublicImageBase())

	consumerConfig := pipeline.LoadConsumerConfig()

	consumer, err := pipeline.NewConsumer(consumerConfig, processor)
	if err != nil {
		logger.Error("Failed to create consumer", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		_ = consumer.Close()
	}()

	logger.Info("Consumer initialized",
		slog.Any("brokers", consumerConfig.Brokers),
		slog.String("topic", consumerConfig.Topic),
		slog.String("group_id", consumerConfig.GroupID),
	)

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Consumer stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Snapmap validation worker stopped")
}
