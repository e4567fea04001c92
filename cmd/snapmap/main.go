// Package main provides the Snapmap API server.
//
// The server issues presigned upload grants, serves the map and owner read
// paths, and manages user accounts and notification tokens. Uploaded images
// are validated asynchronously by the worker service.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/snapmap-io/snapmap/internal/api"
	"github.com/snapmap-io/snapmap/internal/api/middleware"
	"github.com/snapmap-io/snapmap/internal/blob"
	"github.com/snapmap-io/snapmap/internal/config"
	"github.com/snapmap-io/snapmap/internal/storage"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "snapmap"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("Starting Snapmap API service",
		slog.String("service", name),
		slog.String("version", version),
	)

	logger.Info("Loaded server configuration",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.Duration("read_timeout", serverConfig.ReadTimeout),
		slog.Duration("write_timeout", serverConfig.WriteTimeout),
		slog.Duration("shutdown_timeout", serverConfig.ShutdownTimeout),
		slog.String("log_level", serverConfig.LogLevel.String()),
	)

	// Load rate limiter configuration
	middlewareConfig := middleware.LoadConfig()

	// Create rate limiter instance (graceful shutdown handled by server.shutdown())
	rateLimiter := middleware.NewInMemoryRateLimiter(middlewareConfig)

	logger.Info("Rate limiter initialized",
		slog.Int("global_rps", middlewareConfig.GlobalRPS),
		slog.Int("global_burst", middlewareConfig.GlobalBurst),
		slog.Int("user_rps", middlewareConfig.UserRPS),
		slog.Int("user_burst", middlewareConfig.UserBurst),
		slog.Int("unauth_rps", middlewareConfig.UnAuthRPS),
		slog.Int("unauth_burst", middlewareConfig.UnAuthBurst),
	)

	// Load storage configuration
	storageConfig := storage.LoadConfig()

	dbConn, err := storage.Connect(context.Background(), storageConfig)
	if err != nil {
		logger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		_ = dbConn.Close() // Ensure connection closes on normal shutdown
	}()

	var credentials storage.CredentialStore

	authEnabled := config.GetEnvBool("SNAPMAP_AUTH_ENABLED", true)
	if authEnabled {
		credentials, err = storage.NewPersistentCredentialStore(dbConn)
		if err != nil {
			logger.Error("Failed to connect to credential store", slog.String("error", err.Error()))

			_ = dbConn.Close()
			//nolint:gocritic // Explicit cleanup before os.Exit is intentional (defer won't run)
			os.Exit(1)
		}

		logger.Info("Device authentication enabled",
			slog.String("database_url", storageConfig.MaskDatabaseURL()),
		)
	} else {
		logger.Warn("Device authentication disabled",
			slog.String("security", "Only use in trusted networks (localhost, VPN, internal)"),
			slog.String("note", "Set SNAPMAP_AUTH_ENABLED=true to enable device key authentication"),
		)
	}

	ledger, err := storage.NewLedger(dbConn, storageConfig.CleanupInterval)
	if err != nil {
		logger.Error("Failed to create ledger", slog.String("error", err.Error()))
		// Close database connection before exit (defer won't run with os.Exit)
		_ = dbConn.Close()
		os.Exit(1)
	}

	logger.Info("Ledger initialized",
		slog.String("database_url", storageConfig.MaskDatabaseURL()),
		slog.Duration("cleanup_interval", storageConfig.CleanupInterval),
		slog.Int("database_max_open_conns", storageConfig.MaxOpenConns),
		slog.Int("database_max_idle_conns", storageConfig.MaxIdleConns),
		slog.Duration("database_conn_max_lifetime", storageConfig.ConnMaxLifetime),
		slog.Duration("database_conn_max_idle_time", storageConfig.ConnMaxIdleTime),
	)

	blobConfig := blob.LoadConfig()
	if err := blobConfig.Validate(); err != nil {
		logger.Error("Invalid object storage configuration", slog.String("error", err.Error()))

		_ = ledger.Close()
		_ = dbConn.Close()
		os.Exit(1)
	}

	blobs, err := blob.NewS3Store(context.Background(), blobConfig)
	if err != nil {
		logger.Error("Failed to create object storage client", slog.String("error", err.Error()))

		_ = ledger.Close()
		_ = dbConn.Close()
		os.Exit(1)
	}

	logger.Info("Object storage initialized",
		slog.String("bucket", blobConfig.Bucket),
		slog.String("region", blobConfig.Region),
		slog.Duration("presign_expiry", blobConfig.PresignExpiry),
	)

	imageBaseURL := blobConfig.PublicImageBase() + "/" + blobConfig.Bucket

	server := api.NewServer(serverConfig, ledger, credentials, blobs, imageBaseURL, rateLimiter)

	if err := server.Start(); err != nil {
		logger.Error("Server failed to start",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger.Info("Snapmap API service stopped")
}
