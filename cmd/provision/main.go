// Package main provides the Snapmap account provisioning CLI.
//
// Sign-up and OAuth live outside this core, so operators create accounts
// and issue device credentials with this tool. The plaintext device key
// is printed exactly once; only its bcrypt hash is stored.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/snapmap-io/snapmap/internal/storage"
)

const (
	version = "1.0.0-dev"
	name    = "provision"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version information")
		email       = flag.String("email", "", "Account email (required)")
		displayName = flag.String("name", "", "Display name")
		avatarURL   = flag.String("avatar", "", "Avatar image URL")
		deviceName  = flag.String("device", "default", "Device credential label")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	if *email == "" {
		fmt.Fprintln(os.Stderr, "Usage: provision -email <address> [-name <display name>] [-avatar <url>] [-device <label>]")
		os.Exit(2)
	}

	ctx := context.Background()

	storageConfig := storage.LoadConfig()

	conn, err := storage.Connect(ctx, storageConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	ledger, err := storage.NewLedger(conn, storageConfig.CleanupInterval)
	if err != nil {
		log.Fatalf("Failed to create ledger: %v", err)
	}
	defer func() {
		_ = ledger.Close()
	}()

	// Idempotent by email: rerunning for an existing account issues a
	// fresh credential without touching the account row.
	user, err := ledger.CreateUser(ctx, *email, *displayName, *avatarURL)
	if err != nil {
		log.Fatalf("Failed to create user: %v", err)
	}

	credentials, err := storage.NewPersistentCredentialStore(conn)
	if err != nil {
		log.Fatalf("Failed to create credential store: %v", err)
	}

	deviceKey, err := storage.GenerateDeviceKey(user.ID)
	if err != nil {
		log.Fatalf("Failed to generate device key: %v", err)
	}

	credential := &storage.Credential{
		ID:        uuid.NewString(),
		Key:       deviceKey,
		UserID:    user.ID,
		Name:      *deviceName,
		CreatedAt: time.Now().UTC(),
		Active:    true,
	}

	if err := credentials.Add(ctx, credential); err != nil {
		log.Fatalf("Failed to store device credential: %v", err)
	}

	fmt.Printf("User:       %s (%s)\n", user.ID, user.Email)
	fmt.Printf("Credential: %s (%s)\n", credential.ID, credential.Name)
	fmt.Printf("Device key: %s\n", deviceKey)
	fmt.Println("Store this key now - it is not shown again.")
}
