package storage

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// bcryptCost defines the computational cost for bcrypt hashing.
	// Cost 10 = ~60ms per hash. Can be raised to 12 (~250ms) for hardening.
	bcryptCost  = 10
	bcryptLimit = 72
)

// HashDeviceKey generates a bcrypt hash of the device key for secure storage.
// The device key is never stored in plaintext - only the bcrypt hash is persisted.
//
// Note: Bcrypt has a 72-byte input limit. Longer keys are pre-hashed with
// SHA-256 so hashing stays consistent across key lengths.
func HashDeviceKey(deviceKey string) (string, error) {
	if deviceKey == "" {
		return "", ErrKeyNil
	}

	hash, err := bcrypt.GenerateFromPassword(bcryptInput(deviceKey), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash device key: %w", err)
	}

	return string(hash), nil
}

// CompareDeviceKeyHash performs constant-time comparison of a device key against a bcrypt hash.
// This is the primary method for device key validation - never compare plaintext keys.
//
// Returns true if the device key matches the stored hash, false otherwise.
// Returns false for any error conditions (empty inputs, invalid hash format, etc.)
func CompareDeviceKeyHash(hash, deviceKey string) bool {
	if hash == "" || deviceKey == "" {
		return false
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(deviceKey))

	return err == nil
}

// bcryptInput prepares a key for bcrypt, pre-hashing with SHA-256 when the
// key exceeds bcrypt's 72-byte input limit.
func bcryptInput(key string) []byte {
	if len(key) > bcryptLimit {
		hasher := sha256.New()
		hasher.Write([]byte(key))

		return hasher.Sum(nil)
	}

	return []byte(key)
}
