// Package id generates provider tracking handles for adapters that queue
// work locally instead of receiving a handle from the provider.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Generate creates a new tracking handle scoped to a provider.
// Format: <prefix>_<timestamp>_<random>
// Example: splice_1701432000_a1b2c3d4
func Generate(prefix string) string {
	timestamp := time.Now().Unix()
	random := make([]byte, 4)
	if _, err := rand.Read(random); err != nil {
		// Fallback to timestamp only if crypto/rand fails
		return fmt.Sprintf("%s_%d", prefix, timestamp)
	}
	return fmt.Sprintf("%s_%d_%s", prefix, timestamp, hex.EncodeToString(random))
}

// HasPrefix reports whether handle was generated for the given provider.
func HasPrefix(handle, prefix string) bool {
	return len(handle) > len(prefix)+1 && handle[:len(prefix)+1] == prefix+"_"
}
