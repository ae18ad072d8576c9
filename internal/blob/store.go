// Package blob provides optional object storage for certificate file payloads.
// When unconfigured, payloads stay inline in the certificates table.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// Store abstracts the object-storage backend for offloaded file payloads.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// ObjectKey derives a stable object key from file content so re-uploads of
// identical bytes share a key. Empty payloads fall back to a random key.
func ObjectKey(data []byte) string {
	if len(data) == 0 {
		return uuid.NewString()
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
