// Package cache holds the key-value stores used for asset bundles and
// table configuration bundles.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Store is the cache collaborator. Values for a key are deterministic, so
// concurrent writers of the same key may overwrite each other freely.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	// Read returns ok=false when the key is absent.
	Read(ctx context.Context, key string) (value []byte, ok bool, err error)
	Save(ctx context.Context, key string, value []byte) error
}

// Key derives a fixed-length store key from its parts.
func Key(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}

// Nop never stores anything; every read is a miss.
type Nop struct{}

func (Nop) Exists(context.Context, string) (bool, error) { return false, nil }

func (Nop) Read(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (Nop) Save(context.Context, string, []byte) error { return nil }
