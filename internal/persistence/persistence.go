// Package persistence defines the key-value contract the Store is synchronized
// with: collections live under a root key, each child is a JSON document, and
// subscribers receive the full collection on every change.
package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrInvalidPath = errors.New("invalid path")
	ErrClosed      = errors.New("persistence service closed")
)

// Service is implemented by every backend (in-memory, SQLite).
type Service interface {
	// NewKey returns a fresh child key. Keys are unique and never reused.
	NewKey() string
	// Set writes value at path. A JSON null deletes.
	Set(ctx context.Context, path string, value json.RawMessage) error
	// Update applies several writes atomically: all of them or none.
	Update(ctx context.Context, values map[string]json.RawMessage) error
	// Remove deletes path. Removing an absent path is not an error.
	Remove(ctx context.Context, path string) error
	// Subscribe registers fn for changes under root. The current value is
	// delivered right away, then once per committed change, in commit order.
	Subscribe(root string, fn func(Snapshot)) (cancel func(), err error)
}

// Snapshot is the full value of a root at one revision. Children must be
// treated as read-only since it is shared between subscribers.
type Snapshot struct {
	Root     string
	Revision int64
	Children map[string]json.RawMessage
}

// NewKey returns a time-ordered UUIDv7 string.
func NewKey() string {
	return uuid.Must(uuid.NewV7()).String()
}

var null = []byte("null")

// IsNull reports whether value is absent or a JSON null.
func IsNull(value json.RawMessage) bool {
	v := bytes.TrimSpace(value)
	return len(v) == 0 || bytes.Equal(v, null)
}

// Null is the value that deletes whatever is stored at a path.
func Null() json.RawMessage {
	return json.RawMessage(null)
}
