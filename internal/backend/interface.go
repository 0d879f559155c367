// Package backend builds the persistence service selected by configuration.
package backend

import (
	"context"

	"finanzas/internal/persistence"
)

// Backend is a persistence service that can also be read once without a
// subscription, which the CLI and the worker need.
type Backend interface {
	persistence.Service
	Load(ctx context.Context, root string) (persistence.Snapshot, error)
}

// CleanupFunc releases the resources held by a backend.
type CleanupFunc func() error

// BackendResult contains the backend instance and its cleanup function.
type BackendResult struct {
	Backend Backend
	Cleanup CleanupFunc
	// Publishing reports whether committed writes are announced on AMQP.
	Publishing bool
}

// Factory creates backends based on configuration.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Change notifications, optional
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
