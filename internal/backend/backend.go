// Package backend selects and constructs the remote repository the queue
// drains into, based on configuration.
package backend

import (
	"context"

	"soldi/internal/remote"
)

// Type represents the kind of remote backend
type Type string

const (
	MemoryBackend Type = "memory"
	SheetsBackend Type = "sheets"
	AMQPBackend   Type = "amqp"
)

// String implements fmt.Stringer
func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the backend type is valid
func (t Type) IsValid() bool {
	switch t {
	case MemoryBackend, SheetsBackend, AMQPBackend:
		return true
	default:
		return false
	}
}

// CleanupFunc releases backend resources on shutdown
type CleanupFunc func() error

// Result contains the repository instance and optional cleanup function
type Result struct {
	Repo    remote.Repository
	Cleanup CleanupFunc
}

// Factory creates remote repositories based on configuration
type Factory interface {
	CreateBackend(ctx context.Context) (*Result, error)
}
