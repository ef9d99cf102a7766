// Package remote defines the port to the remote repository the queue drains
// into, plus the error taxonomy the retry loop depends on.
package remote

import (
	"context"
	"fmt"

	"soldi/internal/core"
)

// Repository is the outbound port to the backing store. Implementations must
// return errors classifiable with IsTransient / IsPermanent; unclassified
// errors are treated as transient by callers.
type Repository interface {
	Create(ctx context.Context, collection string, tx core.Transaction) error
	Update(ctx context.Context, collection string, tx core.Transaction) error
	Delete(ctx context.Context, collection string, id string) error
}

// Apply dispatches a write request to the matching repository operation.
func Apply(ctx context.Context, repo Repository, req core.WriteRequest) error {
	switch req.Op {
	case core.OpCreate:
		return repo.Create(ctx, req.Collection, req.Entity)
	case core.OpUpdate:
		return repo.Update(ctx, req.Collection, req.Entity)
	case core.OpDelete:
		return repo.Delete(ctx, req.Collection, req.Entity.ID)
	default:
		return Permanent(fmt.Errorf("unknown operation: %s", req.Op))
	}
}
