// Package localview keeps the in-memory projection of user data the UI reads
// from. Mutations land here optimistically before remote confirmation; the
// router snapshots prior state so a definitive failure can be undone.
package localview

import (
	"fmt"
	"sort"
	"sync"

	"soldi/internal/core"
)

// Snapshot captures the state of a single entity before a mutation, enough to
// restore it exactly.
type Snapshot struct {
	Collection string
	ID         string
	Entity     core.Transaction
	Existed    bool
}

type View struct {
	mu    sync.Mutex
	items map[string]map[string]core.Transaction // collection -> id -> entity
}

func New() *View {
	return &View{items: make(map[string]map[string]core.Transaction)}
}

// Snapshot records the current state of the entity a request targets.
func (v *View) Snapshot(collection, id string) Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	entity, ok := v.items[collection][id]
	return Snapshot{Collection: collection, ID: id, Entity: entity, Existed: ok}
}

// Apply performs the optimistic mutation.
func (v *View) Apply(req core.WriteRequest) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch req.Op {
	case core.OpCreate, core.OpUpdate:
		if v.items[req.Collection] == nil {
			v.items[req.Collection] = make(map[string]core.Transaction)
		}
		v.items[req.Collection][req.Entity.ID] = req.Entity
	case core.OpDelete:
		delete(v.items[req.Collection], req.Entity.ID)
	default:
		return fmt.Errorf("unknown operation: %s", req.Op)
	}
	return nil
}

// Restore undoes a mutation from its snapshot.
func (v *View) Restore(snap Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if snap.Existed {
		if v.items[snap.Collection] == nil {
			v.items[snap.Collection] = make(map[string]core.Transaction)
		}
		v.items[snap.Collection][snap.ID] = snap.Entity
		return
	}
	delete(v.items[snap.Collection], snap.ID)
}

// Get returns the entity, if present.
func (v *View) Get(collection, id string) (core.Transaction, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	tx, ok := v.items[collection][id]
	return tx, ok
}

// List returns a collection's entities sorted by date, newest first.
func (v *View) List(collection string) []core.Transaction {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]core.Transaction, 0, len(v.items[collection]))
	for _, tx := range v.items[collection] {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date.Time)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
