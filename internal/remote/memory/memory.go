// Package memory provides an in-memory remote repository. It backs the dev
// backend and doubles as the failure-injecting fake in tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"soldi/internal/core"
	"soldi/internal/remote"
)

type Store struct {
	mu    sync.Mutex
	items map[string]map[string]core.Transaction // collection -> id -> entity

	// failures are consumed one per call, in order. A nil entry means the
	// call succeeds.
	failures []error
	calls    int
}

var _ remote.Repository = (*Store)(nil)

func New() *Store {
	return &Store{items: make(map[string]map[string]core.Transaction)}
}

// FailWith queues errors to be returned by the next calls, one each.
func (s *Store) FailWith(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, errs...)
}

// Calls returns how many repository operations were attempted.
func (s *Store) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Get returns the stored entity, if present.
func (s *Store) Get(collection, id string) (core.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.items[collection][id]
	return tx, ok
}

// Len returns the number of entities in a collection.
func (s *Store) Len(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items[collection])
}

func (s *Store) Create(_ context.Context, collection string, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.nextFailure(); err != nil {
		return err
	}
	if err := tx.Validate(); err != nil {
		return remote.Permanent(err)
	}
	if s.items[collection] == nil {
		s.items[collection] = make(map[string]core.Transaction)
	}
	s.items[collection][tx.ID] = tx
	return nil
}

func (s *Store) Update(_ context.Context, collection string, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.nextFailure(); err != nil {
		return err
	}
	if err := tx.Validate(); err != nil {
		return remote.Permanent(err)
	}
	if _, ok := s.items[collection][tx.ID]; !ok {
		return remote.Permanent(fmt.Errorf("transaction %s not found in %s", tx.ID, collection))
	}
	s.items[collection][tx.ID] = tx
	return nil
}

func (s *Store) Delete(_ context.Context, collection string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.nextFailure(); err != nil {
		return err
	}
	delete(s.items[collection], id)
	return nil
}

// nextFailure must be called with the lock held.
func (s *Store) nextFailure() error {
	s.calls++
	if len(s.failures) == 0 {
		return nil
	}
	err := s.failures[0]
	s.failures = s.failures[1:]
	return err
}
