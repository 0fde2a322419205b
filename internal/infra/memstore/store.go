// Package memstore is an in-process transactional store for development runs
// and tests. A single mutex serializes all transactions, which trivially makes
// every check-and-decrement linearizable. Repositories register themselves as
// participants; each snapshots its state when a transaction starts and
// restores it if the transaction fails.
package memstore

import (
	"context"
	"sync"
)

// Participant is a repository whose state takes part in transactions.
type Participant interface {
	// Snapshot captures the current state and returns a func restoring it.
	Snapshot() (restore func())
}

type txKey struct{}

// Store coordinates transactions across registered repositories.
type Store struct {
	mu           sync.Mutex
	participants []Participant
}

func New() *Store {
	return &Store{}
}

// Register adds a participant. Call before the store is used concurrently.
func (s *Store) Register(p Participant) {
	s.participants = append(s.participants, p)
}

// WithinTx runs fn holding the store lock. Any error from fn restores every
// participant to its state at the start of the transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	restores := make([]func(), 0, len(s.participants))
	for _, p := range s.participants {
		restores = append(restores, p.Snapshot())
	}

	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		for _, restore := range restores {
			restore()
		}
		return err
	}
	return nil
}

// Lock guards a single repository call. Inside a transaction the lock is
// already held and Lock is a no-op.
func (s *Store) Lock(ctx context.Context) (unlock func()) {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(txKey{}).(*Store)
	return ok && owner == s
}
