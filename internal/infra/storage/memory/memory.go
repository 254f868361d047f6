package memory

import (
	"context"
	"sync"

	"github.com/neonwatch/neonmon/internal/core/domain"
	"github.com/neonwatch/neonmon/internal/infra/storage"
)

// Repo is an in-memory storage.SignatureRepository for tests and for running
// without an external store (no crash recovery).
type Repo struct {
	mu   sync.RWMutex
	sets map[string]map[string]struct{}
	last map[string]string
}

// New creates an in-memory signature repository.
func New() *Repo {
	return &Repo{
		sets: make(map[string]map[string]struct{}),
		last: make(map[string]string),
	}
}

func (r *Repo) members(key string) map[string]struct{} {
	set, ok := r.sets[key]
	if !ok {
		set = make(map[string]struct{})
		r.sets[key] = set
	}
	return set
}

// Restore loads both signature sets for a network.
func (r *Repo) Restore(
	ctx context.Context,
	chain domain.Chain,
	programID string,
) (storage.SignatureSets, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sets := storage.SignatureSets{
		Processed: make(map[string]struct{}),
		Failed:    make(map[string]struct{}),
	}
	for sig := range r.sets[storage.KeyV1(chain, programID, domain.OutcomeProcessed)] {
		sets.Processed[sig] = struct{}{}
	}
	for sig := range r.sets[storage.KeyV1(chain, programID, domain.OutcomeFailed)] {
		sets.Failed[sig] = struct{}{}
	}
	return sets, nil
}

// Persist records a classified signature.
func (r *Repo) Persist(
	ctx context.Context,
	chain domain.Chain,
	programID, signature string,
	outcome domain.Outcome,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members(storage.KeyV1(chain, programID, outcome))[signature] = struct{}{}
	return nil
}

// LastSignature returns the resume anchor, or "" when absent.
func (r *Repo) LastSignature(
	ctx context.Context,
	chain domain.Chain,
	programID string,
) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last[storage.LastKeyV1(chain, programID)], nil
}

// SetLastSignature advances the resume anchor.
func (r *Repo) SetLastSignature(
	ctx context.Context,
	chain domain.Chain,
	programID, signature string,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last[storage.LastKeyV1(chain, programID)] = signature
	return nil
}

// Close is a no-op.
func (r *Repo) Close() error { return nil }
