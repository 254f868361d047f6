// Package checkpoint owns the restart-safe de-duplication state for one
// network: the processed and failed signature sets plus the resume anchor.
// Contract: restore once, persist incrementally, tolerate an unavailable
// store by degrading to in-memory-only for the round.
package checkpoint

import (
	"context"
	"fmt"

	"github.com/neonwatch/neonmon/internal/core/domain"
	"github.com/neonwatch/neonmon/internal/infra/storage"
)

// Counts is the counter state derived from the restored sets.
type Counts struct {
	Total  int
	Failed int
}

// Checkpoint holds the in-memory signature sets for one (chain, program_id).
// It is owned by exactly one reconciler; no internal locking is needed.
type Checkpoint struct {
	chain     domain.Chain
	programID string
	repo      storage.SignatureRepository

	restored  bool
	processed map[string]struct{}
	failed    map[string]struct{}
	last      string

	// pending holds classified signatures the store has not accepted yet.
	// The persisted anchor never advances while pending is non-empty, so a
	// restart replays and re-classifies exactly these signatures.
	pending    map[string]domain.Outcome
	storedLast string
}

// New creates an empty, not-yet-restored checkpoint.
func New(repo storage.SignatureRepository, chain domain.Chain, programID string) *Checkpoint {
	return &Checkpoint{
		chain:     chain,
		programID: programID,
		repo:      repo,
		processed: make(map[string]struct{}),
		failed:    make(map[string]struct{}),
		pending:   make(map[string]domain.Outcome),
	}
}

// Restored reports whether state has been loaded from the store.
func (c *Checkpoint) Restored() bool {
	return c.restored
}

// Restore loads both sets and the resume anchor from the store. It is a
// no-op once it has succeeded; a failed restore leaves the checkpoint
// unrestored so the next round retries.
func (c *Checkpoint) Restore(ctx context.Context) (Counts, error) {
	if c.restored {
		return c.Counts(), nil
	}

	sets, err := c.repo.Restore(ctx, c.chain, c.programID)
	if err != nil {
		return Counts{}, fmt.Errorf("restore %s/%s: %w", c.chain, c.programID, err)
	}
	last, err := c.repo.LastSignature(ctx, c.chain, c.programID)
	if err != nil {
		return Counts{}, fmt.Errorf("restore %s/%s: %w", c.chain, c.programID, err)
	}

	c.processed = sets.Processed
	c.failed = sets.Failed
	c.last = last
	c.storedLast = last
	c.restored = true
	return c.Counts(), nil
}

// Contains reports whether a signature has already been counted.
func (c *Checkpoint) Contains(signature string) bool {
	if _, ok := c.processed[signature]; ok {
		return true
	}
	_, ok := c.failed[signature]
	return ok
}

// Record classifies a signature and persists it. The in-memory state is
// updated first so counters stay correct even when the store is down; the
// returned error is then only the persistence failure, which callers treat
// as non-fatal. A signature the store rejects stays pending and is retried
// by the next Flush. Recording an already-counted signature is a no-op.
func (c *Checkpoint) Record(ctx context.Context, signature string, outcome domain.Outcome) error {
	if c.Contains(signature) {
		return nil
	}

	switch outcome {
	case domain.OutcomeFailed:
		c.failed[signature] = struct{}{}
	default:
		c.processed[signature] = struct{}{}
	}
	c.last = signature
	c.pending[signature] = outcome

	return c.Flush(ctx)
}

// Flush persists every pending signature, then advances the stored anchor.
// The anchor is only written once nothing is pending, so the store never
// points past a signature it does not hold.
func (c *Checkpoint) Flush(ctx context.Context) error {
	for signature, outcome := range c.pending {
		if err := c.repo.Persist(ctx, c.chain, c.programID, signature, outcome); err != nil {
			return err
		}
		delete(c.pending, signature)
	}

	if c.last == c.storedLast {
		return nil
	}
	if err := c.repo.SetLastSignature(ctx, c.chain, c.programID, c.last); err != nil {
		return err
	}
	c.storedLast = c.last
	return nil
}

// LastSignature returns the newest classified signature, or "" before any
// classification.
func (c *Checkpoint) LastSignature() string {
	return c.last
}

// Counts returns the counter state implied by the sets.
func (c *Checkpoint) Counts() Counts {
	return Counts{
		Total:  len(c.processed) + len(c.failed),
		Failed: len(c.failed),
	}
}
