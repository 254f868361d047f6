package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/neonwatch/neonmon/internal/core/domain"
)

// ErrStoreUnavailable indicates the state store cannot be reached. Callers
// must treat it as non-fatal: keep serving in-memory counters and retry on
// the next round.
var ErrStoreUnavailable = errors.New("state store unavailable")

// SignatureSets holds the two checkpoint sets restored from the store.
type SignatureSets struct {
	Processed map[string]struct{}
	Failed    map[string]struct{}
}

// SignatureRepository persists the per-(chain, program) checkpoint signature
// sets. The key scheme is a versioned on-disk contract: v1 namespaces every
// key as neonmon:v1:{chain}:{program_id}:{processed|failed}.
type SignatureRepository interface {
	// Restore loads both signature sets for a network. Missing keys yield
	// empty sets, not an error.
	Restore(ctx context.Context, chain domain.Chain, programID string) (SignatureSets, error)

	// Persist records a classified signature. Adding an already-present
	// signature is a no-op.
	Persist(ctx context.Context, chain domain.Chain, programID, signature string, outcome domain.Outcome) error

	// LastSignature returns the newest classified signature, or "" when no
	// checkpoint exists yet.
	LastSignature(ctx context.Context, chain domain.Chain, programID string) (string, error)

	// SetLastSignature advances the resume anchor. Called only after the
	// signature it names has been persisted.
	SetLastSignature(ctx context.Context, chain domain.Chain, programID, signature string) error

	Close() error
}

// Unavailable wraps a connection-level error as ErrStoreUnavailable so
// callers can match it with errors.Is.
func Unavailable(err error) error {
	return fmt.Errorf("%w: %s", ErrStoreUnavailable, err)
}

// KeyV1 builds the versioned store key for one signature set.
func KeyV1(chain domain.Chain, programID string, outcome domain.Outcome) string {
	return fmt.Sprintf("neonmon:v1:%s:%s:%s", chain, programID, outcome)
}

// LastKeyV1 builds the versioned store key for the resume anchor.
func LastKeyV1(chain domain.Chain, programID string) string {
	return fmt.Sprintf("neonmon:v1:%s:%s:last", chain, programID)
}
