package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/neonwatch/neonmon/internal/core/domain"
	"github.com/neonwatch/neonmon/internal/infra/storage"
)

// SignatureRepo implements storage.SignatureRepository using PostgreSQL.
type SignatureRepo struct {
	db *DB
}

// NewSignatureRepo creates a new PostgreSQL signature repository.
func NewSignatureRepo(db *DB) *SignatureRepo {
	return &SignatureRepo{db: db}
}

type signatureRow struct {
	Signature string `db:"signature"`
	Outcome   string `db:"outcome"`
}

// Restore loads both signature sets for a network.
func (r *SignatureRepo) Restore(
	ctx context.Context,
	chain domain.Chain,
	programID string,
) (storage.SignatureSets, error) {
	sets := storage.SignatureSets{
		Processed: make(map[string]struct{}),
		Failed:    make(map[string]struct{}),
	}

	var rows []signatureRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT signature, outcome FROM signatures WHERE chain = $1 AND program_id = $2`,
		string(chain), programID,
	)
	if err != nil {
		return sets, storage.Unavailable(err)
	}

	for _, row := range rows {
		switch domain.Outcome(row.Outcome) {
		case domain.OutcomeFailed:
			sets.Failed[row.Signature] = struct{}{}
		default:
			sets.Processed[row.Signature] = struct{}{}
		}
	}
	return sets, nil
}

// Persist records a classified signature. ON CONFLICT DO NOTHING makes
// replays a no-op.
func (r *SignatureRepo) Persist(
	ctx context.Context,
	chain domain.Chain,
	programID, signature string,
	outcome domain.Outcome,
) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO signatures (chain, program_id, signature, outcome)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (chain, program_id, signature) DO NOTHING`,
		string(chain), programID, signature, string(outcome),
	)
	if err != nil {
		return storage.Unavailable(fmt.Errorf("insert signature: %w", err))
	}
	return nil
}

// LastSignature returns the resume anchor, or "" when absent.
func (r *SignatureRepo) LastSignature(
	ctx context.Context,
	chain domain.Chain,
	programID string,
) (string, error) {
	var last string
	err := r.db.GetContext(ctx, &last,
		`SELECT last_signature FROM checkpoints WHERE chain = $1 AND program_id = $2`,
		string(chain), programID,
	)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", storage.Unavailable(err)
	}
	return last, nil
}

// SetLastSignature advances the resume anchor.
func (r *SignatureRepo) SetLastSignature(
	ctx context.Context,
	chain domain.Chain,
	programID, signature string,
) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO checkpoints (chain, program_id, last_signature, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (chain, program_id)
		 DO UPDATE SET last_signature = EXCLUDED.last_signature, updated_at = now()`,
		string(chain), programID, signature,
	)
	if err != nil {
		return storage.Unavailable(err)
	}
	return nil
}

// Close closes the database connection.
func (r *SignatureRepo) Close() error {
	return r.db.Close()
}
