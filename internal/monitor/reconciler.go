package monitor

import (
	"context"
	"errors"
	"log/slog"

	"github.com/neonwatch/neonmon/internal/core/checkpoint"
	"github.com/neonwatch/neonmon/internal/core/domain"
	"github.com/neonwatch/neonmon/internal/infra/solana"
	"github.com/neonwatch/neonmon/internal/infra/storage"
	"github.com/neonwatch/neonmon/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// TxClient is the slice of the RPC client the reconciler needs.
type TxClient interface {
	GetSignaturesForAddress(ctx context.Context, address, until string, limit int) ([]domain.SignatureInfo, error)
	GetTransactionOutcome(ctx context.Context, signature string) (solana.TxOutcome, error)
}

// Reconciler discovers and classifies new program transactions for one
// network. Each instance exclusively owns its checkpoint; rounds for the
// same network never run concurrently.
type Reconciler struct {
	network domain.Network
	client  TxClient
	cp      *checkpoint.Checkpoint
	log     *slog.Logger

	total  prometheus.Counter
	fail   prometheus.Counter
	ratio  *prometheus.GaugeVec
	labels prometheus.Labels
	counts checkpoint.Counts
}

// NewReconciler creates a reconciler for one network.
func NewReconciler(
	network domain.Network,
	client TxClient,
	repo storage.SignatureRepository,
	reg *metrics.Registry,
) *Reconciler {
	labels := prometheus.Labels{
		"chain":      string(network.Chain),
		"program_id": network.ProgramID,
		"solana_url": network.URL,
	}
	return &Reconciler{
		network: network,
		client:  client,
		cp:      checkpoint.New(repo, network.Chain, network.ProgramID),
		log:     slog.With("probe", "reconciler", "network", network.Name),
		total:   reg.TxTotal.With(labels),
		fail:    reg.TxFail.With(labels),
		ratio:   reg.TxSuccessRatio,
		labels:  labels,
	}
}

// Name identifies the probe in round status and logs.
func (r *Reconciler) Name() string {
	return "reconciler/" + r.network.Name
}

// Run executes one reconciliation round. RPC failures are logged and end the
// round early without error; only store-layer failures are returned, so the
// scheduler can withhold the heartbeat while in-memory counters keep serving.
func (r *Reconciler) Run(ctx context.Context) error {
	if !r.cp.Restored() {
		counts, err := r.cp.Restore(ctx)
		if err != nil {
			// Without restored sets, classifying would risk double
			// counting. Skip this network until the store answers.
			r.log.Warn("checkpoint restore failed, skipping round", "error", err)
			return err
		}
		r.counts = counts
		r.total.Add(float64(counts.Total))
		r.fail.Add(float64(counts.Failed))
		r.updateRatio()
		r.log.Info("checkpoint restored", "total", counts.Total, "failed", counts.Failed)
	}

	var storeErr error

	// Retry anything the store rejected in earlier rounds before taking on
	// new work, so the persisted anchor can catch up.
	if err := r.cp.Flush(ctx); err != nil {
		r.log.Warn("checkpoint flush failed", "error", err)
		storeErr = err
	}

	sigs, err := r.client.GetSignaturesForAddress(
		ctx, r.network.ProgramID, r.cp.LastSignature(), r.network.SignatureLimit,
	)
	if err != nil {
		if errors.Is(err, solana.ErrRateLimited) {
			r.log.Warn("rate limited, backing off round", "error", err)
		} else {
			r.log.Warn("signature fetch failed", "error", err)
		}
		return storeErr
	}

	// Signatures arrive newest first; classify oldest to newest so the
	// checkpoint anchor only ever advances over classified signatures.
	for i := len(sigs) - 1; i >= 0; i-- {
		sig := sigs[i].Signature
		if r.cp.Contains(sig) {
			continue
		}

		outcome, err := r.client.GetTransactionOutcome(ctx, sig)
		if err != nil {
			// Stop the page: advancing past an unclassified signature
			// would skip it forever. Next round resumes here.
			r.log.Warn("transaction fetch failed, stopping page", "signature", sig, "error", err)
			break
		}
		if outcome == solana.TxNotFound {
			r.log.Debug("transaction not found yet, stopping page", "signature", sig)
			break
		}

		classified := domain.OutcomeProcessed
		if outcome == solana.TxFailure {
			classified = domain.OutcomeFailed
		}

		if err := r.cp.Record(ctx, sig, classified); err != nil {
			// In-memory state is already updated; the signature stays
			// pending in the checkpoint and Flush retries it next round.
			r.log.Warn("signature persist failed", "signature", sig, "error", err)
			storeErr = err
		}

		r.counts.Total++
		r.total.Inc()
		if classified == domain.OutcomeFailed {
			r.counts.Failed++
			r.fail.Inc()
		}
	}

	r.updateRatio()
	return storeErr
}

// updateRatio sets success_ratio = 1 - fail/total. The series is only
// published once at least one transaction has been classified.
func (r *Reconciler) updateRatio() {
	if r.counts.Total > 0 {
		r.ratio.With(r.labels).Set(1 - float64(r.counts.Failed)/float64(r.counts.Total))
	}
}
