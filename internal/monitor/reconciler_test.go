package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/neonwatch/neonmon/internal/core/domain"
	"github.com/neonwatch/neonmon/internal/infra/solana"
	"github.com/neonwatch/neonmon/internal/infra/storage"
	"github.com/neonwatch/neonmon/internal/infra/storage/memory"
	"github.com/neonwatch/neonmon/internal/metrics"
)

// =============================================================================
// Fake RPC client
// =============================================================================

type fakeTxClient struct {
	// sigs is the on-chain history, newest first, as the RPC would return it
	sigs     []domain.SignatureInfo
	outcomes map[string]solana.TxOutcome
	// outcomeErrs simulates per-signature transient fetch failures
	outcomeErrs map[string]error
	sigErr      error
	gotUntil    string
	gotLimit    int
}

func (c *fakeTxClient) GetSignaturesForAddress(
	ctx context.Context,
	address, until string,
	limit int,
) ([]domain.SignatureInfo, error) {
	c.gotUntil = until
	c.gotLimit = limit
	if c.sigErr != nil {
		return nil, c.sigErr
	}

	var page []domain.SignatureInfo
	for _, s := range c.sigs {
		if s.Signature == until {
			break
		}
		page = append(page, s)
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

func (c *fakeTxClient) GetTransactionOutcome(ctx context.Context, signature string) (solana.TxOutcome, error) {
	if err, ok := c.outcomeErrs[signature]; ok {
		return solana.TxNotFound, err
	}
	outcome, ok := c.outcomes[signature]
	if !ok {
		return solana.TxNotFound, nil
	}
	return outcome, nil
}

// =============================================================================
// Helpers
// =============================================================================

func testNetwork(name string) domain.Network {
	return domain.Network{
		Name:           name,
		Chain:          domain.Chain(name),
		ProgramID:      "Prog111",
		URL:            "https://" + name + ".example.com",
		SignatureLimit: 50,
	}
}

func networkLabels(n domain.Network) prometheus.Labels {
	return prometheus.Labels{
		"chain":      string(n.Chain),
		"program_id": n.ProgramID,
		"solana_url": n.URL,
	}
}

func newestFirst(sigs ...string) []domain.SignatureInfo {
	out := make([]domain.SignatureInfo, 0, len(sigs))
	for i := len(sigs) - 1; i >= 0; i-- {
		out = append(out, domain.SignatureInfo{Signature: sigs[i], Slot: uint64(100 + i)})
	}
	return out
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// =============================================================================
// Tests
// =============================================================================

// Spec scenario: 10 prior processed signatures, a round discovers 3 new ones
// classified 2 success / 1 failure.
func TestReconcilerScenario(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	network := testNetwork("devnet")

	var history []string
	for i := 1; i <= 10; i++ {
		sig := fmt.Sprintf("s%d", i)
		history = append(history, sig)
		repo.Persist(ctx, network.Chain, network.ProgramID, sig, domain.OutcomeProcessed)
	}
	repo.SetLastSignature(ctx, network.Chain, network.ProgramID, "s10")

	client := &fakeTxClient{
		sigs: newestFirst(append(history, "s11", "s12", "s13")...),
		outcomes: map[string]solana.TxOutcome{
			"s11": solana.TxSuccess,
			"s12": solana.TxFailure,
			"s13": solana.TxSuccess,
		},
	}

	reg := metrics.NewRegistry()
	rec := NewReconciler(network, client, repo, reg)

	if err := rec.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	labels := networkLabels(network)
	if got := testutil.ToFloat64(reg.TxTotal.With(labels)); got != 13 {
		t.Errorf("expected total 13, got %v", got)
	}
	if got := testutil.ToFloat64(reg.TxFail.With(labels)); got != 1 {
		t.Errorf("expected fail 1, got %v", got)
	}
	if got := testutil.ToFloat64(reg.TxSuccessRatio.With(labels)); !almostEqual(got, 12.0/13.0) {
		t.Errorf("expected ratio 12/13, got %v", got)
	}

	if client.gotUntil != "s10" {
		t.Errorf("expected fetch until s10, got %q", client.gotUntil)
	}

	sets, _ := repo.Restore(ctx, network.Chain, network.ProgramID)
	if len(sets.Processed) != 12 {
		t.Errorf("expected 12 processed in store, got %d", len(sets.Processed))
	}
	if len(sets.Failed) != 1 {
		t.Errorf("expected 1 failed in store, got %d", len(sets.Failed))
	}
}

// A restart that lost its anchor replays the full page; signatures already in
// the restored sets must not be counted again.
func TestReconcilerIdempotentReplay(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	network := testNetwork("devnet")

	client := &fakeTxClient{
		sigs: newestFirst("s1", "s2", "s3"),
		outcomes: map[string]solana.TxOutcome{
			"s1": solana.TxSuccess,
			"s2": solana.TxFailure,
			"s3": solana.TxSuccess,
		},
	}

	rec := NewReconciler(network, client, repo, metrics.NewRegistry())
	if err := rec.Run(ctx); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}

	// Simulate a restart where the anchor write was lost: the fetch replays
	// the whole page against the restored sets.
	repo.SetLastSignature(ctx, network.Chain, network.ProgramID, "")

	reg2 := metrics.NewRegistry()
	rec2 := NewReconciler(network, client, repo, reg2)
	if err := rec2.Run(ctx); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if client.gotUntil != "" {
		t.Fatalf("expected full replay, got until %q", client.gotUntil)
	}

	labels := networkLabels(network)
	if got := testutil.ToFloat64(reg2.TxTotal.With(labels)); got != 3 {
		t.Errorf("expected total 3 after replay, got %v", got)
	}
	if got := testutil.ToFloat64(reg2.TxFail.With(labels)); got != 1 {
		t.Errorf("expected fail 1 after replay, got %v", got)
	}
}

// A transient transaction-fetch error stops the page so the anchor never
// advances past an unclassified signature.
func TestReconcilerStopsPageOnFetchError(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	network := testNetwork("devnet")

	client := &fakeTxClient{
		sigs: newestFirst("s1", "s2", "s3"),
		outcomes: map[string]solana.TxOutcome{
			"s1": solana.TxSuccess,
			"s3": solana.TxSuccess,
		},
		outcomeErrs: map[string]error{
			"s2": errors.New("timeout"),
		},
	}

	reg := metrics.NewRegistry()
	rec := NewReconciler(network, client, repo, reg)

	if err := rec.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	labels := networkLabels(network)
	if got := testutil.ToFloat64(reg.TxTotal.With(labels)); got != 1 {
		t.Errorf("expected only s1 counted, got %v", got)
	}

	last, _ := repo.LastSignature(ctx, network.Chain, network.ProgramID)
	if last != "s1" {
		t.Errorf("anchor must stop at s1, got %q", last)
	}

	// Next round: s2 recovers, page resumes from s1
	delete(client.outcomeErrs, "s2")
	client.outcomes["s2"] = solana.TxFailure

	if err := rec.Run(ctx); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if client.gotUntil != "s1" {
		t.Errorf("expected resume from s1, got %q", client.gotUntil)
	}
	if got := testutil.ToFloat64(reg.TxTotal.With(labels)); got != 3 {
		t.Errorf("expected total 3 after recovery, got %v", got)
	}
	if got := testutil.ToFloat64(reg.TxFail.With(labels)); got != 1 {
		t.Errorf("expected fail 1 after recovery, got %v", got)
	}
}

// A not-yet-found transaction is skipped and retried, never counted as failed.
func TestReconcilerNotFoundIsNotAFailure(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	network := testNetwork("devnet")

	client := &fakeTxClient{
		sigs:     newestFirst("s1"),
		outcomes: map[string]solana.TxOutcome{},
	}

	reg := metrics.NewRegistry()
	rec := NewReconciler(network, client, repo, reg)

	if err := rec.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	labels := networkLabels(network)
	if got := testutil.ToFloat64(reg.TxTotal.With(labels)); got != 0 {
		t.Errorf("expected nothing counted, got %v", got)
	}
	if got := testutil.ToFloat64(reg.TxFail.With(labels)); got != 0 {
		t.Errorf("not-found must not count as failure, got %v", got)
	}
}

// The ratio gauge stays unset while total is zero.
func TestReconcilerRatioUndefinedAtZero(t *testing.T) {
	repo := memory.New()
	network := testNetwork("devnet")
	client := &fakeTxClient{}

	reg := metrics.NewRegistry()
	rec := NewReconciler(network, client, repo, reg)

	if err := rec.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	count := testutil.CollectAndCount(reg.TxSuccessRatio)
	if count != 0 {
		t.Errorf("expected no ratio series at total=0, got %d", count)
	}
}

// An RPC failure on one network must not touch another network's metrics.
func TestReconcilerIsolation(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	netA := testNetwork("devnet")
	netB := testNetwork("testnet")

	clientA := &fakeTxClient{sigErr: errors.New("connection refused")}
	clientB := &fakeTxClient{
		sigs:     newestFirst("b1", "b2"),
		outcomes: map[string]solana.TxOutcome{"b1": solana.TxSuccess, "b2": solana.TxSuccess},
	}

	reg := metrics.NewRegistry()
	recA := NewReconciler(netA, clientA, repo, reg)
	recB := NewReconciler(netB, clientB, repo, reg)

	if err := recA.Run(ctx); err != nil {
		t.Fatalf("Run A failed: %v", err)
	}
	if err := recB.Run(ctx); err != nil {
		t.Fatalf("Run B failed: %v", err)
	}

	if got := testutil.ToFloat64(reg.TxTotal.With(networkLabels(netA))); got != 0 {
		t.Errorf("network A must stay at 0, got %v", got)
	}
	if got := testutil.ToFloat64(reg.TxTotal.With(networkLabels(netB))); got != 2 {
		t.Errorf("network B must count 2, got %v", got)
	}
}

type downRepo struct {
	*memory.Repo
	down bool
}

func (r *downRepo) Restore(
	ctx context.Context,
	chain domain.Chain,
	programID string,
) (storage.SignatureSets, error) {
	if r.down {
		return storage.SignatureSets{}, storage.Unavailable(errors.New("store down"))
	}
	return r.Repo.Restore(ctx, chain, programID)
}

type rejectSigRepo struct {
	*memory.Repo
	rejectSig string
}

func (r *rejectSigRepo) Persist(
	ctx context.Context,
	chain domain.Chain,
	programID, signature string,
	outcome domain.Outcome,
) error {
	if signature == r.rejectSig {
		return storage.Unavailable(errors.New("store down"))
	}
	return r.Repo.Persist(ctx, chain, programID, signature, outcome)
}

// A signature the store rejects mid-page must not be left behind: the stored
// anchor holds until the store accepts it, and a later round persists it.
func TestReconcilerStoreCatchesUpAfterPersistFailure(t *testing.T) {
	repo := &rejectSigRepo{Repo: memory.New(), rejectSig: "s2"}
	ctx := context.Background()
	network := testNetwork("devnet")

	client := &fakeTxClient{
		sigs: newestFirst("s1", "s2", "s3"),
		outcomes: map[string]solana.TxOutcome{
			"s1": solana.TxSuccess,
			"s2": solana.TxFailure,
			"s3": solana.TxSuccess,
		},
	}

	reg := metrics.NewRegistry()
	rec := NewReconciler(network, client, repo, reg)

	if err := rec.Run(ctx); !errors.Is(err, storage.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}

	// All three are counted in memory.
	labels := networkLabels(network)
	if got := testutil.ToFloat64(reg.TxTotal.With(labels)); got != 3 {
		t.Errorf("expected total 3, got %v", got)
	}
	if got := testutil.ToFloat64(reg.TxFail.With(labels)); got != 1 {
		t.Errorf("expected fail 1, got %v", got)
	}

	// The stored anchor must not point past the rejected signature.
	last, _ := repo.LastSignature(ctx, network.Chain, network.ProgramID)
	if last != "s1" {
		t.Errorf("stored anchor must stay at s1 while s2 is unpersisted, got %q", last)
	}

	// Store recovers: the next round drains the backlog without recounting.
	repo.rejectSig = ""
	if err := rec.Run(ctx); err != nil {
		t.Fatalf("Run after recovery failed: %v", err)
	}

	sets, _ := repo.Restore(ctx, network.Chain, network.ProgramID)
	if _, ok := sets.Failed["s2"]; !ok {
		t.Error("expected s2 in the store's failed set after recovery")
	}
	if len(sets.Processed) != 2 || len(sets.Failed) != 1 {
		t.Errorf("expected 2 processed + 1 failed in store, got %d/%d",
			len(sets.Processed), len(sets.Failed))
	}
	last, _ = repo.LastSignature(ctx, network.Chain, network.ProgramID)
	if last != "s3" {
		t.Errorf("expected stored anchor s3 after recovery, got %q", last)
	}
	if got := testutil.ToFloat64(reg.TxTotal.With(labels)); got != 3 {
		t.Errorf("recovery must not recount, got total %v", got)
	}
}

// A failed restore skips the whole round: classifying against empty sets
// would double count on the next start.
func TestReconcilerSkipsRoundWhenRestoreFails(t *testing.T) {
	repo := &downRepo{Repo: memory.New(), down: true}
	ctx := context.Background()
	network := testNetwork("devnet")

	client := &fakeTxClient{
		sigs:     newestFirst("s1"),
		outcomes: map[string]solana.TxOutcome{"s1": solana.TxSuccess},
	}

	reg := metrics.NewRegistry()
	rec := NewReconciler(network, client, repo, reg)

	if err := rec.Run(ctx); !errors.Is(err, storage.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if got := testutil.ToFloat64(reg.TxTotal.With(networkLabels(network))); got != 0 {
		t.Errorf("expected nothing counted while unrestored, got %v", got)
	}

	// Store recovers; the round proceeds normally.
	repo.down = false
	if err := rec.Run(ctx); err != nil {
		t.Fatalf("Run after recovery failed: %v", err)
	}
	if got := testutil.ToFloat64(reg.TxTotal.With(networkLabels(network))); got != 1 {
		t.Errorf("expected total 1 after recovery, got %v", got)
	}
}

// After restart, counters must equal the sets reconstructed from the store.
func TestReconcilerRestoration(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	network := testNetwork("devnet")

	for i := 1; i <= 7; i++ {
		repo.Persist(ctx, network.Chain, network.ProgramID, fmt.Sprintf("p%d", i), domain.OutcomeProcessed)
	}
	repo.Persist(ctx, network.Chain, network.ProgramID, "f1", domain.OutcomeFailed)
	repo.Persist(ctx, network.Chain, network.ProgramID, "f2", domain.OutcomeFailed)

	client := &fakeTxClient{}
	reg := metrics.NewRegistry()
	rec := NewReconciler(network, client, repo, reg)

	if err := rec.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	labels := networkLabels(network)
	if got := testutil.ToFloat64(reg.TxTotal.With(labels)); got != 9 {
		t.Errorf("expected restored total 9, got %v", got)
	}
	if got := testutil.ToFloat64(reg.TxFail.With(labels)); got != 2 {
		t.Errorf("expected restored fail 2, got %v", got)
	}
	if got := testutil.ToFloat64(reg.TxSuccessRatio.With(labels)); !almostEqual(got, 7.0/9.0) {
		t.Errorf("expected ratio 7/9, got %v", got)
	}
}
