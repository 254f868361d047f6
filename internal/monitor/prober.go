package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/neonwatch/neonmon/internal/core/domain"
	"github.com/neonwatch/neonmon/internal/metrics"
)

// Probe timeout per group member; health probes must stay short.
const probeTimeout = 5 * time.Second

// HealthClient is the slice of the RPC client the prober needs.
type HealthClient interface {
	GetHealth(ctx context.Context) (healthy bool, slotsBehind uint64, err error)
	GetSlot(ctx context.Context) (uint64, error)
}

// Prober probes every member of one named server group concurrently and
// reports a health code per address: 0 unreachable, 1 healthy, otherwise the
// slot drift behind the group's maximum observed height.
type Prober struct {
	group   domain.ServerGroup
	clients map[string]HealthClient // keyed by member URL
	reg     *metrics.Registry
	log     *slog.Logger
}

// NewProber creates a prober for one server group.
func NewProber(group domain.ServerGroup, clients map[string]HealthClient, reg *metrics.Registry) *Prober {
	return &Prober{
		group:   group,
		clients: clients,
		reg:     reg,
		log:     slog.With("probe", "health", "group", group.Name),
	}
}

// Name identifies the probe in round status and logs.
func (p *Prober) Name() string {
	return "health/" + p.group.Name
}

type memberState struct {
	reachable bool
	healthy   bool
	behind    uint64
	slot      uint64
	slotSet   bool
}

// Run probes all members concurrently, then scores them against the group's
// maximum observed slot. There is no cross-group comparison.
func (p *Prober) Run(ctx context.Context) error {
	states := make(map[string]*memberState, len(p.group.URLs))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, url := range p.group.URLs {
		client, ok := p.clients[url]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(url string, client HealthClient) {
			defer wg.Done()
			state := p.probe(ctx, url, client)
			mu.Lock()
			states[url] = state
			mu.Unlock()
		}(url, client)
	}
	wg.Wait()

	var maxSlot uint64
	for _, st := range states {
		if st.slotSet && st.slot > maxSlot {
			maxSlot = st.slot
		}
	}

	for url, st := range states {
		p.reg.NodeHealth.WithLabelValues(url, p.group.Name).Set(p.score(st, maxSlot))
	}
	return nil
}

func (p *Prober) probe(ctx context.Context, url string, client HealthClient) *memberState {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	state := &memberState{}

	healthy, behind, err := client.GetHealth(probeCtx)
	if err != nil {
		p.log.Warn("node unreachable", "address", url, "error", err)
		return state
	}
	state.reachable = true
	state.healthy = healthy
	if !healthy {
		state.behind = behind
	}

	if slot, err := client.GetSlot(probeCtx); err == nil {
		state.slot = slot
		state.slotSet = true
	}
	return state
}

func (p *Prober) score(st *memberState, maxSlot uint64) float64 {
	if !st.reachable {
		return 0
	}

	drift := st.behind
	if drift == 0 && st.slotSet && maxSlot > st.slot {
		drift = maxSlot - st.slot
	}

	// A node that reports itself unhealthy without any drift evidence is
	// still unhealthy.
	if !st.healthy && drift == 0 {
		return 0
	}

	if drift <= p.group.SlotDriftThreshold {
		return 1
	}
	return float64(drift)
}
