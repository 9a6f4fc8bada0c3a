// Package reconcile implements the reconciliation loop: three
// concurrent tasks (§4.5) that drive every tracked swap's state machine
// toward on-chain reality. Grounded on internal/node/retry_worker.go's
// ticker+cleanup-ticker+select loop shape for the tick task, and a
// per-swap confirmation polling loop generalized from "wait for N
// confirmations" to "drive the FSM to whatever the chain now says."
package reconcile

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/klingon-exchange/atomiq-core/internal/chainadapter"
	"github.com/klingon-exchange/atomiq-core/internal/swapcore"
	"github.com/klingon-exchange/atomiq-core/internal/swapevents"
	"github.com/klingon-exchange/atomiq-core/internal/swapfsm"
	"github.com/klingon-exchange/atomiq-core/internal/swapstore"
	"github.com/klingon-exchange/atomiq-core/pkg/logging"
)

func hexEncode(hash [32]byte) string { return hex.EncodeToString(hash[:]) }

// SwapSigner resolves the address a chain status/claim/refund query
// should be evaluated as the signer for a given swap. Most chains don't
// need role-sensitive signer context for a read-only status query, but
// EVM-style Contract.GetCommitStatus(es) takes one regardless.
type SwapSigner func(s *swapcore.Swap) string

// Config configures a Loop.
type Config struct {
	TickInterval   time.Duration // T1 cadence, default 5s per §4.5
	DeepSyncBatch  int           // max swaps per GetCommitStatuses call, default 50
	StartupDeepSync bool         // run T3 once immediately on Start
}

// DefaultConfig matches §4.5's "typ. 5s" tick cadence.
func DefaultConfig() Config {
	return Config{TickInterval: 5 * time.Second, DeepSyncBatch: 50, StartupDeepSync: true}
}

// Loop runs T1 (tick), T2 (chain event subscription), and T3 (deep sync)
// against the swaps in store, driving each through its swapfsm.Machine.
type Loop struct {
	store     *swapstore.Store
	registry  *swapfsm.Registry
	contracts map[string]chainadapter.Contract // keyed by ChainID
	signer    SwapSigner
	bus       *swapevents.Bus
	cfg       Config
	log       *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Loop. contracts must be keyed by the same ChainID values
// swapcore.Swap.ChainID carries; signer resolves the address used for
// read-only status queries against those contracts.
func New(store *swapstore.Store, registry *swapfsm.Registry, contracts map[string]chainadapter.Contract, signer SwapSigner, bus *swapevents.Bus, cfg Config) *Loop {
	if cfg.TickInterval <= 0 {
		cfg = DefaultConfig()
	}
	if cfg.DeepSyncBatch <= 0 {
		cfg.DeepSyncBatch = 50
	}
	return &Loop{
		store:     store,
		registry:  registry,
		contracts: contracts,
		signer:    signer,
		bus:       bus,
		cfg:       cfg,
		log:       logging.GetDefault().Component("reconcile"),
	}
}

// Start launches T1 and T2 as background goroutines, and runs T3 once
// synchronously if cfg.StartupDeepSync is set (the "on startup" half of
// §4.5's "on startup and on demand").
func (l *Loop) Start(ctx context.Context) error {
	l.ctx, l.cancel = context.WithCancel(ctx)

	if l.cfg.StartupDeepSync {
		if err := l.DeepSync(l.ctx); err != nil {
			l.log.Warn("startup deep sync failed", "err", err)
		}
	}

	l.wg.Add(1)
	go l.runTick()

	for chainID, c := range l.contracts {
		source, ok := c.(chainadapter.EventSource)
		if !ok {
			continue
		}
		l.wg.Add(1)
		go l.runEvents(chainID, source)
	}

	return nil
}

// Stop cancels every background task and waits for them to exit.
func (l *Loop) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
}

// runTick is T1: every cfg.TickInterval, load all non-terminal swaps,
// call Tick on each, persist and publish any that changed. Ordering
// across swaps is irrelevant per §4.5 ("no cross-swap invariants").
func (l *Loop) runTick() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			l.tickOnce()
		}
	}
}

func (l *Loop) tickOnce() {
	swaps, err := l.nonTerminalSwaps()
	if err != nil {
		l.log.Warn("tick: list swaps failed", "err", err)
		return
	}

	now := time.Now()
	for _, s := range swaps {
		m, err := l.registry.For(s.Type)
		if err != nil {
			l.log.Warn("tick: no machine for swap", "swap", s.ID, "type", s.Type, "err", err)
			continue
		}
		changed, err := m.Tick(now, s)
		if err != nil {
			l.log.Warn("tick: machine tick failed", "swap", s.ID, "err", err)
			continue
		}
		if !changed {
			continue
		}
		if err := l.store.Save(s); err != nil {
			l.log.Warn("tick: save failed", "swap", s.ID, "err", err)
			continue
		}
		l.bus.Changed(s)
	}
}

// nonTerminalSwaps loads every stored swap and filters out ones whose
// machine reports IsTerminal, since swapstore.Store stays protocol-
// agnostic (plain SQL, no swapfsm dependency).
func (l *Loop) nonTerminalSwaps() ([]*swapcore.Swap, error) {
	all, err := l.store.All()
	if err != nil {
		return nil, err
	}
	out := make([]*swapcore.Swap, 0, len(all))
	for _, s := range all {
		m, err := l.registry.For(s.Type)
		if err != nil {
			continue
		}
		if !m.IsTerminal(s.State) {
			out = append(out, s)
		}
	}
	return out, nil
}

// runEvents is T2 for one chain: subscribe to its escrow event stream and
// route each event to the swap it names, by escrow hash (= claim hash,
// per swapstore's own escrow_hash indexing).
func (l *Loop) runEvents(chainID string, source chainadapter.EventSource) {
	defer l.wg.Done()

	events, err := source.SubscribeEvents(l.ctx)
	if err != nil {
		l.log.Warn("event subscription failed", "chain", chainID, "err", err)
		return
	}

	for {
		select {
		case <-l.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			l.handleEvent(chainID, ev)
		}
	}
}

func (l *Loop) handleEvent(chainID string, ev chainadapter.Event) {
	s, err := l.findByEscrowHash(ev.EscrowHash)
	if err != nil {
		l.log.Debug("event for unknown escrow", "chain", chainID, "err", err)
		return
	}
	if s == nil {
		return
	}

	m, err := l.registry.For(s.Type)
	if err != nil {
		l.log.Warn("event: no machine for swap", "swap", s.ID, "err", err)
		return
	}

	changed, err := m.OnEvent(s, ev)
	if err != nil {
		l.log.Warn("event: machine rejected event", "swap", s.ID, "err", err)
		return
	}
	if !changed {
		return
	}
	if err := l.store.Save(s); err != nil {
		l.log.Warn("event: save failed", "swap", s.ID, "err", err)
		return
	}
	l.bus.Changed(s)
}

func (l *Loop) findByEscrowHash(hash [32]byte) (*swapcore.Swap, error) {
	matches, err := l.store.Query(swapstore.Predicates{swapstore.On(swapstore.KeyEscrowHash, hexEncode(hash))})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[0], nil
}

// DeepSync is T3: for every non-terminal swap with known swap_data,
// batch-query the owning chain's GetCommitStatuses and force each swap's
// state to match, the authoritative reconciliation path after long
// offline periods (§4.5).
func (l *Loop) DeepSync(ctx context.Context) error {
	swaps, err := l.nonTerminalSwaps()
	if err != nil {
		return err
	}

	byChain := make(map[string][]*swapcore.Swap)
	for _, s := range swaps {
		if s.EffectiveSwapData() == nil {
			continue
		}
		byChain[s.ChainID] = append(byChain[s.ChainID], s)
	}

	for chainID, group := range byChain {
		contract, ok := l.contracts[chainID]
		if !ok {
			continue
		}
		l.deepSyncChain(ctx, contract, group)
	}
	return nil
}

func (l *Loop) deepSyncChain(ctx context.Context, contract chainadapter.Contract, swaps []*swapcore.Swap) {
	for start := 0; start < len(swaps); start += l.cfg.DeepSyncBatch {
		end := start + l.cfg.DeepSyncBatch
		if end > len(swaps) {
			end = len(swaps)
		}
		batch := swaps[start:end]

		datas := make([]*swapcore.SwapData, len(batch))
		for i, s := range batch {
			datas[i] = s.EffectiveSwapData()
		}

		signer := ""
		if l.signer != nil && len(batch) > 0 {
			signer = l.signer(batch[0])
		}

		statuses, err := contract.GetCommitStatuses(ctx, signer, datas)
		if err != nil {
			l.log.Warn("deep sync: GetCommitStatuses failed", "chain", contract.ChainID(), "err", err)
			continue
		}
		if len(statuses) != len(batch) {
			l.log.Warn("deep sync: status count mismatch", "chain", contract.ChainID(), "want", len(batch), "got", len(statuses))
			continue
		}

		for i, s := range batch {
			l.applyStatus(s, statuses[i])
		}
	}
}

func (l *Loop) applyStatus(s *swapcore.Swap, status chainadapter.CommitStatus) {
	m, err := l.registry.For(s.Type)
	if err != nil {
		return
	}
	changed, err := m.ForceOnChainState(s, status)
	if err != nil {
		l.log.Warn("deep sync: force state failed", "swap", s.ID, "err", err)
		return
	}
	if !changed {
		return
	}
	if err := l.store.Save(s); err != nil {
		l.log.Warn("deep sync: save failed", "swap", s.ID, "err", err)
		return
	}
	l.bus.Changed(s)
}
