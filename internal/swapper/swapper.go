// Package swapper implements the Swapper façade: the single entry
// point a caller uses to quote, create, track, and recover swaps across
// every protocol, hiding LP discovery, quote verification, and state
// machine selection behind a handful of methods. Follows a
// constructor-injected dependency shape with an OnEvent/emitEvent fan-out,
// generalized from one in-process swap map to a store-backed,
// multi-protocol façade with no package-level mutable state.
package swapper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/klingon-exchange/atomiq-core/internal/chainadapter"
	"github.com/klingon-exchange/atomiq-core/internal/config"
	"github.com/klingon-exchange/atomiq-core/internal/lpclient"
	"github.com/klingon-exchange/atomiq-core/internal/priceoracle"
	"github.com/klingon-exchange/atomiq-core/internal/quoteverify"
	"github.com/klingon-exchange/atomiq-core/internal/registry"
	"github.com/klingon-exchange/atomiq-core/internal/swapcore"
	"github.com/klingon-exchange/atomiq-core/internal/swapevents"
	"github.com/klingon-exchange/atomiq-core/internal/swapfsm"
	"github.com/klingon-exchange/atomiq-core/internal/swapstore"
	"github.com/klingon-exchange/atomiq-core/pkg/logging"
)

// Config carries the façade's own tunables, layered over
// config.SwapConfig's timing knobs.
type Config struct {
	QuoteSoftWindow time.Duration
	QuoteHardWindow time.Duration
	MaxCandidates   int // how many LPs Create will try before giving up

	// BTCChainTimeout feeds quoteverify's expiry-sanity check for
	// TO_BTC/TO_BTCLN quotes: the Bitcoin-side confirmation count, target
	// block window, and safety margin a returned data.expiry is bounded
	// against. Defaults to BTC mainnet; a caller running against testnet
	// should override with config.GetChainTimeout("BTC", true).
	BTCChainTimeout config.ChainTimeoutConfig
	SafetyFactor    float64
}

// DefaultConfig derives façade defaults from config.DefaultSwapConfig.
func DefaultConfig() Config {
	sc := config.DefaultSwapConfig()
	btcTimeout, _ := config.GetChainTimeout("BTC", false)
	return Config{
		QuoteSoftWindow: sc.QuoteSoftWindow,
		QuoteHardWindow: sc.QuoteHardWindow,
		MaxCandidates:   5,
		BTCChainTimeout: btcTimeout,
		SafetyFactor:    1.5,
	}
}

// Swapper is the swap-lifecycle façade. Every dependency is injected at construction;
// there is no global registry or oracle instance anywhere in this package.
type Swapper struct {
	store     *swapstore.Store
	machines  *swapfsm.Registry
	lps       *registry.Registry
	lpClient  *lpclient.Client
	contracts map[string]chainadapter.Contract // keyed by ChainID
	oracle    *priceoracle.Aggregator
	invoices  lpclient.InvoiceCodec
	verifier  *quoteverify.Verifier
	bus       *swapevents.Bus
	cfg       Config
	log       *logging.Logger

	mu        sync.Mutex // guards swapLocks
	swapLocks map[string]*sync.Mutex
}

// New builds a Swapper. contracts must be keyed by the ChainID values this
// engine's swaps carry; verifier should already be wired to oracle and to
// whichever ChainVerifier contracts is expected to check signatures
// against (internal/quoteverify.New's own constructor argument).
func New(
	store *swapstore.Store,
	machines *swapfsm.Registry,
	lps *registry.Registry,
	lpClient *lpclient.Client,
	contracts map[string]chainadapter.Contract,
	oracle *priceoracle.Aggregator,
	invoices lpclient.InvoiceCodec,
	verifier *quoteverify.Verifier,
	bus *swapevents.Bus,
	cfg Config,
) *Swapper {
	if cfg.MaxCandidates <= 0 {
		def := DefaultConfig()
		cfg.MaxCandidates = def.MaxCandidates
		if cfg.QuoteSoftWindow <= 0 {
			cfg.QuoteSoftWindow = def.QuoteSoftWindow
		}
		if cfg.QuoteHardWindow <= 0 {
			cfg.QuoteHardWindow = def.QuoteHardWindow
		}
	}
	return &Swapper{
		store:     store,
		machines:  machines,
		lps:       lps,
		lpClient:  lpClient,
		contracts: contracts,
		oracle:    oracle,
		invoices:  invoices,
		verifier:  verifier,
		bus:       bus,
		cfg:       cfg,
		log:       logging.GetDefault().Component("swapper"),
		swapLocks: make(map[string]*sync.Mutex),
	}
}

// lockFor returns the per-swap mutex for id, creating it on first use.
// Concurrent calls touching the same swap (e.g. a caller claiming while
// the reconciliation loop ticks it) serialize here rather than racing on
// the store.
func (s *Swapper) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.swapLocks[id]
	if !ok {
		l = &sync.Mutex{}
		s.swapLocks[id] = l
	}
	return l
}

// GetSwapByID loads one swap by its identifier (§6).
func (s *Swapper) GetSwapByID(id string) (*swapcore.Swap, error) {
	sw, err := s.store.Get(id)
	if err != nil {
		return nil, fmt.Errorf("swapper: get swap %s: %w", id, err)
	}
	return sw, nil
}

// GetAllSwaps returns every swap tracked for initiatorAddress, across
// every protocol. An empty address returns every swap in the store.
func (s *Swapper) GetAllSwaps(initiatorAddress string) ([]*swapcore.Swap, error) {
	if initiatorAddress == "" {
		return s.store.All()
	}
	return s.store.Query(swapstore.Predicates{swapstore.On(swapstore.KeyInitiatorAddress, initiatorAddress)})
}

// GetActionableSwaps returns swaps for initiatorAddress that need caller
// attention right now: refundable, or waiting on a manual claim.
func (s *Swapper) GetActionableSwaps(initiatorAddress string) ([]*swapcore.Swap, error) {
	all, err := s.GetAllSwaps(initiatorAddress)
	if err != nil {
		return nil, err
	}
	var out []*swapcore.Swap
	for _, sw := range all {
		m, err := s.machines.For(sw.Type)
		if err != nil {
			continue
		}
		if m.IsRefundable(sw.State) || s.isManuallyClaimable(m, sw) {
			out = append(out, sw)
		}
	}
	return out, nil
}

// GetRefundableSwaps returns swaps for initiatorAddress currently eligible
// for a user-broadcast refund.
func (s *Swapper) GetRefundableSwaps(initiatorAddress string) ([]*swapcore.Swap, error) {
	all, err := s.GetAllSwaps(initiatorAddress)
	if err != nil {
		return nil, err
	}
	var out []*swapcore.Swap
	for _, sw := range all {
		m, err := s.machines.For(sw.Type)
		if err != nil {
			continue
		}
		if m.IsRefundable(sw.State) {
			out = append(out, sw)
		}
	}
	return out, nil
}

// GetClaimableSwaps returns swaps for initiatorAddress where the escrow is
// observed on-chain and a manual claim action is the caller's to take.
//
// swapfsm.Machine has no generic "claimable now" predicate (each protocol
// exposes a differently-named method — FromBTC.Claim, ToBTC's implicit
// on-chain claim, TrustedFrom.ConfirmPayout with no user action at all),
// so this is an approximation: non-terminal, not refundable, escrow
// already committed (CommitTxID set), and not a trusted-family swap
// (trusted protocols pay out automatically; there is nothing for the
// caller to claim).
func (s *Swapper) GetClaimableSwaps(initiatorAddress string) ([]*swapcore.Swap, error) {
	all, err := s.GetAllSwaps(initiatorAddress)
	if err != nil {
		return nil, err
	}
	var out []*swapcore.Swap
	for _, sw := range all {
		m, err := s.machines.For(sw.Type)
		if err != nil {
			continue
		}
		if s.isManuallyClaimable(m, sw) {
			out = append(out, sw)
		}
	}
	return out, nil
}

func (s *Swapper) isManuallyClaimable(m swapfsm.Machine, sw *swapcore.Swap) bool {
	if m.IsTerminal(sw.State) || m.IsRefundable(sw.State) {
		return false
	}
	if sw.CommitTxID == "" {
		return false
	}
	switch sw.Type {
	case swapcore.TrustedFromBTC, swapcore.TrustedFromBTCLN:
		return false
	default:
		return true
	}
}

// removeSwapLock drops the per-swap mutex once a swap reaches a terminal
// state, so long-lived processes don't accumulate one mutex per swap ever
// created.
func (s *Swapper) removeSwapLock(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.swapLocks, id)
}

func (s *Swapper) save(ctx context.Context, sw *swapcore.Swap, added bool) error {
	if err := s.store.Save(sw); err != nil {
		return &StoreError{Op: "save", Err: err}
	}
	if added {
		s.bus.Added(sw)
	} else {
		s.bus.Changed(sw)
	}
	return nil
}

// StoreError wraps a persistence failure (§7): the swap is surfaced to
// the caller rather than retried automatically, since a retry against a
// store that just failed to write is not this package's call to make.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("swapper: store %s failed: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }
