// Package swapfsm hosts one state machine per swap protocol, sharing
// a common negative-state axis and tick/event-ingestion shape across all
// eight protocols. The shape generalizes a transition-table pattern from
// one fixed swap shape to a family of protocol-specific positive state
// sets layered over the same shared negative axis.
package swapfsm

import (
	"fmt"
	"time"

	"github.com/klingon-exchange/atomiq-core/internal/chainadapter"
	"github.com/klingon-exchange/atomiq-core/internal/swapcore"
)

// Shared negative axis (§4.4.1). Every protocol's positive states start at
// 0 and increase; these four values never collide with a protocol state.
const (
	Failed           int32 = -4
	QuoteExpired     int32 = -3
	QuoteSoftExpired int32 = -2
	Expired          int32 = -1
)

func sharedStateName(state int32) (string, bool) {
	switch state {
	case Failed:
		return "FAILED", true
	case QuoteExpired:
		return "QUOTE_EXPIRED", true
	case QuoteSoftExpired:
		return "QUOTE_SOFT_EXPIRED", true
	case Expired:
		return "EXPIRED", true
	default:
		return "", false
	}
}

// Machine is the narrow capability every per-protocol file implements.
// Reconciliation (internal/reconcile) and the façade (internal/swapper)
// drive a swap purely through this interface, never touching State
// directly.
type Machine interface {
	// Type identifies which protocol this machine drives.
	Type() swapcore.SwapType

	// StateName renders s.State for logs/API responses.
	StateName(state int32) string

	// IsTerminal reports whether no further transition is possible.
	IsTerminal(state int32) bool

	// IsClaimedTerminal reports whether state is a successful terminal
	// claim state (feeds swapcore.CheckClaimedConsistency).
	IsClaimedTerminal(state int32) bool

	// IsRefundable reports whether the user may broadcast a refund from
	// this state right now.
	IsRefundable(state int32) bool

	// Tick evaluates the §4.4.6 time predicates against now and mutates
	// s in place. Returns true if s.State (or any other field) changed.
	Tick(now time.Time, s *swapcore.Swap) (bool, error)

	// OnEvent applies one chain event (§4.4.7) to s. Events are
	// idempotent: replaying the same event must leave s unchanged the
	// second time. Returns true if s changed.
	OnEvent(s *swapcore.Swap, ev chainadapter.Event) (bool, error)

	// ForceOnChainState is T3's authoritative reconciliation primitive
	// (§4.5): overwrite s.State (and any dependent field) to match a
	// batched on-chain status query, regardless of what Tick/OnEvent would
	// otherwise allow. Used after long offline periods when events may
	// have been missed entirely.
	ForceOnChainState(s *swapcore.Swap, status chainadapter.CommitStatus) (bool, error)
}

// quoteExpiry applies the QUOTE_SOFT_EXPIRED/QUOTE_EXPIRED transitions
// shared by every protocol. isEarlyPositive reports whether s.State is
// still in the window where quote expiry can fire (the protocol's
// pre-commit positive states).
func quoteExpiry(now time.Time, s *swapcore.Swap, isEarlyPositive func(int32) bool) bool {
	switch {
	case s.State == QuoteSoftExpired:
		if now.After(s.QuoteExpiry) {
			s.State = QuoteExpired
			return true
		}
		return false
	case isEarlyPositive(s.State):
		if now.After(s.QuoteSoft) {
			s.State = QuoteSoftExpired
			return true
		}
		return false
	default:
		return false
	}
}

// htlcExpiry applies the EXPIRED transition shared by every protocol.
// isPendingCommit reports whether s.State is a post-commit, pre-claim
// positive state that can still time out on-chain.
func htlcExpiry(now time.Time, s *swapcore.Swap, isPendingCommit func(int32) bool) bool {
	if isPendingCommit(s.State) && now.After(s.HTLCExpiry) {
		s.State = Expired
		return true
	}
	return false
}

// adoptInitialize implements the Initialize event-ingestion rule shared by
// every protocol: adopt the event's swap_data (if not yet known, and the
// escrow hash matches), record the commit tx, advance to committedState.
// Returns false (no change) if s is not currently in one of
// preCommitStates.
func adoptInitialize(s *swapcore.Swap, ev chainadapter.Event, preCommitStates []int32, committedState int32) bool {
	inPreCommit := false
	for _, st := range preCommitStates {
		if s.State == st {
			inPreCommit = true
			break
		}
	}
	if !inPreCommit {
		return false
	}
	if ev.Data == nil {
		return false
	}
	if s.RealSwapData != nil {
		// Already adopted; idempotent replay.
		return false
	}
	data := *ev.Data
	s.RealSwapData = &data
	s.CommitTxID = ev.TxID
	s.CommittedAt = now()
	s.State = committedState
	return true
}

// adoptClaim implements the Claim event-ingestion rule: unless s is
// already in a terminal state that contradicts, record claim_tx_id,
// extract the preimage, advance to claimedState.
func adoptClaim(s *swapcore.Swap, ev chainadapter.Event, terminalStates []int32, claimedState int32) bool {
	for _, st := range terminalStates {
		if s.State == st {
			return false
		}
	}
	if s.ClaimTxID == ev.TxID && s.State == claimedState {
		return false
	}
	s.ClaimTxID = ev.TxID
	if len(ev.Result) == 32 {
		secret := make([]byte, 32)
		copy(secret, ev.Result)
		s.PreimageSecret = secret
	}
	s.State = claimedState
	return true
}

// adoptRefund implements the Refund event-ingestion rule: unless s is
// already a claimed terminal, record refund_tx_id and advance to
// failedState.
func adoptRefund(s *swapcore.Swap, ev chainadapter.Event, claimedStates []int32, failedState int32) bool {
	for _, st := range claimedStates {
		if s.State == st {
			return false
		}
	}
	if s.RefundTxID == ev.TxID && s.State == failedState {
		return false
	}
	s.RefundTxID = ev.TxID
	s.State = failedState
	return true
}

// forceCommitted applies a Committed on-chain status: s is advanced to
// committedState iff it is still in one of preCommitStates. A Committed
// status observed on a swap already past commit is a no-op (the status
// query is older news than what OnEvent already recorded).
func forceCommitted(s *swapcore.Swap, preCommitStates []int32, committedState int32) bool {
	for _, st := range preCommitStates {
		if s.State == st {
			s.CommittedAt = now()
			s.State = committedState
			return true
		}
	}
	return false
}

// forcePaid applies a Paid on-chain status: s is advanced to paidState
// (if not already a claimed-terminal state) and the claim tx/preimage are
// backfilled from the status, since T3 may be the only path that ever
// observed this claim (the event stream can be missed entirely across an
// offline period).
func forcePaid(s *swapcore.Swap, status chainadapter.CommitStatus, claimedStates []int32, paidState int32) bool {
	for _, st := range claimedStates {
		if s.State == st {
			return false
		}
	}
	changed := false
	if s.ClaimTxID != status.ClaimTxID {
		s.ClaimTxID = status.ClaimTxID
		changed = true
	}
	if len(status.ClaimResult) == 32 && len(s.PreimageSecret) != 32 {
		s.PreimageSecret = append([]byte(nil), status.ClaimResult...)
		changed = true
	}
	if s.State != paidState {
		s.State = paidState
		changed = true
	}
	return changed
}

func now() time.Time { return time.Now() }

// Registry maps each swapcore.SwapType to its Machine instance. Built once
// by internal/swapper and handed to internal/reconcile.
type Registry struct {
	machines map[swapcore.SwapType]Machine
}

// NewRegistry builds the registry with one machine per protocol, wired
// with the messenger needed by FROM_BTCLN_AUTO's secret rebroadcast.
// graceWindow overrides FROM_BTCLN_AUTO's default watchtower grace window
// (config.SwapConfig.WatchtowerGraceWindow, threaded through by
// internal/swapper); zero keeps the machine's own 60s default.
func NewRegistry(broadcaster SecretBroadcaster, graceWindow time.Duration) *Registry {
	r := &Registry{machines: make(map[swapcore.SwapType]Machine, 8)}
	r.register(NewFromBTCLN())
	r.register(NewFromBTCLNAuto(broadcaster).WithGraceWindow(graceWindow))
	r.register(NewFromBTC(swapcore.FromBTC))
	r.register(NewSPVVaultFromBTC())
	r.register(NewToBTC(swapcore.ToBTC, broadcaster))
	r.register(NewToBTCLN())
	r.register(NewTrustedFrom(swapcore.TrustedFromBTC))
	r.register(NewTrustedFromBTCLN())
	return r
}

func (r *Registry) register(m Machine) { r.machines[m.Type()] = m }

// For looks up the machine for a swap type.
func (r *Registry) For(t swapcore.SwapType) (Machine, error) {
	m, ok := r.machines[t]
	if !ok {
		return nil, fmt.Errorf("swapfsm: no machine registered for %s", t)
	}
	return m, nil
}
