package swapfsm

import (
	"fmt"
	"time"

	"github.com/klingon-exchange/atomiq-core/internal/chainadapter"
	"github.com/klingon-exchange/atomiq-core/internal/swapcore"
)

// TRUSTED_FROM_BTC/TRUSTED_FROM_BTCLN positive states. These two protocols
// are named without a detailed state shape; "trusted" means the LP
// pays the destination leg directly on its own custodial rail once the
// source payment is confirmed, with no on-chain escrow to commit or
// refund — so there is no COMMITED step, only the source payment
// (TrustedInitiated) and the LP's payout (TrustedPaid).
const (
	TrustedInitiated int32 = 0
	TrustedPaid      int32 = 1
)

// TrustedFrom drives both trusted variants: the user's Bitcoin (on-chain
// or Lightning) payment is observed, the LP is trusted to pay out the
// destination leg without an on-chain escrow, and the swap settles the
// moment that payout is confirmed. There is no refund path: a trusted
// swap that never pays out is only ever quote-expired or failed.
type TrustedFrom struct {
	swapType swapcore.SwapType
}

// NewTrustedFrom builds the machine for either TRUSTED_FROM_BTC or
// TRUSTED_FROM_BTCLN.
func NewTrustedFrom(t swapcore.SwapType) *TrustedFrom { return &TrustedFrom{swapType: t} }

func (m *TrustedFrom) Type() swapcore.SwapType { return m.swapType }

func (m *TrustedFrom) StateName(state int32) string {
	if name, ok := sharedStateName(state); ok {
		return name
	}
	switch state {
	case TrustedInitiated:
		return "TRUSTED_INITIATED"
	case TrustedPaid:
		return "TRUSTED_PAID"
	default:
		return "UNKNOWN"
	}
}

func (m *TrustedFrom) IsTerminal(state int32) bool {
	return state == Failed || state == QuoteExpired || state == TrustedPaid
}

func (m *TrustedFrom) IsClaimedTerminal(state int32) bool { return state == TrustedPaid }

func (m *TrustedFrom) IsRefundable(state int32) bool { return false }

func (m *TrustedFrom) isEarlyPositive(state int32) bool {
	return state == TrustedInitiated || state == QuoteSoftExpired
}

func (m *TrustedFrom) Tick(now time.Time, s *swapcore.Swap) (bool, error) {
	// No escrow, so no EXPIRED branch: htlc_expiry here instead marks the
	// trusted payout itself as failed if the LP never pays within the
	// window the quote promised. Checked before quote expiry, which would
	// otherwise always win since the quote deadlines come first.
	if s.State == TrustedInitiated && now.After(s.HTLCExpiry) {
		s.State = Failed
		return true, nil
	}
	if changed := quoteExpiry(now, s, m.isEarlyPositive); changed {
		return true, nil
	}
	return false, nil
}

// ConfirmPayout records the LP's direct payout once observed (e.g. a
// webhook/poll confirms the destination-chain transfer landed).
func (m *TrustedFrom) ConfirmPayout(s *swapcore.Swap, claimTxID string) error {
	if s.State != TrustedInitiated {
		return fmt.Errorf("swapfsm: cannot confirm payout from state %s", m.StateName(s.State))
	}
	s.ClaimTxID = claimTxID
	s.State = TrustedPaid
	return nil
}

// ForceOnChainState only applies the Paid status: trusted variants have
// no on-chain escrow, so Committed/Expired never apply to them. T3
// reconciliation skips trusted swaps for status queries in practice
// (there is no Contract escrow to query), but this stays total in case a
// caller passes one anyway.
func (m *TrustedFrom) ForceOnChainState(s *swapcore.Swap, status chainadapter.CommitStatus) (bool, error) {
	if status.State != chainadapter.Paid {
		return false, nil
	}
	return forcePaid(s, status, []int32{TrustedPaid, Failed}, TrustedPaid), nil
}

func (m *TrustedFrom) OnEvent(s *swapcore.Swap, ev chainadapter.Event) (bool, error) {
	switch ev.Kind {
	case chainadapter.EventClaim:
		return adoptClaim(s, ev, []int32{TrustedPaid, Failed}, TrustedPaid), nil
	case chainadapter.EventInitialize, chainadapter.EventRefund:
		// Trusted variants have no on-chain escrow to initialize or
		// refund; these events never apply here.
		return false, nil
	default:
		return false, fmt.Errorf("swapfsm: unknown event kind %d", ev.Kind)
	}
}
