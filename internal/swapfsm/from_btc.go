package swapfsm

import (
	"fmt"
	"time"

	"github.com/klingon-exchange/atomiq-core/internal/chainadapter"
	"github.com/klingon-exchange/atomiq-core/internal/swapcore"
)

// FROM_BTC (§4.4.4) positive states. The source "payment" is a Bitcoin
// on-chain transaction rather than a Lightning invoice, so there is no
// PR_CREATED/PR_PAID pair: the user's Bitcoin payment and the LP's
// committed escrow are the same observable event.
const (
	BTCInitiated int32 = 0
	BTCCommited  int32 = 1
	BTCClaimed   int32 = 2
)

// FromBTC drives the Bitcoin-on-chain-to-smart-chain protocol. The user
// sends BTC to a funding address the LP controls; once that payment and
// the LP's corresponding escrow are both observed on-chain, the swap
// behaves like FROM_BTCLN from CLAIM_COMMITED onward.
type FromBTC struct {
	swapType swapcore.SwapType
}

// NewFromBTC builds the FROM_BTC machine.
func NewFromBTC(t swapcore.SwapType) *FromBTC { return &FromBTC{swapType: t} }

func (m *FromBTC) Type() swapcore.SwapType { return m.swapType }

func (m *FromBTC) StateName(state int32) string {
	if name, ok := sharedStateName(state); ok {
		return name
	}
	switch state {
	case BTCInitiated:
		return "BTC_INITIATED"
	case BTCCommited:
		return "CLAIM_COMMITED"
	case BTCClaimed:
		return "CLAIM_CLAIMED"
	default:
		return "UNKNOWN"
	}
}

func (m *FromBTC) IsTerminal(state int32) bool {
	return state == Failed || state == QuoteExpired || state == BTCClaimed
}

func (m *FromBTC) IsClaimedTerminal(state int32) bool { return state == BTCClaimed }

func (m *FromBTC) IsRefundable(state int32) bool { return false }

func (m *FromBTC) isEarlyPositive(state int32) bool {
	return state == BTCInitiated || state == QuoteSoftExpired
}

func (m *FromBTC) Tick(now time.Time, s *swapcore.Swap) (bool, error) {
	if changed := quoteExpiry(now, s, m.isEarlyPositive); changed {
		return true, nil
	}
	if changed := htlcExpiry(now, s, func(state int32) bool { return state == BTCCommited }); changed {
		return true, nil
	}
	return false, nil
}

// Claim transitions CLAIM_COMMITED -> CLAIM_CLAIMED once the claim
// transaction on the destination chain has confirmed.
func (m *FromBTC) Claim(s *swapcore.Swap, claimTxID string) error {
	if s.State != BTCCommited {
		return fmt.Errorf("swapfsm: cannot claim from state %s", m.StateName(s.State))
	}
	s.ClaimTxID = claimTxID
	s.State = BTCClaimed
	return nil
}

func (m *FromBTC) ForceOnChainState(s *swapcore.Swap, status chainadapter.CommitStatus) (bool, error) {
	switch status.State {
	case chainadapter.Committed:
		return forceCommitted(s, []int32{BTCInitiated, QuoteSoftExpired}, BTCCommited), nil
	case chainadapter.Paid:
		return forcePaid(s, status, []int32{BTCClaimed, Failed}, BTCClaimed), nil
	case chainadapter.Expired:
		if s.State == BTCCommited {
			s.State = Expired
			return true, nil
		}
		return false, nil
	default:
		return false, nil
	}
}

func (m *FromBTC) OnEvent(s *swapcore.Swap, ev chainadapter.Event) (bool, error) {
	switch ev.Kind {
	case chainadapter.EventInitialize:
		return adoptInitialize(s, ev, []int32{BTCInitiated, QuoteSoftExpired}, BTCCommited), nil
	case chainadapter.EventClaim:
		return adoptClaim(s, ev, []int32{BTCClaimed, Failed}, BTCClaimed), nil
	case chainadapter.EventRefund:
		return adoptRefund(s, ev, []int32{BTCClaimed}, Failed), nil
	default:
		return false, fmt.Errorf("swapfsm: unknown event kind %d", ev.Kind)
	}
}
