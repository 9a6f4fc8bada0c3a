package swapfsm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/klingon-exchange/atomiq-core/internal/chainadapter"
	"github.com/klingon-exchange/atomiq-core/internal/swapcore"
	"github.com/klingon-exchange/atomiq-core/pkg/logging"
)

// TO_BTC/TO_BTCLN (§4.4.5) positive states, plus REFUNDABLE branching off
// either COMMITED or SOFT_CLAIMED once the LP's output deadline passes
// without a claim.
const (
	Created     int32 = 0
	Commited    int32 = 1
	SoftClaimed int32 = 2
	Claimed     int32 = 3
	Refundable  int32 = 4
	Refunded    int32 = 5
)

// ToBTC drives both the smart-chain-to-Bitcoin-on-chain and
// smart-chain-to-Lightning protocols: the user funds a PrTLC/HTLC escrow,
// the LP asserts payment (SOFT_CLAIMED) before the on-chain claim is
// observed (CLAIMED), and the user may refund once the LP's deadline
// passes unclaimed. The two protocols differ only in how the LP proves
// payment (a Bitcoin tx vs. a settled Lightning HTLC) — a difference that
// lives entirely in internal/chainadapter, never in this state shape.
type ToBTC struct {
	swapType    swapcore.SwapType
	broadcaster SecretBroadcaster
	log         *logging.Logger

	mu         sync.Mutex
	tickCounts map[string]int
}

// NewToBTC builds the machine for either TO_BTC or TO_BTCLN. broadcaster
// may be nil; rebroadcast is then skipped (logged, not fatal), since the
// LP can always discover the preimage this engine generated by other
// means (a direct request, a shared escrow indexer) — the messenger only
// speeds up its on-chain claim.
func NewToBTC(t swapcore.SwapType, broadcaster SecretBroadcaster) *ToBTC {
	return &ToBTC{
		swapType:    t,
		broadcaster: broadcaster,
		log:         logging.GetDefault().Component("swapfsm.to_btc"),
		tickCounts:  make(map[string]int),
	}
}

func (m *ToBTC) Type() swapcore.SwapType { return m.swapType }

func (m *ToBTC) StateName(state int32) string {
	if name, ok := sharedStateName(state); ok {
		return name
	}
	switch state {
	case Created:
		return "CREATED"
	case Commited:
		return "COMMITED"
	case SoftClaimed:
		return "SOFT_CLAIMED"
	case Claimed:
		return "CLAIMED"
	case Refundable:
		return "REFUNDABLE"
	case Refunded:
		return "REFUNDED"
	default:
		return "UNKNOWN"
	}
}

func (m *ToBTC) IsTerminal(state int32) bool {
	return state == Failed || state == QuoteExpired || state == Claimed || state == Refunded
}

func (m *ToBTC) IsClaimedTerminal(state int32) bool { return state == Claimed }

func (m *ToBTC) IsRefundable(state int32) bool { return state == Refundable }

func (m *ToBTC) isEarlyPositive(state int32) bool {
	return state == Created || state == QuoteSoftExpired
}

func (m *ToBTC) Tick(t time.Time, s *swapcore.Swap) (bool, error) {
	if changed := quoteExpiry(t, s, m.isEarlyPositive); changed {
		m.clearTickCount(s.ID)
		return true, nil
	}
	if (s.State == Commited || s.State == SoftClaimed) && t.After(s.HTLCExpiry) {
		s.State = Refundable
		m.clearTickCount(s.ID)
		return true, nil
	}

	if s.State == SoftClaimed && m.swapType == swapcore.ToBTC && len(s.PreimageSecret) == 32 {
		m.maybeRebroadcast(s)
	} else {
		m.clearTickCount(s.ID)
	}
	return false, nil
}

// maybeRebroadcast re-announces this engine's own preimage once the LP
// has asserted payment on Bitcoin (SOFT_CLAIMED), so the LP's claim
// transaction on the smart chain doesn't have to wait on an out-of-band
// request for the secret. Best-effort, like FROM_BTCLN_AUTO's rebroadcast:
// a failure here never blocks the LP's own claim path, which can also
// request the secret directly.
func (m *ToBTC) maybeRebroadcast(s *swapcore.Swap) {
	m.mu.Lock()
	m.tickCounts[s.ID]++
	count := m.tickCounts[s.ID]
	m.mu.Unlock()

	if count%3 != 1 {
		return
	}
	if m.broadcaster == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.broadcaster.BroadcastClaimWitness(ctx, s.ID, s.ChainID, s.PaymentHash, s.PreimageSecret); err != nil {
		m.log.Warn("secret broadcast failed", "swap", s.ID, "err", err)
	}
}

func (m *ToBTC) clearTickCount(swapID string) {
	m.mu.Lock()
	delete(m.tickCounts, swapID)
	m.mu.Unlock()
}

// Commit transitions CREATED -> COMMITED once the user's escrow-funding
// transaction has broadcast.
func (m *ToBTC) Commit(s *swapcore.Swap, commitTxID string) error {
	if s.State != Created {
		return fmt.Errorf("swapfsm: cannot commit from state %s", m.StateName(s.State))
	}
	s.CommitTxID = commitTxID
	s.CommittedAt = now()
	s.State = Commited
	return nil
}

// AssertSoftClaim records the LP's off-chain payment assertion (e.g. a
// settled Lightning HTLC) ahead of the corresponding on-chain claim.
func (m *ToBTC) AssertSoftClaim(s *swapcore.Swap) error {
	if s.State != Commited {
		return fmt.Errorf("swapfsm: cannot soft-claim from state %s", m.StateName(s.State))
	}
	s.State = SoftClaimed
	return nil
}

// Refund transitions REFUNDABLE -> REFUNDED once the user's refund
// transaction confirms.
func (m *ToBTC) Refund(s *swapcore.Swap, refundTxID string) error {
	if s.State != Refundable {
		return fmt.Errorf("swapfsm: cannot refund from state %s", m.StateName(s.State))
	}
	s.RefundTxID = refundTxID
	s.State = Refunded
	return nil
}

func (m *ToBTC) ForceOnChainState(s *swapcore.Swap, status chainadapter.CommitStatus) (bool, error) {
	switch status.State {
	case chainadapter.Committed:
		return forceCommitted(s, []int32{Created, QuoteSoftExpired}, Commited), nil
	case chainadapter.Paid:
		return forcePaid(s, status, []int32{Claimed, Refunded, Failed}, Claimed), nil
	case chainadapter.Expired:
		if s.State == Commited || s.State == SoftClaimed {
			s.State = Refundable
			return true, nil
		}
		return false, nil
	default:
		return false, nil
	}
}

func (m *ToBTC) OnEvent(s *swapcore.Swap, ev chainadapter.Event) (bool, error) {
	switch ev.Kind {
	case chainadapter.EventInitialize:
		return adoptInitialize(s, ev, []int32{Created, QuoteSoftExpired}, Commited), nil
	case chainadapter.EventClaim:
		// CLAIMED extracts preimage_secret from the claim event; for
		// TO_BTCLN this is also the Lightning HTLC preimage.
		return adoptClaim(s, ev, []int32{Claimed, Refunded, Failed}, Claimed), nil
	case chainadapter.EventRefund:
		if s.State == Claimed {
			return false, nil
		}
		s.RefundTxID = ev.TxID
		if s.State == Refunded {
			return false, nil
		}
		s.State = Refunded
		return true, nil
	default:
		return false, fmt.Errorf("swapfsm: unknown event kind %d", ev.Kind)
	}
}
