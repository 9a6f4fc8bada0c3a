package swapfsm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/klingon-exchange/atomiq-core/internal/chainadapter"
	"github.com/klingon-exchange/atomiq-core/internal/lpclient"
	"github.com/klingon-exchange/atomiq-core/internal/swapcore"
	"github.com/klingon-exchange/atomiq-core/pkg/logging"
)

// SecretBroadcaster is the narrow capability FROM_BTCLN_AUTO needs:
// announce a revealed preimage so watchtowers can claim on the user's
// behalf. Satisfied by internal/messenger.Messenger.
type SecretBroadcaster interface {
	BroadcastClaimWitness(ctx context.Context, swapID, chainID string, paymentHash [32]byte, secret []byte) error
}

// FromBTCLNAuto drives the watchtower-settled Lightning-to-smart-chain
// protocol (§4.4.3). It shares FROM_BTCLN's positive state shape but the
// commit transition is LP-initiated (observed as an Initialize chain
// event, not a user call) and the revealed secret is rebroadcast over the
// messenger every third tick until the swap leaves CLAIM_COMMITED.
type FromBTCLNAuto struct {
	broadcaster SecretBroadcaster
	graceWindow time.Duration
	log         *logging.Logger

	mu         sync.Mutex
	tickCounts map[string]int
}

// NewFromBTCLNAuto builds the FROM_BTCLN_AUTO machine. broadcaster may be
// nil; rebroadcast is then skipped (logged, not fatal) since a missing
// messenger never blocks a manual claim after the grace window.
func NewFromBTCLNAuto(broadcaster SecretBroadcaster) *FromBTCLNAuto {
	return &FromBTCLNAuto{
		broadcaster: broadcaster,
		graceWindow: 60 * time.Second,
		log:         logging.GetDefault().Component("swapfsm.from_btcln_auto"),
		tickCounts:  make(map[string]int),
	}
}

// WithGraceWindow overrides the default watchtower grace window (wired
// from config.SwapConfig.WatchtowerGraceWindow by NewRegistry).
func (m *FromBTCLNAuto) WithGraceWindow(d time.Duration) *FromBTCLNAuto {
	if d > 0 {
		m.graceWindow = d
	}
	return m
}

func (m *FromBTCLNAuto) Type() swapcore.SwapType { return swapcore.FromBTCLNAuto }

func (m *FromBTCLNAuto) StateName(state int32) string {
	if name, ok := sharedStateName(state); ok {
		return name
	}
	switch state {
	case PRCreated:
		return "PR_CREATED"
	case PRPaid:
		return "PR_PAID"
	case ClaimCommited:
		return "CLAIM_COMMITED"
	case ClaimClaimed:
		return "CLAIM_CLAIMED"
	default:
		return "UNKNOWN"
	}
}

func (m *FromBTCLNAuto) IsTerminal(state int32) bool {
	return state == Failed || state == QuoteExpired || state == ClaimClaimed
}

func (m *FromBTCLNAuto) IsClaimedTerminal(state int32) bool { return state == ClaimClaimed }

func (m *FromBTCLNAuto) IsRefundable(state int32) bool { return false }

func (m *FromBTCLNAuto) isEarlyPositive(state int32) bool {
	return state == PRCreated || state == QuoteSoftExpired
}

// CanManualClaim reports whether the watchtower grace window has elapsed
// since commit, so the user may claim directly instead of waiting.
func (m *FromBTCLNAuto) CanManualClaim(now time.Time, s *swapcore.Swap) bool {
	return s.State == ClaimCommited && now.After(s.CommittedAt.Add(m.graceWindow))
}

func (m *FromBTCLNAuto) Tick(t time.Time, s *swapcore.Swap) (bool, error) {
	if changed := quoteExpiry(t, s, m.isEarlyPositive); changed {
		m.clearTickCount(s.ID)
		return true, nil
	}
	if changed := htlcExpiry(t, s, func(state int32) bool { return state == ClaimCommited }); changed {
		m.clearTickCount(s.ID)
		return true, nil
	}

	if s.State == ClaimCommited && len(s.PreimageSecret) == 32 {
		m.maybeRebroadcast(s)
	} else {
		m.clearTickCount(s.ID)
	}
	return false, nil
}

// maybeRebroadcast re-announces the secret every third tick while the
// swap sits in CLAIM_COMMITED, best-effort: a broadcast failure is logged
// but never turns into a state transition or an error returned to the
// caller, since the watchtower network's visibility is advisory, not a
// correctness dependency (the user can still claim manually).
func (m *FromBTCLNAuto) maybeRebroadcast(s *swapcore.Swap) {
	m.mu.Lock()
	m.tickCounts[s.ID]++
	count := m.tickCounts[s.ID]
	m.mu.Unlock()

	if count%3 != 0 {
		return
	}
	if m.broadcaster == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.broadcaster.BroadcastClaimWitness(ctx, s.ID, s.ChainID, s.PaymentHash, s.PreimageSecret); err != nil {
		m.log.Warn("secret rebroadcast failed", "swap", s.ID, "err", err)
	}
}

func (m *FromBTCLNAuto) clearTickCount(swapID string) {
	m.mu.Lock()
	delete(m.tickCounts, swapID)
	m.mu.Unlock()
}

// ApplyAuthorization mirrors FromBTCLN.ApplyAuthorization; the auth poll
// is identical across both protocols, only the commit trigger differs.
func (m *FromBTCLNAuto) ApplyAuthorization(s *swapcore.Swap, auth *lpclient.Authorization) (bool, error) {
	switch auth.State {
	case lpclient.AuthData:
		s.SignatureBundle = &swapcore.SignatureBundle{
			Prefix:    auth.Prefix,
			Timeout:   auth.Timeout,
			Signature: auth.Signature,
		}
		if s.State == PRCreated {
			s.State = PRPaid
			return true, nil
		}
		return true, nil
	case lpclient.AuthExpired:
		if s.State == PRCreated || s.State == QuoteSoftExpired {
			s.State = QuoteExpired
			return true, nil
		}
		return false, nil
	case lpclient.AuthPending:
		return false, nil
	default:
		return false, fmt.Errorf("swapfsm: unknown authorization state %d", auth.State)
	}
}

func (m *FromBTCLNAuto) ForceOnChainState(s *swapcore.Swap, status chainadapter.CommitStatus) (bool, error) {
	switch status.State {
	case chainadapter.Committed:
		return forceCommitted(s, []int32{PRPaid, QuoteSoftExpired}, ClaimCommited), nil
	case chainadapter.Paid:
		changed := forcePaid(s, status, []int32{ClaimClaimed, Failed}, ClaimClaimed)
		if changed {
			m.clearTickCount(s.ID)
		}
		return changed, nil
	case chainadapter.Expired:
		if s.State == ClaimCommited {
			s.State = Expired
			m.clearTickCount(s.ID)
			return true, nil
		}
		return false, nil
	default:
		return false, nil
	}
}

// OnEvent applies Initialize/Claim/Refund exactly as FROM_BTCLN, except
// Initialize here is always LP-initiated: the event's swap_data is the
// only source of truth for the escrow, since the user never built it.
func (m *FromBTCLNAuto) OnEvent(s *swapcore.Swap, ev chainadapter.Event) (bool, error) {
	switch ev.Kind {
	case chainadapter.EventInitialize:
		changed := adoptInitialize(s, ev, []int32{PRPaid, QuoteSoftExpired}, ClaimCommited)
		return changed, nil
	case chainadapter.EventClaim:
		changed := adoptClaim(s, ev, []int32{ClaimClaimed, Failed}, ClaimClaimed)
		if changed {
			m.clearTickCount(s.ID)
		}
		return changed, nil
	case chainadapter.EventRefund:
		changed := adoptRefund(s, ev, []int32{ClaimClaimed}, Failed)
		if changed {
			m.clearTickCount(s.ID)
		}
		return changed, nil
	default:
		return false, fmt.Errorf("swapfsm: unknown event kind %d", ev.Kind)
	}
}
