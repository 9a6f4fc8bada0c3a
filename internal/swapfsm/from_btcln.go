package swapfsm

import (
	"fmt"
	"time"

	"github.com/klingon-exchange/atomiq-core/internal/chainadapter"
	"github.com/klingon-exchange/atomiq-core/internal/lpclient"
	"github.com/klingon-exchange/atomiq-core/internal/swapcore"
)

// FROM_BTCLN (§4.4.2) positive states, user-initiated commit/claim.
const (
	PRCreated     int32 = 0
	PRPaid        int32 = 1
	ClaimCommited int32 = 2
	ClaimClaimed  int32 = 3
)

// FromBTCLN drives the legacy Lightning-to-smart-chain protocol: the user
// pays a bolt11 invoice the LP returns, the LP's payment authorization is
// polled and verified, then the user commits and claims on-chain
// sequentially (commit confirmation before claim, so the preimage is
// never broadcast before the escrow exists).
type FromBTCLN struct {
	swapType swapcore.SwapType
}

// NewFromBTCLN builds the FROM_BTCLN machine.
func NewFromBTCLN() *FromBTCLN { return &FromBTCLN{swapType: swapcore.FromBTCLN} }

func (m *FromBTCLN) Type() swapcore.SwapType { return m.swapType }

func (m *FromBTCLN) StateName(state int32) string {
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

func (m *FromBTCLN) IsTerminal(state int32) bool {
	return state == Failed || state == QuoteExpired || state == ClaimClaimed
}

func (m *FromBTCLN) IsClaimedTerminal(state int32) bool { return state == ClaimClaimed }

func (m *FromBTCLN) IsRefundable(state int32) bool { return false }

func (m *FromBTCLN) isEarlyPositive(state int32) bool {
	return state == PRCreated || state == QuoteSoftExpired
}

func (m *FromBTCLN) Tick(now time.Time, s *swapcore.Swap) (bool, error) {
	if changed := quoteExpiry(now, s, m.isEarlyPositive); changed {
		return true, nil
	}
	if changed := htlcExpiry(now, s, func(state int32) bool { return state == ClaimCommited }); changed {
		return true, nil
	}
	return false, nil
}

// ApplyAuthorization applies a polled get_payment_authorization result
// (§4.4.2): AUTH_DATA advances PR_CREATED -> PR_PAID and stores the
// signature bundle (also accepted, but never promoted, from
// QUOTE_SOFT_EXPIRED per the "accept, do not retro-activate" decision);
// EXPIRED forces QUOTE_EXPIRED; PENDING is a no-op.
func (m *FromBTCLN) ApplyAuthorization(s *swapcore.Swap, auth *lpclient.Authorization) (bool, error) {
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
		// QUOTE_SOFT_EXPIRED (or any other state): authorization stored
		// for a future commit, but no automatic promotion.
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

// Commit transitions PR_PAID -> CLAIM_COMMITED once the caller has
// broadcast the init transaction and observed its confirmation.
func (m *FromBTCLN) Commit(s *swapcore.Swap, commitTxID string) error {
	if s.State != PRPaid {
		return fmt.Errorf("swapfsm: cannot commit from state %s", m.StateName(s.State))
	}
	s.CommitTxID = commitTxID
	s.CommittedAt = now()
	s.State = ClaimCommited
	return nil
}

// Claim transitions CLAIM_COMMITED -> CLAIM_CLAIMED once the claim
// transaction (revealing the secret) has confirmed.
func (m *FromBTCLN) Claim(s *swapcore.Swap, claimTxID string) error {
	if s.State != ClaimCommited {
		return fmt.Errorf("swapfsm: cannot claim from state %s", m.StateName(s.State))
	}
	s.ClaimTxID = claimTxID
	s.State = ClaimClaimed
	return nil
}

func (m *FromBTCLN) ForceOnChainState(s *swapcore.Swap, status chainadapter.CommitStatus) (bool, error) {
	switch status.State {
	case chainadapter.Committed:
		return forceCommitted(s, []int32{PRPaid, QuoteSoftExpired}, ClaimCommited), nil
	case chainadapter.Paid:
		return forcePaid(s, status, []int32{ClaimClaimed, Failed}, ClaimClaimed), nil
	case chainadapter.Expired:
		if s.State == ClaimCommited {
			s.State = Expired
			return true, nil
		}
		return false, nil
	default:
		return false, nil
	}
}

func (m *FromBTCLN) OnEvent(s *swapcore.Swap, ev chainadapter.Event) (bool, error) {
	switch ev.Kind {
	case chainadapter.EventInitialize:
		return adoptInitialize(s, ev, []int32{PRPaid, QuoteSoftExpired}, ClaimCommited), nil
	case chainadapter.EventClaim:
		return adoptClaim(s, ev, []int32{ClaimClaimed, Failed}, ClaimClaimed), nil
	case chainadapter.EventRefund:
		return adoptRefund(s, ev, []int32{ClaimClaimed}, Failed), nil
	default:
		return false, fmt.Errorf("swapfsm: unknown event kind %d", ev.Kind)
	}
}
