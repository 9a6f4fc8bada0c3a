package swapfsm

import (
	"time"

	"github.com/klingon-exchange/atomiq-core/internal/chainadapter"
	"github.com/klingon-exchange/atomiq-core/internal/swapcore"
)

// SPVVaultFromBTC drives the SPV-vault variant of FROM_BTC (§4.4.4): the
// destination is a UTXO-controlled vault whose spending policy is enforced
// by SPV proofs on the smart chain, and the LP's wrapper returns a PSBT
// skeleton that leaves the LP-output amount open for the user's own
// coin-selection before signing. The state shape is otherwise identical
// to FromBTC; only PSBT construction differs, and that lives entirely in
// internal/chainadapter, never in this state machine.
type SPVVaultFromBTC struct {
	inner *FromBTC
}

// NewSPVVaultFromBTC builds the SPV_VAULT_FROM_BTC machine.
func NewSPVVaultFromBTC() *SPVVaultFromBTC {
	return &SPVVaultFromBTC{inner: NewFromBTC(swapcore.SPVVaultFromBTC)}
}

func (m *SPVVaultFromBTC) Type() swapcore.SwapType { return swapcore.SPVVaultFromBTC }

func (m *SPVVaultFromBTC) StateName(state int32) string { return m.inner.StateName(state) }

func (m *SPVVaultFromBTC) IsTerminal(state int32) bool { return m.inner.IsTerminal(state) }

func (m *SPVVaultFromBTC) IsClaimedTerminal(state int32) bool {
	return m.inner.IsClaimedTerminal(state)
}

func (m *SPVVaultFromBTC) IsRefundable(state int32) bool { return m.inner.IsRefundable(state) }

func (m *SPVVaultFromBTC) Tick(now time.Time, s *swapcore.Swap) (bool, error) {
	return m.inner.Tick(now, s)
}

// Claim transitions CLAIM_COMMITED -> CLAIM_CLAIMED once the PSBT's
// key-path spend confirms on the vault's controlling chain.
func (m *SPVVaultFromBTC) Claim(s *swapcore.Swap, claimTxID string) error {
	return m.inner.Claim(s, claimTxID)
}

func (m *SPVVaultFromBTC) OnEvent(s *swapcore.Swap, ev chainadapter.Event) (bool, error) {
	return m.inner.OnEvent(s, ev)
}

func (m *SPVVaultFromBTC) ForceOnChainState(s *swapcore.Swap, status chainadapter.CommitStatus) (bool, error) {
	return m.inner.ForceOnChainState(s, status)
}

var _ Machine = (*SPVVaultFromBTC)(nil)
