package swapfsm

import "github.com/klingon-exchange/atomiq-core/internal/swapcore"

// NewToBTCLN builds the TO_BTCLN machine. The state shape, transitions,
// and tick/event rules are identical to TO_BTC (see to_btc.go): only the
// LP's payment-assertion mechanism differs (a settled Lightning HTLC
// rather than a Bitcoin transaction), and that lives in
// internal/chainadapter, never in this state machine.
func NewToBTCLN() *ToBTC { return NewToBTC(swapcore.ToBTCLN, nil) }
