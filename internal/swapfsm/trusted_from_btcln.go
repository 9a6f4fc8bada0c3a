package swapfsm

import "github.com/klingon-exchange/atomiq-core/internal/swapcore"

// NewTrustedFromBTCLN builds the TRUSTED_FROM_BTCLN machine. The state
// shape and transitions are identical to TRUSTED_FROM_BTC (see
// trusted_from_btc.go): only the source-payment observation differs (a
// paid Lightning invoice rather than a Bitcoin transaction).
func NewTrustedFromBTCLN() *TrustedFrom { return NewTrustedFrom(swapcore.TrustedFromBTCLN) }
