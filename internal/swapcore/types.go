// Package swapcore defines the swap entity shared by every protocol: the
// tagged swap record, its derived identities, and the invariants the
// store and state machines must preserve across restarts.
package swapcore

import "time"

// SwapType is the stable, small-int protocol tag (kept stable for
// serialization across process versions, following the enum convention
// in internal/storage/swaps.go).
type SwapType uint8

const (
	FromBTC SwapType = iota
	FromBTCLN
	ToBTC
	ToBTCLN
	TrustedFromBTC
	TrustedFromBTCLN
	SPVVaultFromBTC
	FromBTCLNAuto
)

func (t SwapType) String() string {
	switch t {
	case FromBTC:
		return "FROM_BTC"
	case FromBTCLN:
		return "FROM_BTCLN"
	case ToBTC:
		return "TO_BTC"
	case ToBTCLN:
		return "TO_BTCLN"
	case TrustedFromBTC:
		return "TRUSTED_FROM_BTC"
	case TrustedFromBTCLN:
		return "TRUSTED_FROM_BTCLN"
	case SPVVaultFromBTC:
		return "SPV_VAULT_FROM_BTC"
	case FromBTCLNAuto:
		return "FROM_BTCLN_AUTO"
	default:
		return "UNKNOWN"
	}
}

// IsFromBTC reports whether funds originate on the Bitcoin side.
func (t SwapType) IsFromBTC() bool {
	switch t {
	case FromBTC, FromBTCLN, TrustedFromBTC, TrustedFromBTCLN, SPVVaultFromBTC, FromBTCLNAuto:
		return true
	default:
		return false
	}
}

// TokenKind distinguishes on-chain Bitcoin, Lightning, and smart-chain tokens.
type TokenKind uint8

const (
	TokenBitcoinOnChain TokenKind = iota
	TokenBitcoinLightning
	TokenSmartChain
)

// Token identifies what is being exchanged on one leg of the swap.
type Token struct {
	Kind TokenKind

	// Populated when Kind == TokenSmartChain.
	ChainID  string
	Address  string
	Decimals uint8
}

// Amount pairs a token with a raw (smallest-unit) quantity.
type Amount struct {
	Token     Token
	RawAmount uint64
}

// SwapData is the chain-native escrow representation. Per §9 ("any-typed
// payload fields"), the core never inspects Payload; it is opaque bytes
// serialized/deserialized by the chain adapter that produced it.
type SwapData struct {
	Offerer    string
	Claimer    string
	Token      Token
	Amount     uint64
	ClaimHash  [32]byte
	Sequence   uint64
	Expiry     int64 // unix seconds
	PayIn      bool
	PayOut     bool
	Deposit    uint64
	DepositTok Token
	Bounty     uint64

	// Payload is the chain-specific encoding of the above (and anything
	// else the chain adapter needs); never inspected by the core.
	Payload []byte
}

// Fees records every fee component tracked on a swap.
type Fees struct {
	SwapFeeSats    uint64
	GasDropFeeSats uint64
	NetworkFeeSats uint64
	WatchtowerSats uint64
}

// PricingInfo records the quote's price and whether it is still considered
// valid against the oracle.
type PricingInfo struct {
	BaseFeeSats       uint64
	FeePPM            uint64
	QuotedMicroSatPer float64
	ObservedMicroSat  float64
	Valid             bool
	USDPerBTCAtQuote  float64
}

// LNURLState tracks an in-flight LNURL-withdraw/LNURL-pay interaction.
type LNURLState struct {
	LNURL    string
	K1       string
	Callback string
	Posted   bool
}

// SignatureBundle is an LP-issued authorization for on-chain init.
type SignatureBundle struct {
	Prefix    string
	Timeout   int64
	Signature []byte
}

// Swap is the central, protocol-tagged entity (§3). State is carried as a
// raw int32 here; each swapfsm package defines its own typed enum over the
// same shared axis (§4.4.1) and casts to/from this field when persisting.
type Swap struct {
	ID               string
	Type             SwapType
	State            int32
	ChainID          string
	InitiatorAddress string

	Input  Amount
	Output Amount

	InitialSwapData *SwapData // proposed, from the LP
	RealSwapData    *SwapData // confirmed, from an on-chain event

	Fees        Fees
	PricingInfo PricingInfo

	PreimageSecret []byte // 32 bytes, optional
	PaymentHash    [32]byte
	PaymentHashSet bool

	PaymentRequest string // bolt11, optional
	LNURL          *LNURLState

	SignatureBundle *SignatureBundle

	CreatedAt    time.Time
	QuoteExpiry  time.Time
	QuoteSoft    time.Time
	HTLCExpiry   time.Time
	CommittedAt  time.Time

	CommitTxID string
	ClaimTxID  string
	RefundTxID string
}

// EffectiveSwapData returns RealSwapData if confirmed on-chain, else the
// LP-proposed InitialSwapData.
func (s *Swap) EffectiveSwapData() *SwapData {
	if s.RealSwapData != nil {
		return s.RealSwapData
	}
	return s.InitialSwapData
}
