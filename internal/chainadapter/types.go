// Package chainadapter defines the abstract Contract capability the engine
// speaks to per chain. The core never implements smart-contract bytecode
// itself — it only calls through this interface, with one concrete adapter
// per chain family.
package chainadapter

import (
	"context"

	"github.com/klingon-exchange/atomiq-core/internal/swapcore"
)

// CommitState is the on-chain lifecycle of one escrow, as reported by
// GetCommitStatus/GetCommitStatuses.
type CommitState int

const (
	NotCommitted CommitState = iota
	Committed
	Paid
	Expired
)

func (s CommitState) String() string {
	switch s {
	case NotCommitted:
		return "not_committed"
	case Committed:
		return "committed"
	case Paid:
		return "paid"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// CommitStatus is the result of querying one escrow's on-chain state.
// ClaimTxID/ClaimResult are only set when State is Paid; RefundTxID is only
// ever set when State is Expired, and only then if a refund has already
// been broadcast.
type CommitStatus struct {
	State       CommitState
	ClaimResult []byte
	ClaimTxID   string
	RefundTxID  string
}

// SwapParams is the input to CreateSwapData — the fields a quote needs
// turned into chain-specific escrow Data.
type SwapParams struct {
	Type         swapcore.SwapType
	Offerer      string
	Claimer      string
	Token        swapcore.Token
	Amount       uint64
	ClaimHash    [32]byte
	Sequence     uint64
	Expiry       int64
	PayIn        bool
	PayOut       bool
	Deposit      uint64
	DepositToken swapcore.Token
	Bounty       uint64
}

// TxSet is one or more chain transactions meant to be broadcast together
// (some chains split an operation across a pre-transaction and a main one).
type TxSet [][]byte

// Contract is the narrow capability set the engine requires of a chain.
// Grounded on internal/contracts/htlc.Client (the sole concrete
// implementation available in-repo for the EVM family), widened so a
// second family (Bitcoin-style HTLC scripts) can implement it too.
type Contract interface {
	// ChainID identifies the chain this adapter speaks for, for logging
	// and for keying per-chain verifier/hasher lookups.
	ChainID() string

	// CreateSwapData builds the opaque escrow payload for a swap. The
	// core never inspects the returned bytes; only this same Contract
	// later interprets them.
	CreateSwapData(ctx context.Context, p SwapParams) (*swapcore.SwapData, error)

	// GetHashForHTLC rehashes a payment hash into the claim hash this
	// chain's escrow actually checks against (identity for most EVM
	// chains, HASH160 for Bitcoin-family scripts).
	GetHashForHTLC(paymentHash [32]byte) [32]byte

	// IsValidDataSignature checks a signature over arbitrary bytes
	// (typically canonical escrow Data) against a claimed signer address.
	IsValidDataSignature(data []byte, signature []byte, address string) (bool, error)

	// IsValidInitAuthorization checks that an intermediary actually
	// authorized initiating a swap with this data and fee rate.
	IsValidInitAuthorization(ctx context.Context, initiator string, data *swapcore.SwapData, signature []byte, feeRate []byte) (bool, error)

	// GetCommitStatus reports one escrow's current on-chain state.
	GetCommitStatus(ctx context.Context, signer string, data *swapcore.SwapData) (CommitStatus, error)

	// GetCommitStatuses batches GetCommitStatus across many escrows in
	// one round trip where the underlying chain allows it.
	GetCommitStatuses(ctx context.Context, signer string, datas []*swapcore.SwapData) ([]CommitStatus, error)

	// TxsCommit/TxsClaimWithSecret/TxsRefund build (but do not broadcast)
	// the transaction(s) for each escrow lifecycle step. A claim's rehash
	// flag controls whether the chain is asked to verify the secret
	// against the chain-native claim hash rather than the payment hash
	// carried in Data.
	TxsCommit(ctx context.Context, signer string, data *swapcore.SwapData, feeRate []byte) (TxSet, error)
	TxsClaimWithSecret(ctx context.Context, signer string, data *swapcore.SwapData, secret [32]byte, check bool, rehash bool) (TxSet, error)
	TxsRefund(ctx context.Context, signer string, data *swapcore.SwapData, feeRate []byte) (TxSet, error)

	// GetCommitFee/GetClaimFee/GetRefundFee estimate the chain-native fee
	// for each lifecycle step, in the chain's smallest unit.
	GetCommitFee(ctx context.Context, data *swapcore.SwapData, feeRate []byte) (uint64, error)
	GetClaimFee(ctx context.Context, data *swapcore.SwapData, feeRate []byte) (uint64, error)
	GetRefundFee(ctx context.Context, data *swapcore.SwapData, feeRate []byte) (uint64, error)

	// GetInitFeeRate returns an opaque, chain-specific fee rate estimate
	// a quote can embed and later replay verbatim into the Txs* calls.
	GetInitFeeRate(ctx context.Context) ([]byte, error)
}

// Event is one escrow lifecycle notification from a chain's event stream.
type Event struct {
	Kind       EventKind
	EscrowHash [32]byte
	Data       *swapcore.SwapData
	Result     []byte
	TxID       string
}

// EventKind distinguishes the three escrow events a Contract can emit.
type EventKind int

const (
	EventInitialize EventKind = iota
	EventClaim
	EventRefund
)

// EventSource is implemented by Contract adapters that can subscribe to
// their chain's escrow events. In this package only EVMAdapter implements
// it; BitcoinAdapter does not, so its swaps are reconciled by polling
// GetCommitStatuses.
type EventSource interface {
	SubscribeEvents(ctx context.Context) (<-chan Event, error)
}
