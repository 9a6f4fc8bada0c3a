package swapcore

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// ClaimHasher wraps a chain's H_claim rehash (§3: "the chain's HTLC-hash
// wrapper (often identity, sometimes a chain-specific rehash)"). Chain
// adapters in internal/chainadapter supply the real implementation; the
// core only ever calls through this narrow interface.
type ClaimHasher interface {
	ClaimHash(paymentHash [32]byte) [32]byte
}

// IdentityClaimHasher is the identity H_claim used by chains whose HTLC
// correlator is the Lightning payment hash itself (e.g. most EVM HTLCs in
// this codebase).
type IdentityClaimHasher struct{}

func (IdentityClaimHasher) ClaimHash(paymentHash [32]byte) [32]byte { return paymentHash }

// PaymentHash derives sha256(secret), the Lightning-side correlator (§3).
func PaymentHash(secret []byte) [32]byte {
	return sha256.Sum256(secret)
}

// GenerateSecret produces a fresh 32-byte preimage secret.
func GenerateSecret() ([]byte, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	return secret, nil
}

// NewSwapID derives the content-addressed swap identifier from the
// correlator hash (claim_hash or payment_hash, per-protocol choice) plus an
// optional random nonce to disambiguate re-creations (§6 "Swap identifier").
func NewSwapID(correlator [32]byte, nonceLen int) (string, error) {
	if nonceLen < 0 || nonceLen > 8 {
		return "", errors.New("swapcore: nonce length must be 0..8")
	}
	id := hex.EncodeToString(correlator[:])
	if nonceLen == 0 {
		return id, nil
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate id nonce: %w", err)
	}
	return id + "-" + hex.EncodeToString(nonce), nil
}

// Invariant errors, checked against a swap's data at rest (§3).
var (
	ErrClaimedWithoutTxID     = errors.New("swapcore: claimed-terminal swap missing claim_tx_id")
	ErrCommitWithoutRealData  = errors.New("swapcore: CLAIM_COMMITED without real swap_data")
	ErrPreimageMismatch       = errors.New("swapcore: preimage does not hash to claim_hash")
	ErrQuoteExpiryOrdering    = errors.New("swapcore: quote_expiry must be after created_at")
	ErrHTLCExpiryOrdering     = errors.New("swapcore: htlc_expiry must be after quote_expiry")
	ErrOutputExceedsSwapData  = errors.New("swapcore: output exceeds swap_data amount")
	ErrPaymentHashReplay      = errors.New("swapcore: payment_hash already used by a non-terminal swap of this type")
)

// CheckPaymentHashUnique enforces that (type, payment_hash) is unique
// across non-terminal swaps, preventing replay of an already-in-flight
// correlator (most pointed at TO_BTCLN, where payment_hash comes from a
// caller-supplied bolt11 invoice rather than a secret this engine
// generated itself). existing must already be filtered down to swaps
// sharing the same type and payment_hash; isTerminal reports whether a
// given one of them has closed out.
func CheckPaymentHashUnique(existing []*Swap, isTerminal func(*Swap) bool) error {
	for _, sw := range existing {
		if !isTerminal(sw) {
			return ErrPaymentHashReplay
		}
	}
	return nil
}

// CheckPreimageConsistency enforces that whenever PreimageSecret is set,
// H_claim(sha256(secret)) must equal the swap_data claim hash.
func CheckPreimageConsistency(s *Swap, hasher ClaimHasher) error {
	if len(s.PreimageSecret) == 0 {
		return nil
	}
	data := s.EffectiveSwapData()
	if data == nil {
		return nil
	}
	ph := PaymentHash(s.PreimageSecret)
	if hasher.ClaimHash(ph) != data.ClaimHash {
		return ErrPreimageMismatch
	}
	return nil
}

// CheckExpiryOrdering enforces that quote_expiry > created_at, and (once the
// escrow is created) htlc_expiry > quote_expiry.
func CheckExpiryOrdering(s *Swap) error {
	if !s.QuoteExpiry.After(s.CreatedAt) {
		return ErrQuoteExpiryOrdering
	}
	if !s.HTLCExpiry.IsZero() && !s.HTLCExpiry.After(s.QuoteExpiry) {
		return ErrHTLCExpiryOrdering
	}
	return nil
}

// CheckOutputBound enforces, for BTC->smart swaps, that output.raw_amount must
// not exceed swap_data.amount (the LP may add epsilon, never subtract).
func CheckOutputBound(s *Swap) error {
	if !s.Type.IsFromBTC() {
		return nil
	}
	data := s.EffectiveSwapData()
	if data == nil {
		return nil
	}
	if s.Output.RawAmount > data.Amount {
		return ErrOutputExceedsSwapData
	}
	return nil
}
