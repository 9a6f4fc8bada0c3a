// Package htlccrypto implements the hash-preimage discipline shared
// across every protocol: secret generation, payment-hash derivation, and
// the per-chain H_claim rehash wrapper used to turn a Lightning payment
// hash into the correlator an on-chain HTLC/PrTLC contract actually
// stores. Generalized from a single Bitcoin-family script builder into
// the chain-family dispatch described in §3.
package htlccrypto

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // required for the Bitcoin HASH160 rehash variant

	"github.com/klingon-exchange/atomiq-core/internal/swapcore"
)

// ChainFamily selects which H_claim rehash a chain's HTLC contract expects.
type ChainFamily int

const (
	// FamilyIdentity is used by chains whose on-chain correlator is the raw
	// Lightning payment hash (most EVM HTLCs in this codebase).
	FamilyIdentity ChainFamily = iota
	// FamilyBitcoinHash160 rehashes via HASH160 (sha256 then ripemd160), the
	// wrapper Bitcoin-script HTLCs use so the redeem script can reuse the
	// same opcode sequence as a P2PKH/P2WPKH spend.
	FamilyBitcoinHash160
)

// Hasher implements swapcore.ClaimHasher for a given chain family.
type Hasher struct {
	Family ChainFamily
}

// ClaimHash applies this chain family's H_claim wrapper to a payment hash.
func (h Hasher) ClaimHash(paymentHash [32]byte) [32]byte {
	switch h.Family {
	case FamilyBitcoinHash160:
		return hash160As32(paymentHash)
	default:
		return paymentHash
	}
}

func hash160As32(in [32]byte) [32]byte {
	sha := sha256.Sum256(in[:])
	r := ripemd160.New()
	r.Write(sha[:])
	digest := r.Sum(nil)
	var out [32]byte
	copy(out[:], digest) // ripemd160 digest is 20 bytes; zero-padded on the right to 32
	return out
}

var _ swapcore.ClaimHasher = Hasher{}

// ForChain resolves the H_claim family for a chain symbol (mirrors
// internal/chain.ChainType's Bitcoin/EVM split).
func ForChain(chainType string) (Hasher, error) {
	switch chainType {
	case "bitcoin":
		return Hasher{Family: FamilyBitcoinHash160}, nil
	case "evm":
		return Hasher{Family: FamilyIdentity}, nil
	default:
		return Hasher{}, fmt.Errorf("htlccrypto: unsupported chain type %q", chainType)
	}
}

// GenerateSecret produces a fresh 32-byte preimage. Thin re-export of
// swapcore.GenerateSecret so callers outside swapcore don't need to import
// it solely for secret generation during swap creation.
func GenerateSecret() ([]byte, error) {
	return swapcore.GenerateSecret()
}

// DerivePaymentHash computes sha256(secret), the Lightning-side correlator.
func DerivePaymentHash(secret []byte) [32]byte {
	return swapcore.PaymentHash(secret)
}

// DeriveClaimHash computes H_claim(payment_hash) for the given chain family,
// the value stored as swap_data.claim_hash on-chain.
func DeriveClaimHash(paymentHash [32]byte, family ChainFamily) [32]byte {
	return Hasher{Family: family}.ClaimHash(paymentHash)
}

// VerifyPreimage checks that secret hashes (through the chain's H_claim
// wrapper) to the expected claim hash.
func VerifyPreimage(secret []byte, family ChainFamily, claimHash [32]byte) bool {
	ph := DerivePaymentHash(secret)
	return DeriveClaimHash(ph, family) == claimHash
}
