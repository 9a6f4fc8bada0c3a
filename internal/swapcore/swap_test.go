package swapcore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func baseSwap(t *testing.T) *Swap {
	t.Helper()
	secret, err := GenerateSecret()
	require.NoError(t, err)
	ph := PaymentHash(secret)

	now := time.Unix(1_700_000_000, 0)
	return &Swap{
		ID:             "deadbeef",
		Type:           FromBTCLN,
		PreimageSecret: secret,
		InitialSwapData: &SwapData{
			Amount:    1000,
			ClaimHash: ph,
		},
		Output:      Amount{RawAmount: 900},
		CreatedAt:   now,
		QuoteExpiry: now.Add(5 * time.Minute),
		QuoteSoft:   now.Add(4 * time.Minute),
		HTLCExpiry:  now.Add(2 * time.Hour),
	}
}

func TestCheckPreimageConsistency_OK(t *testing.T) {
	s := baseSwap(t)
	require.NoError(t, CheckPreimageConsistency(s, IdentityClaimHasher{}))
}

func TestCheckPreimageConsistency_Mismatch(t *testing.T) {
	s := baseSwap(t)
	s.InitialSwapData.ClaimHash[0] ^= 0xFF
	err := CheckPreimageConsistency(s, IdentityClaimHasher{})
	require.ErrorIs(t, err, ErrPreimageMismatch)
}

func TestCheckExpiryOrdering(t *testing.T) {
	s := baseSwap(t)
	require.NoError(t, CheckExpiryOrdering(s))

	bad := baseSwap(t)
	bad.QuoteExpiry = bad.CreatedAt.Add(-time.Second)
	require.ErrorIs(t, CheckExpiryOrdering(bad), ErrQuoteExpiryOrdering)

	badHTLC := baseSwap(t)
	badHTLC.HTLCExpiry = badHTLC.QuoteExpiry.Add(-time.Second)
	require.ErrorIs(t, CheckExpiryOrdering(badHTLC), ErrHTLCExpiryOrdering)
}

func TestCheckOutputBound(t *testing.T) {
	s := baseSwap(t)
	require.NoError(t, CheckOutputBound(s))

	s.Output.RawAmount = 1001
	require.ErrorIs(t, CheckOutputBound(s), ErrOutputExceedsSwapData)

	// ToBTC-family swaps are not bounded by this invariant.
	toBTC := baseSwap(t)
	toBTC.Type = ToBTC
	toBTC.Output.RawAmount = 5000
	require.NoError(t, CheckOutputBound(toBTC))
}

func TestCheckClaimedConsistency(t *testing.T) {
	s := baseSwap(t)
	require.NoError(t, CheckClaimedConsistency(s, false))
	require.Error(t, CheckClaimedConsistency(s, true))

	s.ClaimTxID = "txid123"
	require.NoError(t, CheckClaimedConsistency(s, true))
}

func TestCheckCommitConsistency(t *testing.T) {
	s := baseSwap(t)
	require.NoError(t, CheckCommitConsistency(s, false))
	require.Error(t, CheckCommitConsistency(s, true))

	s.RealSwapData = &SwapData{Amount: 1000, ClaimHash: s.InitialSwapData.ClaimHash}
	require.NoError(t, CheckCommitConsistency(s, true))
}

func TestValidateAtRest(t *testing.T) {
	s := baseSwap(t)
	require.NoError(t, ValidateAtRest(s, IdentityClaimHasher{}, false, false))
}

func TestCloneIsIndependent(t *testing.T) {
	s := baseSwap(t)
	clone := s.Clone()
	clone.PreimageSecret[0] ^= 0xFF
	clone.InitialSwapData.Payload = append(clone.InitialSwapData.Payload, 1, 2, 3)

	require.NotEqual(t, s.PreimageSecret[0], clone.PreimageSecret[0])
	require.Empty(t, s.InitialSwapData.Payload)
}

func TestEffectiveSwapDataPrefersReal(t *testing.T) {
	s := baseSwap(t)
	require.Equal(t, s.InitialSwapData, s.EffectiveSwapData())

	real := &SwapData{Amount: 999}
	s.RealSwapData = real
	require.Equal(t, real, s.EffectiveSwapData())
}

func TestCheckPaymentHashUnique(t *testing.T) {
	alwaysTerminal := func(*Swap) bool { return true }
	neverTerminal := func(*Swap) bool { return false }

	require.NoError(t, CheckPaymentHashUnique(nil, neverTerminal))

	existing := []*Swap{baseSwap(t)}
	require.NoError(t, CheckPaymentHashUnique(existing, alwaysTerminal))
	require.ErrorIs(t, CheckPaymentHashUnique(existing, neverTerminal), ErrPaymentHashReplay)
}

func TestNewSwapID(t *testing.T) {
	var correlator [32]byte
	correlator[0] = 1

	id, err := NewSwapID(correlator, 0)
	require.NoError(t, err)
	require.Len(t, id, 64)

	idWithNonce, err := NewSwapID(correlator, 4)
	require.NoError(t, err)
	require.Greater(t, len(idWithNonce), len(id))

	_, err = NewSwapID(correlator, 9)
	require.Error(t, err)
}
