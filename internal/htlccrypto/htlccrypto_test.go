package htlccrypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentityFamilyRoundTrip(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)

	ph := DerivePaymentHash(secret)
	claimHash := DeriveClaimHash(ph, FamilyIdentity)
	require.Equal(t, ph, claimHash)
	require.True(t, VerifyPreimage(secret, FamilyIdentity, claimHash))
}

func TestBitcoinFamilyRehashesDifferently(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)

	ph := DerivePaymentHash(secret)
	identityHash := DeriveClaimHash(ph, FamilyIdentity)
	btcHash := DeriveClaimHash(ph, FamilyBitcoinHash160)
	require.NotEqual(t, identityHash, btcHash)
	require.True(t, VerifyPreimage(secret, FamilyBitcoinHash160, btcHash))
	require.False(t, VerifyPreimage(secret, FamilyIdentity, btcHash))
}

func TestForChain(t *testing.T) {
	h, err := ForChain("bitcoin")
	require.NoError(t, err)
	require.Equal(t, FamilyBitcoinHash160, h.Family)

	h, err = ForChain("evm")
	require.NoError(t, err)
	require.Equal(t, FamilyIdentity, h.Family)

	_, err = ForChain("solana")
	require.Error(t, err)
}
