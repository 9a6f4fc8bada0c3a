package swapfsm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/klingon-exchange/atomiq-core/internal/chainadapter"
	"github.com/klingon-exchange/atomiq-core/internal/lpclient"
	"github.com/klingon-exchange/atomiq-core/internal/swapcore"
)

func newSwap(state int32) *swapcore.Swap {
	t0 := time.Unix(0, 0)
	return &swapcore.Swap{
		ID:          "swap-1",
		State:       state,
		CreatedAt:   t0,
		QuoteSoft:   t0.Add(300 * time.Second),
		QuoteExpiry: t0.Add(600 * time.Second),
		HTLCExpiry:  t0.Add(3600 * time.Second),
	}
}

func TestFromBTCLNAuthorizationAdvancesToPRPaid(t *testing.T) {
	m := NewFromBTCLN()
	s := newSwap(PRCreated)

	changed, err := m.ApplyAuthorization(s, &lpclient.Authorization{
		State:     lpclient.AuthData,
		Data:      []byte("data"),
		Signature: []byte("sig"),
		Timeout:   123,
		Prefix:    "atomiq",
	})
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, PRPaid, s.State)
	require.Equal(t, []byte("sig"), s.SignatureBundle.Signature)
}

func TestFromBTCLNAuthDataDoesNotRetroActivateSoftExpired(t *testing.T) {
	m := NewFromBTCLN()
	s := newSwap(QuoteSoftExpired)

	changed, err := m.ApplyAuthorization(s, &lpclient.Authorization{State: lpclient.AuthData, Signature: []byte("sig")})
	require.NoError(t, err)
	require.True(t, changed) // signature bundle stored
	require.Equal(t, QuoteSoftExpired, s.State)
	require.NotNil(t, s.SignatureBundle)
}

func TestFromBTCLNAuthPendingIsNoop(t *testing.T) {
	m := NewFromBTCLN()
	s := newSwap(PRCreated)
	changed, err := m.ApplyAuthorization(s, &lpclient.Authorization{State: lpclient.AuthPending})
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, PRCreated, s.State)
}

func TestFromBTCLNCommitRequiresPRPaid(t *testing.T) {
	m := NewFromBTCLN()
	s := newSwap(PRCreated)
	require.Error(t, m.Commit(s, "tx1"))

	s.State = PRPaid
	require.NoError(t, m.Commit(s, "tx1"))
	require.Equal(t, ClaimCommited, s.State)
	require.Equal(t, "tx1", s.CommitTxID)
}

func TestFromBTCLNClaimRequiresCommit(t *testing.T) {
	m := NewFromBTCLN()
	s := newSwap(ClaimCommited)
	require.NoError(t, m.Claim(s, "claim-tx"))
	require.Equal(t, ClaimClaimed, s.State)
}

func TestFromBTCLNTickQuoteExpiry(t *testing.T) {
	m := NewFromBTCLN()
	s := newSwap(PRCreated)

	changed, err := m.Tick(s.CreatedAt.Add(301*time.Second), s)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, QuoteSoftExpired, s.State)

	changed, err = m.Tick(s.CreatedAt.Add(601*time.Second), s)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, QuoteExpired, s.State)
}

func TestFromBTCLNTickHTLCExpiry(t *testing.T) {
	m := NewFromBTCLN()
	s := newSwap(ClaimCommited)
	changed, err := m.Tick(s.HTLCExpiry.Add(time.Second), s)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, Expired, s.State)
}

func TestFromBTCLNDuplicateClaimEventIsIdempotent(t *testing.T) {
	m := NewFromBTCLN()
	s := newSwap(ClaimCommited)

	ev := chainadapter.Event{Kind: chainadapter.EventClaim, TxID: "0xcc", Result: make([]byte, 32)}
	ev.Result[0] = 0x01

	changed, err := m.OnEvent(s, ev)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, ClaimClaimed, s.State)
	secretAfterFirst := append([]byte(nil), s.PreimageSecret...)

	changed, err = m.OnEvent(s, ev)
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, ClaimClaimed, s.State)
	require.Equal(t, secretAfterFirst, s.PreimageSecret)
}
