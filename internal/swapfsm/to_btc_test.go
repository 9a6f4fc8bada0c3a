package swapfsm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/klingon-exchange/atomiq-core/internal/chainadapter"
	"github.com/klingon-exchange/atomiq-core/internal/swapcore"
)

func TestToBTCCommitAndSoftClaim(t *testing.T) {
	m := NewToBTC(swapcore.ToBTC, nil)
	s := newSwap(Created)

	require.NoError(t, m.Commit(s, "commit-tx"))
	require.Equal(t, Commited, s.State)

	require.NoError(t, m.AssertSoftClaim(s))
	require.Equal(t, SoftClaimed, s.State)

	require.Error(t, m.Commit(s, "again")) // cannot re-commit
}

func TestToBTCRefundScenario(t *testing.T) {
	// commit, no LP claim by deadline -> REFUNDABLE -> Refund -> REFUNDED.
	m := NewToBTC(swapcore.ToBTC, nil)
	s := newSwap(Created)
	require.NoError(t, m.Commit(s, "commit-tx"))

	changed, err := m.Tick(s.HTLCExpiry.Add(time.Second), s)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, Refundable, s.State)
	require.True(t, m.IsRefundable(s.State))

	require.NoError(t, m.Refund(s, "refund-tx"))
	require.Equal(t, Refunded, s.State)
	require.Equal(t, "refund-tx", s.RefundTxID)

	refundEvent := chainadapter.Event{Kind: chainadapter.EventRefund, TxID: "refund-tx"}
	changed, err = m.OnEvent(s, refundEvent)
	require.NoError(t, err)
	require.False(t, changed) // already REFUNDED with matching tx, idempotent
}

func TestToBTCClaimEventExtractsPreimage(t *testing.T) {
	m := NewToBTC(swapcore.ToBTCLN, nil)
	s := newSwap(Commited)

	secret := make([]byte, 32)
	secret[0] = 0xAB
	ev := chainadapter.Event{Kind: chainadapter.EventClaim, TxID: "claim-tx", Result: secret}

	changed, err := m.OnEvent(s, ev)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, Claimed, s.State)
	require.Equal(t, secret, s.PreimageSecret)
	require.True(t, m.IsClaimedTerminal(s.State))
}

func TestToBTCLNSharesToBTCShape(t *testing.T) {
	m := NewToBTCLN()
	require.Equal(t, swapcore.ToBTCLN, m.Type())
	require.Equal(t, "CREATED", m.StateName(Created))
}

// TestToBTCRebroadcastsSecretOnceSoftClaimed covers the messenger wiring
// create.go documents: once the LP asserts Bitcoin payment, this engine
// rebroadcasts the preimage it generated at quote time so the LP's claim
// on the smart chain doesn't wait on an out-of-band request.
func TestToBTCRebroadcastsSecretOnceSoftClaimed(t *testing.T) {
	b := &stubBroadcaster{}
	m := NewToBTC(swapcore.ToBTC, b)
	s := newSwap(Commited)
	s.PreimageSecret = make([]byte, 32)
	s.PreimageSecret[0] = 0x42
	require.NoError(t, m.AssertSoftClaim(s))
	beforeDeadline := s.HTLCExpiry.Add(-time.Second)

	_, err := m.Tick(beforeDeadline, s)
	require.NoError(t, err)
	require.Len(t, b.calls, 1)

	_, err = m.Tick(beforeDeadline, s)
	require.NoError(t, err)
	require.Len(t, b.calls, 1) // not every tick
}

// TestToBTCLNNeverBroadcastsSecret covers the one case create.go's Secret
// custody note calls out: TO_BTCLN's preimage is settled by the Lightning
// protocol itself, so this machine must never forward it over the
// messenger even if a broadcaster is wired in.
func TestToBTCLNNeverBroadcastsSecret(t *testing.T) {
	b := &stubBroadcaster{}
	m := NewToBTC(swapcore.ToBTCLN, b)
	s := newSwap(Commited)
	s.PreimageSecret = make([]byte, 32)
	require.NoError(t, m.AssertSoftClaim(s))

	_, err := m.Tick(s.HTLCExpiry.Add(-time.Second), s)
	require.NoError(t, err)
	require.Empty(t, b.calls)
}
