package swapfsm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/klingon-exchange/atomiq-core/internal/swapcore"
)

func TestTrustedFromBTCConfirmPayoutSucceeds(t *testing.T) {
	m := NewTrustedFrom(swapcore.TrustedFromBTC)
	s := newSwap(TrustedInitiated)

	require.NoError(t, m.ConfirmPayout(s, "payout-tx"))
	require.Equal(t, TrustedPaid, s.State)
	require.True(t, m.IsClaimedTerminal(s.State))

	require.Error(t, m.ConfirmPayout(s, "again"))
}

func TestTrustedFromBTCNeverTimesOutToExpired(t *testing.T) {
	m := NewTrustedFrom(swapcore.TrustedFromBTC)
	s := newSwap(TrustedInitiated)

	changed, err := m.Tick(s.HTLCExpiry.Add(time.Second), s)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, Failed, s.State) // no escrow to refund, so the payout itself fails
}

func TestTrustedFromBTCLNConstructor(t *testing.T) {
	m := NewTrustedFromBTCLN()
	require.Equal(t, swapcore.TrustedFromBTCLN, m.Type())
}
