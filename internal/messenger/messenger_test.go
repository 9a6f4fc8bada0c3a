package messenger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// inMemoryMessenger is a test double satisfying Messenger without a real
// libp2p host, mirroring what internal/swapfsm tests use to avoid
// standing up a network stack per test.
type inMemoryMessenger struct {
	published chan ClaimWitnessMessage
}

func newInMemoryMessenger() *inMemoryMessenger {
	return &inMemoryMessenger{published: make(chan ClaimWitnessMessage, 8)}
}

func (m *inMemoryMessenger) BroadcastClaimWitness(ctx context.Context, msg ClaimWitnessMessage) error {
	m.published <- msg
	return nil
}

func (m *inMemoryMessenger) Subscribe(ctx context.Context) (<-chan ClaimWitnessMessage, error) {
	return m.published, nil
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	msg := NewClaimWitness("swap-1", "aa", "bb", "ethereum-mainnet")
	data, err := Encode(msg)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, msg, decoded)
}

func TestInMemoryMessengerRoundTrip(t *testing.T) {
	m := newInMemoryMessenger()
	ctx := context.Background()

	ch, err := m.Subscribe(ctx)
	require.NoError(t, err)

	msg := NewClaimWitness("swap-2", "cc", "dd", "bitcoin-mainnet")
	require.NoError(t, m.BroadcastClaimWitness(ctx, msg))

	received := <-ch
	require.Equal(t, msg, received)
}

var _ Messenger = (*inMemoryMessenger)(nil)
