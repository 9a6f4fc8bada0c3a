// Package messenger broadcasts HTLC claim witnesses (revealed secrets) to
// watchtowers/counterparties, repurposing internal/node/swap_handler.go's
// pubsub topic/broadcast pattern from general swap-protocol messages to
// the single ClaimWitness message this engine needs (§6 "secret broadcast
// messenger").
package messenger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"time"
)

// ClaimWitnessMessage announces a revealed preimage for a swap so any
// watchtower or counterparty listening can claim or refund accordingly.
type ClaimWitnessMessage struct {
	SwapID      string `json:"swap_id"`
	PaymentHash string `json:"payment_hash"` // hex
	Secret      string `json:"secret"`       // hex
	ChainID     string `json:"chain_id"`
	Timestamp   int64  `json:"timestamp"`
}

// Messenger is the narrow capability the HTLC/PrTLC secret-broadcast path
// needs: broadcast a claim witness and subscribe to witnesses broadcast by
// others.
type Messenger interface {
	BroadcastClaimWitness(ctx context.Context, msg ClaimWitnessMessage) error
	Subscribe(ctx context.Context) (<-chan ClaimWitnessMessage, error)
}

// Encode/Decode mirror SwapMessage's JSON envelope discipline for the
// PubSub adapter in pubsub_adapter.go.
func Encode(msg ClaimWitnessMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func Decode(data []byte) (ClaimWitnessMessage, error) {
	var msg ClaimWitnessMessage
	err := json.Unmarshal(data, &msg)
	return msg, err
}

func now() int64 {
	return time.Now().Unix()
}

// NewClaimWitness builds a ClaimWitnessMessage with the current timestamp.
func NewClaimWitness(swapID, paymentHashHex, secretHex, chainID string) ClaimWitnessMessage {
	return ClaimWitnessMessage{
		SwapID:      swapID,
		PaymentHash: paymentHashHex,
		Secret:      secretHex,
		ChainID:     chainID,
		Timestamp:   now(),
	}
}

// FSMBroadcaster adapts a Messenger to internal/swapfsm's narrow
// SecretBroadcaster interface, so FROM_BTCLN_AUTO's rebroadcast loop never
// needs to know about ClaimWitnessMessage's wire shape.
type FSMBroadcaster struct {
	M Messenger
}

// BroadcastClaimWitness builds a ClaimWitnessMessage from raw fields and
// broadcasts it over the wrapped Messenger.
func (b FSMBroadcaster) BroadcastClaimWitness(ctx context.Context, swapID, chainID string, paymentHash [32]byte, secret []byte) error {
	msg := NewClaimWitness(swapID, hex.EncodeToString(paymentHash[:]), hex.EncodeToString(secret), chainID)
	return b.M.BroadcastClaimWitness(ctx, msg)
}
