package messenger

import (
	"context"
	"fmt"

	pubsub "github.com/libp2p/go-libp2p-pubsub"

	"github.com/klingon-exchange/atomiq-core/pkg/logging"
)

// ClaimWitnessTopic is the gossip topic claim witnesses are broadcast on,
// named in the same "/<project>/<concern>/<version>" shape as
// node.SwapTopic.
const ClaimWitnessTopic = "/atomiq/claim-witness/1.0.0"

// PubSubMessenger implements Messenger over an existing libp2p-pubsub
// instance. Grounded on internal/node/swap_handler.go's topic join +
// publish/subscribe loop, narrowed to one topic and one message type.
type PubSubMessenger struct {
	topic *pubsub.Topic
	log   *logging.Logger
}

// NewPubSubMessenger joins ClaimWitnessTopic on an already-constructed
// pubsub.PubSub (the caller owns the underlying libp2p host/node, the
// same way node.Node owns its pubsub instance).
func NewPubSubMessenger(ps *pubsub.PubSub) (*PubSubMessenger, error) {
	topic, err := ps.Join(ClaimWitnessTopic)
	if err != nil {
		return nil, fmt.Errorf("messenger: join topic: %w", err)
	}
	return &PubSubMessenger{
		topic: topic,
		log:   logging.GetDefault().Component("messenger"),
	}, nil
}

// BroadcastClaimWitness publishes a claim witness to every subscriber.
func (m *PubSubMessenger) BroadcastClaimWitness(ctx context.Context, msg ClaimWitnessMessage) error {
	data, err := Encode(msg)
	if err != nil {
		return fmt.Errorf("messenger: encode: %w", err)
	}
	if err := m.topic.Publish(ctx, data); err != nil {
		return fmt.Errorf("messenger: publish: %w", err)
	}
	return nil
}

// Subscribe returns a channel of incoming claim witnesses. The channel is
// closed when ctx is cancelled or the subscription errors out.
func (m *PubSubMessenger) Subscribe(ctx context.Context) (<-chan ClaimWitnessMessage, error) {
	sub, err := m.topic.Subscribe()
	if err != nil {
		return nil, fmt.Errorf("messenger: subscribe: %w", err)
	}

	out := make(chan ClaimWitnessMessage, 16)
	go func() {
		defer close(out)
		defer sub.Cancel()
		for {
			pmsg, err := sub.Next(ctx)
			if err != nil {
				if ctx.Err() == nil {
					m.log.Debug("claim witness subscription ended", "error", err)
				}
				return
			}
			msg, err := Decode(pmsg.Data)
			if err != nil {
				m.log.Debug("dropping malformed claim witness", "error", err)
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close releases the joined topic.
func (m *PubSubMessenger) Close() error {
	return m.topic.Close()
}
