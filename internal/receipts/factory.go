package receipts

import (
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/holopos/pkg/config"
	"github.com/angelmondragon/holopos/pkg/logger"
)

// PubSubSource hands out the receipts topic publisher; pkg/pubsub.Client
// satisfies it.
type PubSubSource interface {
	ReceiptsPublisher() *gcppubsub.Publisher
}

// FromConfig picks the publisher named by the receipts driver. The returned
// close func is never nil.
func FromConfig(cfg *config.Config, ps PubSubSource, logg *logger.Logger) (Publisher, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Receipts.Driver {
	case config.ReceiptsDriverLog, "":
		return NewLogPublisher(logg), noop, nil
	case config.ReceiptsDriverKafka:
		pub, err := NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.ReceiptsTopic)
		if err != nil {
			return nil, noop, err
		}
		return pub, pub.Close, nil
	case config.ReceiptsDriverPubSub:
		if ps == nil {
			return nil, noop, fmt.Errorf("receipts driver %q requires a pubsub client", cfg.Receipts.Driver)
		}
		p := ps.ReceiptsPublisher()
		pub, err := NewPubSubPublisher(p)
		if err != nil {
			return nil, noop, err
		}
		return pub, func() error { p.Stop(); return nil }, nil
	default:
		return nil, noop, fmt.Errorf("unsupported receipts driver %q", cfg.Receipts.Driver)
	}
}
