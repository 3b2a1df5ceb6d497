// Package kafka relays posted events to Kafka topics. Events of one type share
// a partition key, so every consumer group sees them in publish order.
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/ssoflow/internal/runtime/metadata"
	"github.com/drblury/ssoflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "kafka"

const (
	clientID = "ssoflow"

	// maxTopicLength is the longest topic name a broker accepts.
	maxTopicLength = 249
)

var (
	errBrokersRequired       = errors.New("ssoflow: kafka brokers are required")
	errConsumerGroupRequired = errors.New("ssoflow: kafka consumer group is required")
)

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return kafka.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return kafka.NewSubscriber(cfg, logger)
}

func init() {
	Register()
}

// Register adds the Kafka transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.KafkaCapabilities)
}

// Build creates a traced publisher and a consumer-group subscriber on cfg's
// brokers. Both only accept event topics.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	brokers := cfg.GetKafkaBrokers()
	if len(brokers) == 0 {
		return transport.Transport{}, errBrokersRequired
	}
	group := cfg.GetKafkaConsumerGroup()
	if group == "" {
		return transport.Transport{}, errConsumerGroupRequired
	}

	marshaler := kafka.NewWithPartitioningMarshaler(PartitionKey)
	tracer := kafka.NewOTELSaramaTracer()

	publisher, err := PublisherFactory(
		kafka.PublisherConfig{
			Brokers:               brokers,
			Marshaler:             marshaler,
			OverwriteSaramaConfig: publisherSaramaConfig(),
			Tracer:                tracer,
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, fmt.Errorf("ssoflow: kafka publisher: %w", err)
	}

	subscriber, err := SubscriberFactory(
		kafka.SubscriberConfig{
			Brokers:               brokers,
			Unmarshaler:           marshaler,
			ConsumerGroup:         group,
			OverwriteSaramaConfig: subscriberSaramaConfig(),
			Tracer:                tracer,
		},
		logger,
	)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, fmt.Errorf("ssoflow: kafka subscriber: %w", err)
	}

	return transport.Transport{
		Publisher:  eventPublisher{publisher},
		Subscriber: eventSubscriber{subscriber},
	}, nil
}

func Capabilities() transport.Capabilities {
	return transport.KafkaCapabilities
}

// PartitionKey keys msg by its event type, or by topic when the metadata
// carries none.
func PartitionKey(topic string, msg *message.Message) (string, error) {
	if eventType := msg.Metadata.Get(metadata.KeyEventType); eventType != "" {
		return eventType, nil
	}
	return topic, nil
}

func publisherSaramaConfig() *sarama.Config {
	c := kafka.DefaultSaramaSyncPublisherConfig()
	c.ClientID = clientID
	c.Producer.MaxMessageBytes = int(transport.KafkaCapabilities.MaxMessageSize)
	return c
}

func subscriberSaramaConfig() *sarama.Config {
	c := kafka.DefaultSaramaSubscriberConfig()
	c.ClientID = clientID
	// A new consumer group starts with the oldest retained event.
	c.Consumer.Offsets.Initial = sarama.OffsetOldest
	return c
}

// CheckTopic rejects topics outside the event stream and names a broker
// would refuse.
func CheckTopic(topic string) error {
	if err := transport.CheckEventTopic(topic); err != nil {
		return err
	}
	if len(topic) > maxTopicLength {
		return fmt.Errorf("ssoflow: kafka topic %q is longer than %d characters", topic, maxTopicLength)
	}
	for _, r := range topic {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
		default:
			return fmt.Errorf("ssoflow: kafka topic %q contains %q", topic, r)
		}
	}
	return nil
}

type eventPublisher struct {
	message.Publisher
}

func (p eventPublisher) Publish(topic string, messages ...*message.Message) error {
	if err := CheckTopic(topic); err != nil {
		return err
	}
	return p.Publisher.Publish(topic, messages...)
}

type eventSubscriber struct {
	message.Subscriber
}

func (s eventSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if err := CheckTopic(topic); err != nil {
		return nil, err
	}
	return s.Subscriber.Subscribe(ctx, topic)
}
