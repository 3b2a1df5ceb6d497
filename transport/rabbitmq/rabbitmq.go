// Package rabbitmq relays posted events through durable AMQP queues. Every
// event type gets its own fanout exchange, and deliveries carry the event
// type and content type as AMQP properties.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/drblury/ssoflow/internal/runtime/metadata"
	"github.com/drblury/ssoflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "rabbitmq"

const appID = "ssoflow"

var errURLRequired = errors.New("ssoflow: rabbitmq URL is required")

// ConnectionFactory allows overriding the connection creation for testing.
var ConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
	return amqp.NewConnection(cfg, logger)
}

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Publisher, error) {
	return amqp.NewPublisherWithConnection(cfg, logger, conn)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
	return amqp.NewSubscriberWithConnection(cfg, logger, conn)
}

func init() {
	Register()
}

// Register adds the RabbitMQ transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.RabbitMQCapabilities)
}

// Build shares one reconnecting AMQP connection between publisher and subscriber.
// Every topic gets its own durable fanout exchange and a queue named after it.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetRabbitMQURL()
	if url == "" {
		return transport.Transport{}, errURLRequired
	}

	amqpConfig := NewConfig(url)

	conn, err := ConnectionFactory(amqp.ConnectionConfig{
		AmqpURI:   url,
		Reconnect: amqp.DefaultReconnectConfig(),
	}, logger)
	if err != nil {
		return transport.Transport{}, fmt.Errorf("ssoflow: rabbitmq connection: %w", err)
	}

	publisher, err := PublisherFactory(amqpConfig, logger, conn)
	if err != nil {
		return transport.Transport{}, fmt.Errorf("ssoflow: rabbitmq publisher: %w", err)
	}

	subscriber, err := SubscriberFactory(amqpConfig, logger, conn)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, fmt.Errorf("ssoflow: rabbitmq subscriber: %w", err)
	}

	return transport.Transport{
		Publisher:  eventPublisher{publisher},
		Subscriber: eventSubscriber{subscriber},
	}, nil
}

// NewConfig returns the durable pub/sub layout for url. Subscribers of one
// event type share the queue named after its topic.
func NewConfig(url string) amqp.Config {
	c := amqp.NewDurablePubSubConfig(url, amqp.GenerateQueueNameTopicName)
	c.Marshaler = amqp.DefaultMarshaler{PostprocessPublishing: EventProperties}
	return c
}

// EventProperties copies the relay metadata headers into the matching AMQP
// properties.
func EventProperties(p amqp091.Publishing) amqp091.Publishing {
	p.AppId = appID
	p.Type = headerString(p.Headers, metadata.KeyEventType)
	p.MessageId = headerString(p.Headers, metadata.KeyEventID)
	p.ContentType = headerString(p.Headers, metadata.KeyContentType)
	return p
}

func headerString(headers amqp091.Table, key string) string {
	v, _ := headers[key].(string)
	return v
}

type eventPublisher struct {
	message.Publisher
}

func (p eventPublisher) Publish(topic string, messages ...*message.Message) error {
	if err := transport.CheckEventTopic(topic); err != nil {
		return err
	}
	return p.Publisher.Publish(topic, messages...)
}

type eventSubscriber struct {
	message.Subscriber
}

func (s eventSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if err := transport.CheckEventTopic(topic); err != nil {
		return nil, err
	}
	return s.Subscriber.Subscribe(ctx, topic)
}

func Capabilities() transport.Capabilities {
	return transport.RabbitMQCapabilities
}
