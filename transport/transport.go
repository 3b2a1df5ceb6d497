// Package transport defines the relay backends the event bus publishes
// posted events on. Each backend lives in its own sub-package and registers
// itself with the transport registry.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// EventTopicPrefix prefixes every topic the event bus publishes on.
const EventTopicPrefix = "ssoflow.events."

// CheckEventTopic rejects topics that do not name an event type under
// EventTopicPrefix.
func CheckEventTopic(topic string) error {
	if !strings.HasPrefix(topic, EventTopicPrefix) || len(topic) == len(EventTopicPrefix) {
		return fmt.Errorf("ssoflow: topic %q is outside the event stream", topic)
	}
	return nil
}

// Transport combines a publisher and subscriber pair produced by a builder.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close closes both sides. A pub/sub sharing one value is closed once.
func (t Transport) Close() error {
	var errs []error
	if t.Publisher != nil {
		errs = append(errs, t.Publisher.Close())
	}
	if t.Subscriber != nil && any(t.Subscriber) != any(t.Publisher) {
		errs = append(errs, t.Subscriber.Close())
	}
	return errors.Join(errs...)
}

// Builder creates a transport from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config exposes only the settings transports read.
type Config interface {
	// GetEventBusTransport returns the registered transport name.
	GetEventBusTransport() string

	GetNATSURL() string

	GetKafkaBrokers() []string
	GetKafkaConsumerGroup() string

	GetRabbitMQURL() string

	// GetHTTPServerAddress is the listen address for relayed events.
	GetHTTPServerAddress() string
	// GetHTTPPublisherURL is the base URL events are POSTed to. The topic is appended.
	GetHTTPPublisherURL() string

	// GetJournalFile is the JSON-lines file the io transport appends to.
	GetJournalFile() string
}

// CapabilitiesProvider is implemented by transports that can report their capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}
