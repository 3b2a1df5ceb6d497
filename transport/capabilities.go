package transport

// Capabilities describes what a relay backend guarantees to subscribers.
type Capabilities struct {
	Name string

	// CrossProcess is true when events leave the current process.
	CrossProcess bool

	// SupportsOrdering indicates events on one topic arrive in publish order.
	SupportsOrdering bool

	// SupportsAck indicates subscribers acknowledge each delivery.
	SupportsAck bool

	// SupportsNack indicates a negative acknowledgement triggers redelivery.
	SupportsNack bool

	// MaxMessageSize is the largest payload in bytes (0 = unlimited/unknown).
	MaxMessageSize int64
}

// SupportsReliableDelivery reports at-least-once delivery (ack + nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

var (
	// ChannelCapabilities for the in-memory Go channel transport.
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
	}

	// NATSCapabilities for NATS Core.
	NATSCapabilities = Capabilities{
		Name:           "nats",
		CrossProcess:   true,
		MaxMessageSize: 1048576,
	}

	// KafkaCapabilities for Kafka. Ordering holds per partition.
	KafkaCapabilities = Capabilities{
		Name:             "kafka",
		CrossProcess:     true,
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		MaxMessageSize:   1048576,
	}

	// RabbitMQCapabilities for durable AMQP queues.
	RabbitMQCapabilities = Capabilities{
		Name:         "rabbitmq",
		CrossProcess: true,
		SupportsAck:  true,
		SupportsNack: true,
	}

	// HTTPCapabilities for webhook style relays. A non-2xx response fails the publish.
	HTTPCapabilities = Capabilities{
		Name:         "http",
		CrossProcess: true,
		SupportsAck:  true,
	}

	// IOCapabilities for the append-only journal file.
	IOCapabilities = Capabilities{
		Name:             "io",
		CrossProcess:     true,
		SupportsOrdering: true,
	}

	// JetStreamCapabilities for the persistent NATS JetStream stream.
	JetStreamCapabilities = Capabilities{
		Name:             "jetstream",
		CrossProcess:     true,
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		MaxMessageSize:   1048576,
	}
)

// GetCapabilities returns the capabilities registered for a transport name.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
