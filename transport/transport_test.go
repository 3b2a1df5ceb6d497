package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConfig struct {
	transport string
	natsURL   string
}

func (m *mockConfig) GetEventBusTransport() string  { return m.transport }
func (m *mockConfig) GetNATSURL() string            { return m.natsURL }
func (m *mockConfig) GetKafkaBrokers() []string     { return nil }
func (m *mockConfig) GetKafkaConsumerGroup() string { return "" }
func (m *mockConfig) GetRabbitMQURL() string        { return "" }
func (m *mockConfig) GetHTTPServerAddress() string  { return "" }
func (m *mockConfig) GetHTTPPublisherURL() string   { return "" }
func (m *mockConfig) GetJournalFile() string        { return "" }

type mockPubSub struct {
	closed   int
	closeErr error
}

func (m *mockPubSub) Publish(string, ...*message.Message) error { return nil }

func (m *mockPubSub) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	ch := make(chan *message.Message)
	close(ch)
	return ch, nil
}

func (m *mockPubSub) Close() error {
	m.closed++
	return m.closeErr
}

func mockBuilder(ps *mockPubSub) Builder {
	return func(context.Context, Config, watermill.LoggerAdapter) (Transport, error) {
		return Transport{Publisher: ps, Subscriber: ps}, nil
	}
}

func TestTransportCloseSharedPubSubOnce(t *testing.T) {
	shared := &mockPubSub{}
	require.NoError(t, Transport{Publisher: shared, Subscriber: shared}.Close())
	assert.Equal(t, 1, shared.closed)

	pub, sub := &mockPubSub{}, &mockPubSub{closeErr: errors.New("sub close")}
	err := Transport{Publisher: pub, Subscriber: sub}.Close()
	assert.EqualError(t, err, "sub close")
	assert.Equal(t, 1, pub.closed)
	assert.Equal(t, 1, sub.closed)

	assert.NoError(t, Transport{}.Close())
}

func TestRegistryBuildsByName(t *testing.T) {
	reg := NewRegistry()
	ps := &mockPubSub{}
	reg.RegisterWithCapabilities("Channel", mockBuilder(ps), Capabilities{Name: "channel", SupportsOrdering: true})

	assert.True(t, reg.Has("channel"))
	assert.Equal(t, []string{"channel"}, reg.Names())
	assert.True(t, reg.GetCapabilities("CHANNEL").SupportsOrdering)

	tr, err := reg.Build(context.Background(), &mockConfig{transport: "channel"}, nil)
	require.NoError(t, err)
	assert.Same(t, ps, tr.Publisher)
}

func TestRegistryBuildErrors(t *testing.T) {
	reg := NewRegistry()
	reg.Register("b", mockBuilder(&mockPubSub{}))
	reg.Register("a", mockBuilder(&mockPubSub{}))

	_, err := reg.Build(context.Background(), nil, nil)
	assert.Error(t, err)

	_, err = reg.Build(context.Background(), &mockConfig{transport: "kafka"}, watermill.NopLogger{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown transport "kafka" (registered: a, b)`)
}

func TestUnknownCapabilitiesCarryName(t *testing.T) {
	reg := NewRegistry()
	caps := reg.GetCapabilities("custom")
	assert.Equal(t, Capabilities{Name: "custom"}, caps)
}

func TestCapabilitiesReliableDelivery(t *testing.T) {
	assert.True(t, ChannelCapabilities.SupportsReliableDelivery())
	assert.False(t, NATSCapabilities.SupportsReliableDelivery())
	assert.True(t, NATSCapabilities.CrossProcess)
	assert.False(t, ChannelCapabilities.CrossProcess)
	assert.True(t, JetStreamCapabilities.SupportsReliableDelivery())
	assert.True(t, JetStreamCapabilities.CrossProcess)
}

func TestCheckEventTopic(t *testing.T) {
	assert.NoError(t, CheckEventTopic(EventTopicPrefix+"login.Response"))
	assert.Error(t, CheckEventTopic(EventTopicPrefix))
	assert.Error(t, CheckEventTopic("orders.created"))
}
