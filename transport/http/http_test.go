package http

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	watermillhttp "github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/ssoflow/transport"
)

type mockConfig struct {
	httpServerAddress string
	httpPublisherURL  string
}

func (m *mockConfig) GetEventBusTransport() string  { return TransportName }
func (m *mockConfig) GetNATSURL() string            { return "" }
func (m *mockConfig) GetKafkaBrokers() []string     { return nil }
func (m *mockConfig) GetKafkaConsumerGroup() string { return "" }
func (m *mockConfig) GetRabbitMQURL() string        { return "" }
func (m *mockConfig) GetHTTPServerAddress() string  { return m.httpServerAddress }
func (m *mockConfig) GetHTTPPublisherURL() string   { return m.httpPublisherURL }
func (m *mockConfig) GetJournalFile() string        { return "" }

type mockPublisher struct{ closed bool }

func (m *mockPublisher) Publish(string, ...*message.Message) error { return nil }
func (m *mockPublisher) Close() error {
	m.closed = true
	return nil
}

type mockSubscriber struct{ topics []string }

func (m *mockSubscriber) Subscribe(_ context.Context, topic string) (<-chan *message.Message, error) {
	m.topics = append(m.topics, topic)
	return make(chan *message.Message), nil
}
func (m *mockSubscriber) Close() error { return nil }

func validConfig() *mockConfig {
	return &mockConfig{
		httpServerAddress: ":8090",
		httpPublisherURL:  "http://relay.internal:8090/",
	}
}

func TestRegister(t *testing.T) {
	original := transport.DefaultRegistry
	t.Cleanup(func() { transport.DefaultRegistry = original })

	transport.DefaultRegistry = transport.NewRegistry()
	Register()

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "http", caps.Name)
	assert.True(t, caps.CrossProcess)
	assert.False(t, caps.SupportsReliableDelivery())
	assert.Equal(t, transport.HTTPCapabilities, Capabilities())
}

func TestTopicURL(t *testing.T) {
	assert.Equal(t, "http://relay.internal:8090/ssoflow.events.login.Response",
		TopicURL("http://relay.internal:8090/", "ssoflow.events.login.Response"))
	assert.Equal(t, "http://relay.internal/ssoflow.events.x", TopicURL("http://relay.internal", "ssoflow.events.x"))
	assert.Equal(t, "/ssoflow.events.x", TopicPath("/ssoflow.events.x"))
}

func TestBuild(t *testing.T) {
	stub := func(t *testing.T, pub message.Publisher, pubErr error, sub message.Subscriber, subErr error) *watermillhttp.PublisherConfig {
		t.Helper()
		originalPub, originalSub := PublisherFactory, SubscriberFactory
		t.Cleanup(func() {
			PublisherFactory = originalPub
			SubscriberFactory = originalSub
		})
		var captured watermillhttp.PublisherConfig
		PublisherFactory = func(config watermillhttp.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
			captured = config
			return pub, pubErr
		}
		SubscriberFactory = func(addr string, _ watermillhttp.SubscriberConfig, _ watermill.LoggerAdapter) (message.Subscriber, error) {
			assert.Equal(t, ":8090", addr)
			return sub, subErr
		}
		return &captured
	}

	t.Run("posts to topic url and subscribes on topic path", func(t *testing.T) {
		pub, sub := &mockPublisher{}, &mockSubscriber{}
		captured := stub(t, pub, nil, sub, nil)

		tr, err := Build(context.Background(), validConfig(), watermill.NopLogger{})
		require.NoError(t, err)
		assert.Same(t, pub, tr.Publisher)

		req, err := captured.MarshalMessageFunc("ssoflow.events.login.Response", message.NewMessage("01HZX", []byte(`{"ok":true}`)))
		require.NoError(t, err)
		assert.Equal(t, "http://relay.internal:8090/ssoflow.events.login.Response", req.URL.String())
		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		assert.Equal(t, `{"ok":true}`, string(body))

		_, err = tr.Subscriber.Subscribe(context.Background(), "ssoflow.events.login.Response")
		require.NoError(t, err)
		assert.Equal(t, []string{"/ssoflow.events.login.Response"}, sub.topics)
	})

	t.Run("requires addresses", func(t *testing.T) {
		_, err := Build(context.Background(), &mockConfig{httpPublisherURL: "http://x"}, watermill.NopLogger{})
		assert.ErrorIs(t, err, errServerAddressRequired)

		_, err = Build(context.Background(), &mockConfig{httpServerAddress: ":8090"}, watermill.NopLogger{})
		assert.ErrorIs(t, err, errPublisherURLRequired)
	})

	t.Run("publisher failure", func(t *testing.T) {
		boom := errors.New("publisher error")
		stub(t, nil, boom, nil, nil)

		_, err := Build(context.Background(), validConfig(), watermill.NopLogger{})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("subscriber failure closes publisher", func(t *testing.T) {
		pub := &mockPublisher{}
		boom := errors.New("subscriber error")
		stub(t, pub, nil, nil, boom)

		_, err := Build(context.Background(), validConfig(), watermill.NopLogger{})
		assert.ErrorIs(t, err, boom)
		assert.True(t, pub.closed)
	})
}
