// Package http relays posted events as webhook style POST requests and
// receives them on a local HTTP server.
package http

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/ssoflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "http"

var (
	errServerAddressRequired = errors.New("ssoflow: http server address is required")
	errPublisherURLRequired  = errors.New("ssoflow: http publisher URL is required")
)

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(config http.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return http.NewPublisher(config, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(addr string, config http.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return http.NewSubscriber(addr, config, logger)
}

func init() {
	Register()
}

// Register adds the HTTP transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.HTTPCapabilities)
}

// Build posts every relayed event to the publisher URL joined with its topic
// and serves subscriptions from a server bound to the configured address.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	serverAddr := cfg.GetHTTPServerAddress()
	if serverAddr == "" {
		return transport.Transport{}, errServerAddressRequired
	}
	publisherURL := cfg.GetHTTPPublisherURL()
	if publisherURL == "" {
		return transport.Transport{}, errPublisherURLRequired
	}

	publisher, err := PublisherFactory(
		http.PublisherConfig{
			MarshalMessageFunc: func(topic string, msg *message.Message) (*nethttp.Request, error) {
				return http.DefaultMarshalMessageFunc(TopicURL(publisherURL, topic), msg)
			},
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, fmt.Errorf("ssoflow: http publisher: %w", err)
	}

	subscriber, err := SubscriberFactory(
		serverAddr,
		http.SubscriberConfig{
			UnmarshalMessageFunc: http.DefaultUnmarshalMessageFunc,
		},
		logger,
	)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, fmt.Errorf("ssoflow: http subscriber: %w", err)
	}

	if s, ok := subscriber.(*http.Subscriber); ok {
		go func() {
			if err := s.StartHTTPServer(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
				logger.Error("Failed to start HTTP subscriber server", err, watermill.LogFields{"addr": serverAddr})
			}
		}()
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: pathSubscriber{subscriber},
	}, nil
}

func Capabilities() transport.Capabilities {
	return transport.HTTPCapabilities
}

// TopicURL joins the publisher base URL and a topic into one path.
func TopicURL(base, topic string) string {
	return strings.TrimSuffix(base, "/") + TopicPath(topic)
}

// TopicPath is the route a topic is served on.
func TopicPath(topic string) string {
	return "/" + strings.TrimPrefix(topic, "/")
}

// pathSubscriber routes dotted topic names to their HTTP paths.
type pathSubscriber struct {
	message.Subscriber
}

func (s pathSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return s.Subscriber.Subscribe(ctx, TopicPath(topic))
}
