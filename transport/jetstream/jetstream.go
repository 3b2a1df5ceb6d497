// Package jetstream relays posted events through a NATS JetStream stream so
// they survive restarts and can be replayed by late subscribers.
package jetstream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"

	"github.com/drblury/ssoflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "jetstream"

const (
	// DefaultStreamName is the stream holding every relayed event.
	DefaultStreamName = "SSOFLOW_EVENTS"

	DefaultMaxDeliver = 3
	DefaultAckWait    = 30 * time.Second
	DefaultMaxAge     = 7 * 24 * time.Hour

	fetchBatch = 10
	fetchWait  = time.Second
)

var (
	errURLRequired = errors.New("ssoflow: nats URL is required")
	errClosed      = errors.New("ssoflow: jetstream transport is closed")
)

// Connect allows overriding the NATS connection for testing.
var Connect = func(url string, opts ...nats.Option) (*nats.Conn, error) {
	return nats.Connect(url, opts...)
}

func init() {
	Register()
}

// Register adds the JetStream transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.JetStreamCapabilities)
}

// Build connects to cfg's NATS URL and ensures the event stream exists.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	t, err := New(Config{URL: cfg.GetNATSURL()}, logger)
	if err != nil {
		return transport.Transport{}, err
	}
	return transport.Transport{
		Publisher:  t,
		Subscriber: t,
	}, nil
}

func Capabilities() transport.Capabilities {
	return transport.JetStreamCapabilities
}

// Config holds the JetStream settings.
type Config struct {
	URL        string
	StreamName string
	// Replay delivers every stored event to new subscribers instead of only
	// the ones published after they subscribed.
	Replay     bool
	MaxDeliver int
	AckWait    time.Duration
	MaxAge     time.Duration
	Replicas   int
}

func (c Config) withDefaults() Config {
	if c.StreamName == "" {
		c.StreamName = DefaultStreamName
	}
	if c.MaxDeliver <= 0 {
		c.MaxDeliver = DefaultMaxDeliver
	}
	if c.AckWait <= 0 {
		c.AckWait = DefaultAckWait
	}
	if c.MaxAge <= 0 {
		c.MaxAge = DefaultMaxAge
	}
	if c.Replicas <= 0 {
		c.Replicas = 1
	}
	return c
}

func (c Config) streamConfig() *nats.StreamConfig {
	return &nats.StreamConfig{
		Name:      c.StreamName,
		Subjects:  []string{transport.EventTopicPrefix + ">"},
		Retention: nats.LimitsPolicy,
		MaxAge:    c.MaxAge,
		Replicas:  c.Replicas,
	}
}

// Transport implements message.Publisher and message.Subscriber on JetStream.
type Transport struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	config Config
	logger watermill.LoggerAdapter

	mu     sync.Mutex
	subs   []*nats.Subscription
	closed bool
	done   chan struct{}
}

// New connects and creates or updates the event stream.
func New(cfg Config, logger watermill.LoggerAdapter) (*Transport, error) {
	if cfg.URL == "" {
		return nil, errURLRequired
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	cfg = cfg.withDefaults()

	nc, err := Connect(cfg.URL, nats.Name("ssoflow"))
	if err != nil {
		return nil, fmt.Errorf("ssoflow: connect to NATS: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ssoflow: JetStream context: %w", err)
	}

	streamCfg := cfg.streamConfig()
	if _, err := js.AddStream(streamCfg); err != nil {
		if _, updateErr := js.UpdateStream(streamCfg); updateErr != nil {
			nc.Close()
			return nil, fmt.Errorf("ssoflow: ensure stream %s: %w", cfg.StreamName, errors.Join(err, updateErr))
		}
	}

	return &Transport{
		nc:     nc,
		js:     js,
		config: cfg,
		logger: logger,
		done:   make(chan struct{}),
	}, nil
}

// Publish stores messages on the stream. The topic is used as the subject.
func (t *Transport) Publish(topic string, messages ...*message.Message) error {
	if t.isClosed() {
		return errClosed
	}
	if err := checkTopic(topic); err != nil {
		return err
	}
	for _, msg := range messages {
		if _, err := t.js.PublishMsg(toNATS(topic, msg)); err != nil {
			return fmt.Errorf("ssoflow: publish to JetStream: %w", err)
		}
	}
	return nil
}

// Subscribe creates an ephemeral pull consumer for topic and streams its
// messages until ctx is done or the transport closes.
func (t *Transport) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if t.isClosed() {
		return nil, errClosed
	}
	if err := checkTopic(topic); err != nil {
		return nil, err
	}

	opts := []nats.SubOpt{
		nats.BindStream(t.config.StreamName),
		nats.AckExplicit(),
		nats.MaxDeliver(t.config.MaxDeliver),
		nats.AckWait(t.config.AckWait),
	}
	if t.config.Replay {
		opts = append(opts, nats.DeliverAll())
	} else {
		opts = append(opts, nats.DeliverNew())
	}

	sub, err := t.js.PullSubscribe(topic, "", opts...)
	if err != nil {
		return nil, fmt.Errorf("ssoflow: subscribe %s: %w", topic, err)
	}

	t.mu.Lock()
	t.subs = append(t.subs, sub)
	t.mu.Unlock()

	output := make(chan *message.Message)
	go t.fetch(ctx, sub, output, topic)
	return output, nil
}

func (t *Transport) fetch(ctx context.Context, sub *nats.Subscription, output chan<- *message.Message, topic string) {
	defer close(output)
	defer func() { _ = sub.Unsubscribe() }()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		default:
		}

		msgs, err := sub.Fetch(fetchBatch, nats.MaxWait(fetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				return
			}
			t.logger.Error("Failed to fetch messages", err, watermill.LogFields{"topic": topic})
			continue
		}

		for _, natsMsg := range msgs {
			wm := fromNATS(natsMsg)
			select {
			case output <- wm:
			case <-ctx.Done():
				_ = natsMsg.Nak()
				return
			}
			select {
			case <-wm.Acked():
				if err := natsMsg.Ack(); err != nil {
					t.logger.Error("Failed to ack", err, watermill.LogFields{"topic": topic})
				}
			case <-wm.Nacked():
				if err := natsMsg.Nak(); err != nil {
					t.logger.Error("Failed to nak", err, watermill.LogFields{"topic": topic})
				}
			case <-ctx.Done():
				return
			}
		}
	}
}

// Close drains subscriptions and closes the connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	subs := t.subs
	t.subs = nil
	t.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrBadSubscription) {
			errs = append(errs, err)
		}
	}
	t.nc.Close()
	return errors.Join(errs...)
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func checkTopic(topic string) error {
	return transport.CheckEventTopic(topic)
}

// toNATS copies metadata into headers. The message UUID doubles as the
// JetStream de-duplication ID.
func toNATS(subject string, msg *message.Message) *nats.Msg {
	header := nats.Header{}
	for k, v := range msg.Metadata {
		header.Set(k, v)
	}
	header.Set(nats.MsgIdHdr, msg.UUID)
	return &nats.Msg{Subject: subject, Data: msg.Payload, Header: header}
}

func fromNATS(natsMsg *nats.Msg) *message.Message {
	id := natsMsg.Header.Get(nats.MsgIdHdr)
	if id == "" {
		id = watermill.NewULID()
	}
	wm := message.NewMessage(id, natsMsg.Data)
	for k, v := range natsMsg.Header {
		if k == nats.MsgIdHdr || len(v) == 0 {
			continue
		}
		wm.Metadata.Set(k, v[0])
	}
	return wm
}
