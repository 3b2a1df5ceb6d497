package runtime

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/drblury/ssoflow/internal/runtime/dispatch"
	errspkg "github.com/drblury/ssoflow/internal/runtime/errors"
	"github.com/drblury/ssoflow/internal/runtime/event"
	"github.com/drblury/ssoflow/internal/runtime/ids"
	"github.com/drblury/ssoflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/ssoflow/internal/runtime/logging"
	"github.com/drblury/ssoflow/internal/runtime/metadata"
	"github.com/drblury/ssoflow/internal/runtime/session"
	"github.com/drblury/ssoflow/transport"
	_ "github.com/drblury/ssoflow/transport/transports"
)

// TopicPrefix prefixes every topic the event bus publishes on.
const TopicPrefix = transport.EventTopicPrefix

const (
	contentTypeJSON      = "application/json"
	contentTypeProtoJSON = "application/protojson"
)

var protoJSONMarshalOptions = protojson.MarshalOptions{
	EmitUnpopulated: true,
}

var topicReplacer = strings.NewReplacer(
	"*", "ptr_",
	"/", "_",
	" ", "_",
	"[", "_",
	"]", "_",
	",", "_",
	">", "_",
)

// TopicFor returns the topic events of type t are relayed on.
func TopicFor(t event.Type) string {
	return TopicPrefix + topicReplacer.Replace(t.String())
}

// EventBusDependencies holds optional collaborators of an EventBus.
type EventBusDependencies struct {
	// TransportRegistry defaults to transport.DefaultRegistry.
	TransportRegistry *transport.Registry
	// Session is used by Post. Defaults to a session for Config.Protocol.
	Session *session.Context
}

// EventBus dispatches posted events to local handlers and relays a JSON copy
// on the configured transport.
type EventBus struct {
	dispatcher *Dispatcher
	transport  transport.Transport
	caps       transport.Capabilities
	session    *session.Context

	mu     sync.RWMutex
	closed bool
}

// NewEventBus builds the transport named by Config.EventBusTransport.
func NewEventBus(ctx context.Context, d *Dispatcher, deps EventBusDependencies) (*EventBus, error) {
	if d == nil {
		return nil, errspkg.ErrDispatcherRequired
	}
	reg := deps.TransportRegistry
	if reg == nil {
		reg = transport.DefaultRegistry
	}

	t, err := reg.Build(ctx, d.Conf, loggingpkg.NewWatermillAdapter(d.Logger))
	if err != nil {
		return nil, err
	}

	bus := &EventBus{
		dispatcher: d,
		transport:  t,
		caps:       reg.GetCapabilities(d.Conf.GetEventBusTransport()),
		session:    deps.Session,
	}
	if bus.session == nil {
		bus.session = d.NewSession(d.Conf.Protocol)
	}
	bus.Attach(bus.session)
	return bus, nil
}

// Capabilities describes the transport behind the bus.
func (b *EventBus) Capabilities() transport.Capabilities {
	return b.caps
}

// Attach makes sc.Post route through the bus with sc as the handler session.
func (b *EventBus) Attach(sc *session.Context) {
	if sc != nil {
		sc.Poster = sessionPoster{bus: b, session: sc}
	}
}

type sessionPoster struct {
	bus     *EventBus
	session *session.Context
}

func (p sessionPoster) Post(ctx context.Context, msg event.Message) error {
	_, err := p.bus.PostFrom(ctx, p.session, msg)
	return err
}

// Post dispatches msg with the bus session and relays it. Handler failures
// are logged by the dispatcher and do not fail Post.
func (b *EventBus) Post(ctx context.Context, msg event.Message) error {
	_, err := b.PostFrom(ctx, b.session, msg)
	return err
}

// PostFrom dispatches msg with sc and relays it. It returns one result per
// matched handler, and an error only when relaying failed.
func (b *EventBus) PostFrom(ctx context.Context, sc *session.Context, msg event.Message) ([]dispatch.Result, error) {
	if msg.IsZero() {
		return nil, errspkg.ErrEventTypeRequired
	}
	if msg.Payload() == nil {
		return nil, errspkg.ErrEventPayloadRequired
	}

	if b.isClosed() {
		return nil, errspkg.ErrEventBusClosed
	}
	if sc == nil {
		sc = b.session
	}

	results := b.dispatcher.DispatchEvent(ctx, sc, msg)

	wm, err := b.newMessage(msg, sc.ActiveProtocol(b.dispatcher.Conf.Protocol).String())
	if err != nil {
		return results, err
	}
	wm.SetContext(ctx)

	topic := TopicFor(msg.Type())
	if err := b.transport.Publisher.Publish(topic, wm); err != nil {
		b.dispatcher.Logger.Error("Failed to relay event", err, loggingpkg.LogFields{
			"topic":    topic,
			"event_id": wm.UUID,
		})
		return results, fmt.Errorf("ssoflow: relay %s: %w", msg.Type(), err)
	}
	return results, nil
}

func (b *EventBus) newMessage(msg event.Message, protocolName string) (*message.Message, error) {
	payload, contentType, err := encodePayload(msg.Payload())
	if err != nil {
		return nil, fmt.Errorf("ssoflow: encode %s: %w", msg.Type(), err)
	}

	id := ids.New()
	md := msg.Metadata.WithAll(metadata.New(
		metadata.KeyEventType, msg.Type().String(),
		metadata.KeyEventID, id,
		metadata.KeyProtocol, protocolName,
		metadata.KeyContentType, contentType,
	))

	wm := message.NewMessage(id, payload)
	wm.Metadata = metadata.ToWatermill(md)
	return wm, nil
}

func encodePayload(payload any) ([]byte, string, error) {
	if pm, ok := payload.(proto.Message); ok {
		data, err := protoJSONMarshalOptions.Marshal(pm)
		return data, contentTypeProtoJSON, err
	}
	data, err := jsoncodec.Marshal(payload)
	return data, contentTypeJSON, err
}

func (b *EventBus) isClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

// Close closes the transport. Later posts fail with ErrEventBusClosed.
func (b *EventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.transport.Close()
}

// Delivery is one relayed event received from the bus.
type Delivery[E any] struct {
	ID       string
	Event    E
	Metadata metadata.Metadata
}

// Subscribe streams relayed events of type E until ctx is done. Messages
// that fail to decode are logged and dropped.
func Subscribe[E any](ctx context.Context, bus *EventBus) (<-chan Delivery[E], error) {
	if bus == nil {
		return nil, errspkg.ErrEventBusClosed
	}
	if bus.isClosed() {
		return nil, errspkg.ErrEventBusClosed
	}

	topic := TopicFor(event.TypeOf[E]())
	messages, err := bus.transport.Subscriber.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}

	out := make(chan Delivery[E])
	go func() {
		defer close(out)
		for wm := range messages {
			payload, err := decodePayload[E](wm.Payload)
			if err != nil {
				bus.dispatcher.Logger.Error("Dropping undecodable event", err, loggingpkg.LogFields{
					"topic":    topic,
					"event_id": wm.UUID,
				})
				wm.Ack()
				continue
			}
			delivery := Delivery[E]{
				ID:       wm.UUID,
				Event:    payload,
				Metadata: metadata.FromWatermill(wm.Metadata),
			}
			select {
			case out <- delivery:
				wm.Ack()
			case <-ctx.Done():
				wm.Nack()
				return
			}
		}
	}()
	return out, nil
}

func decodePayload[E any](data []byte) (E, error) {
	var payload E
	if pm, ok := any(payload).(proto.Message); ok {
		fresh := pm.ProtoReflect().New().Interface()
		if err := protojson.Unmarshal(data, fresh); err != nil {
			return payload, err
		}
		return fresh.(E), nil
	}
	err := jsoncodec.Unmarshal(data, &payload)
	return payload, err
}
