package runtime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"

	configpkg "github.com/drblury/ssoflow/internal/runtime/config"
	errspkg "github.com/drblury/ssoflow/internal/runtime/errors"
	"github.com/drblury/ssoflow/internal/runtime/event"
	"github.com/drblury/ssoflow/internal/runtime/ids"
	"github.com/drblury/ssoflow/internal/runtime/metadata"
	"github.com/drblury/ssoflow/internal/runtime/protocol"
	"github.com/drblury/ssoflow/transport"
)

func newTestBus(t *testing.T, d *Dispatcher, deps EventBusDependencies) *EventBus {
	t.Helper()
	bus, err := NewEventBus(context.Background(), d, deps)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func receive[E any](t *testing.T, ch <-chan Delivery[E]) Delivery[E] {
	t.Helper()
	select {
	case d, ok := <-ch:
		require.True(t, ok, "delivery channel closed")
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for relayed event")
	}
	return Delivery[E]{}
}

func TestTopicFor(t *testing.T) {
	assert.Equal(t, "ssoflow.events.runtime.echoEvent", TopicFor(event.TypeOf[echoEvent]()))
	assert.Equal(t, "ssoflow.events.ptr_wrapperspb.StringValue", TopicFor(event.TypeOf[*wrapperspb.StringValue]()))
	assert.Equal(t, "ssoflow.events.map_string_int", TopicFor(event.TypeOf[map[string]int]()))
}

func TestPostFromDispatchesAndRelays(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := newTestDispatcher(t, declareFixtures(t), nil)
	bus := newTestBus(t, d, EventBusDependencies{})
	assert.Equal(t, "channel", bus.Capabilities().Name)

	deliveries, err := Subscribe[echoEvent](ctx, bus)
	require.NoError(t, err)

	msg := event.New(echoEvent{Text: "hi"}).WithMetadata(metadata.New("trace", "abc"))
	results, err := bus.PostFrom(ctx, d.NewSession(protocol.Windows), msg)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "windows:hi", string(results[0].Payload))

	got := receive(t, deliveries)
	assert.Equal(t, "hi", got.Event.Text)
	assert.Equal(t, "runtime.echoEvent", got.Metadata.Get(metadata.KeyEventType))
	assert.Equal(t, "Windows", got.Metadata.Get(metadata.KeyProtocol))
	assert.Equal(t, contentTypeJSON, got.Metadata.Get(metadata.KeyContentType))
	assert.Equal(t, "abc", got.Metadata.Get("trace"))
	assert.Equal(t, got.ID, got.Metadata.Get(metadata.KeyEventID))
	_, err = ids.Time(got.ID)
	assert.NoError(t, err)
}

func TestAttachedSessionPostsThroughBus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := newTestDispatcher(t, declareFixtures(t), nil)
	bus := newTestBus(t, d, EventBusDependencies{})

	deliveries, err := Subscribe[echoEvent](ctx, bus)
	require.NoError(t, err)

	sc := d.NewSession(protocol.AndroidPad)
	require.ErrorIs(t, sc.Post(ctx, event.New(echoEvent{})), errspkg.ErrPosterRequired)

	bus.Attach(sc)
	require.NoError(t, sc.Post(ctx, event.New(echoEvent{Text: "attached"})))

	got := receive(t, deliveries)
	assert.Equal(t, "attached", got.Event.Text)
	assert.Equal(t, "AndroidPad", got.Metadata.Get(metadata.KeyProtocol))

	require.NoError(t, bus.Post(ctx, event.New(echoEvent{Text: "default"})))
	got = receive(t, deliveries)
	assert.Equal(t, "Linux", got.Metadata.Get(metadata.KeyProtocol))
}

func TestBusRelaysProtoPayloads(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := newTestDispatcher(t, declareFixtures(t), nil)
	bus := newTestBus(t, d, EventBusDependencies{})

	deliveries, err := Subscribe[*wrapperspb.StringValue](ctx, bus)
	require.NoError(t, err)

	require.NoError(t, bus.Post(ctx, event.New(wrapperspb.String("proto"))))
	got := receive(t, deliveries)
	assert.Equal(t, "proto", got.Event.GetValue())
	assert.Equal(t, contentTypeProtoJSON, got.Metadata.Get(metadata.KeyContentType))
}

func TestSubscribeClosesWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	d := newTestDispatcher(t, declareFixtures(t), nil)
	bus := newTestBus(t, d, EventBusDependencies{})

	deliveries, err := Subscribe[echoEvent](ctx, bus)
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-deliveries:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPostRejectsEmptyMessagesAndClosedBus(t *testing.T) {
	d := newTestDispatcher(t, declareFixtures(t), nil)
	bus := newTestBus(t, d, EventBusDependencies{})

	assert.ErrorIs(t, bus.Post(context.Background(), event.Message{}), errspkg.ErrEventTypeRequired)

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Post(context.Background(), event.New(echoEvent{})), errspkg.ErrEventBusClosed)
	_, err := Subscribe[echoEvent](context.Background(), bus)
	assert.ErrorIs(t, err, errspkg.ErrEventBusClosed)
}

func TestRelayFailureKeepsHandlerResults(t *testing.T) {
	boom := errors.New("publish failed")
	reg := transport.NewRegistry()
	reg.Register(configpkg.TransportChannel, func(context.Context, transport.Config, watermill.LoggerAdapter) (transport.Transport, error) {
		return transport.Transport{Publisher: &testPublisher{err: boom}}, nil
	})

	log := newRecordingLogger()
	d := newTestDispatcher(t, declareFixtures(t), log)
	bus := newTestBus(t, d, EventBusDependencies{TransportRegistry: reg})

	results, err := bus.PostFrom(context.Background(), d.NewSession(protocol.Linux), event.New(echoEvent{Text: "x"}))
	assert.ErrorIs(t, err, boom)
	require.Len(t, results, 1)
	assert.Equal(t, "everywhere:x", string(results[0].Payload))

	rec, ok := log.find("Failed to relay event")
	require.True(t, ok)
	assert.Equal(t, "ssoflow.events.runtime.echoEvent", rec.fields["topic"])
}

func TestNewEventBusErrors(t *testing.T) {
	_, err := NewEventBus(context.Background(), nil, EventBusDependencies{})
	assert.ErrorIs(t, err, errspkg.ErrDispatcherRequired)

	d := newTestDispatcher(t, declareFixtures(t), nil)
	_, err = NewEventBus(context.Background(), d, EventBusDependencies{TransportRegistry: transport.NewRegistry()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown transport "channel"`)
}

func TestBusJournalsEventsWithIOTransport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	journal := filepath.Join(t.TempDir(), "events.jsonl")
	d := newTestDispatcher(t, declareFixtures(t), nil, func(c *configpkg.Config, _ *DispatcherDependencies) {
		c.EventBusTransport = configpkg.TransportIO
		c.JournalFile = journal
	})
	bus := newTestBus(t, d, EventBusDependencies{})
	assert.Equal(t, "io", bus.Capabilities().Name)

	require.NoError(t, bus.Post(ctx, event.New(echoEvent{Text: "journaled"})))

	data, err := os.ReadFile(journal)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"topic":"ssoflow.events.runtime.echoEvent"`)

	deliveries, err := Subscribe[echoEvent](ctx, bus)
	require.NoError(t, err)
	got := receive(t, deliveries)
	assert.Equal(t, "journaled", got.Event.Text)
}
