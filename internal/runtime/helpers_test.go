package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	configpkg "github.com/drblury/ssoflow/internal/runtime/config"
	"github.com/drblury/ssoflow/internal/runtime/declare"
	"github.com/drblury/ssoflow/internal/runtime/event"
	loggingpkg "github.com/drblury/ssoflow/internal/runtime/logging"
	"github.com/drblury/ssoflow/internal/runtime/protocol"
	"github.com/drblury/ssoflow/internal/runtime/registry"
	"github.com/drblury/ssoflow/internal/runtime/service"
	"github.com/drblury/ssoflow/internal/runtime/session"
)

type logRecord struct {
	level  string
	msg    string
	err    error
	fields loggingpkg.LogFields
}

type logStore struct {
	mu      sync.Mutex
	records []logRecord
}

type recordingLogger struct {
	store  *logStore
	fields loggingpkg.LogFields
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{store: &logStore{}}
}

func (l *recordingLogger) With(fields loggingpkg.LogFields) loggingpkg.ServiceLogger {
	merged := loggingpkg.LogFields{}
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &recordingLogger{store: l.store, fields: merged}
}

func (l *recordingLogger) record(level, msg string, err error, fields loggingpkg.LogFields) {
	merged := loggingpkg.LogFields{}
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	l.store.records = append(l.store.records, logRecord{level: level, msg: msg, err: err, fields: merged})
}

func (l *recordingLogger) Debug(msg string, fields loggingpkg.LogFields) {
	l.record("debug", msg, nil, fields)
}

func (l *recordingLogger) Info(msg string, fields loggingpkg.LogFields) {
	l.record("info", msg, nil, fields)
}

func (l *recordingLogger) Error(msg string, err error, fields loggingpkg.LogFields) {
	l.record("error", msg, err, fields)
}

func (l *recordingLogger) Trace(msg string, fields loggingpkg.LogFields) {
	l.record("trace", msg, nil, fields)
}

func (l *recordingLogger) messages() []string {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	out := make([]string, 0, len(l.store.records))
	for _, r := range l.store.records {
		out = append(out, r.msg)
	}
	return out
}

func (l *recordingLogger) find(msg string) (logRecord, bool) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	for _, r := range l.store.records {
		if r.msg == msg {
			return r, true
		}
	}
	return logRecord{}, false
}

type testPublisher struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (p *testPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, topic)
	return nil
}

func (p *testPublisher) Close() error { return nil }

type heartbeatEvent struct{}

type heartbeatService struct {
	service.Base
}

func (s *heartbeatService) Parse(context.Context, []byte, *session.Context) (event.Message, error) {
	return event.New(heartbeatEvent{}), nil
}

func (s *heartbeatService) Build(context.Context, event.Message, *session.Context) ([]byte, error) {
	return []byte{0, 0, 0, 4}, nil
}

type echoEvent struct {
	Text string `json:"text"`
}

type echoService struct {
	service.Base
}

func (s *echoService) Parse(_ context.Context, payload []byte, _ *session.Context) (event.Message, error) {
	return event.New(echoEvent{Text: string(payload)}), nil
}

func (s *echoService) Build(ctx context.Context, req event.Message, sc *session.Context) ([]byte, error) {
	return service.BuildAs(ctx, req, sc, func(_ context.Context, e echoEvent, _ *session.Context) ([]byte, error) {
		return []byte(e.Text), nil
	})
}

var errParseFailed = errors.New("parse failed")

type failingService struct {
	service.Base
}

func (s *failingService) Parse(context.Context, []byte, *session.Context) (event.Message, error) {
	return event.Message{}, errParseFailed
}

type windowsHandler struct{}

func (windowsHandler) Handle(_ context.Context, _ *session.Context, e echoEvent) ([]byte, error) {
	return []byte("windows:" + e.Text), nil
}

type everywhereHandler struct{}

func (everywhereHandler) Handle(_ context.Context, _ *session.Context, e echoEvent) ([]byte, error) {
	return []byte("everywhere:" + e.Text), nil
}

var errHandlerFailed = errors.New("handler failed")

type failingHandler struct{}

func (failingHandler) Handle(context.Context, *session.Context, heartbeatEvent) ([]byte, error) {
	return nil, errHandlerFailed
}

// declareFixtures registers the shared services and handlers on a fresh registry.
func declareFixtures(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.NewRegistry()
	require.NoError(t, declare.Service[heartbeatService](reg, declare.Attributes{
		declare.AttrCommand:     "Heartbeat.Alive",
		declare.AttrRequestType: service.Simple,
		declare.AttrEncryptType: service.EncryptEmpty,
		declare.AttrDisableLog:  true,
	}))
	require.NoError(t, declare.Service[echoService](reg, declare.Attributes{
		declare.AttrCommand:     "test.echo",
		declare.AttrRequestType: "D2Auth",
	}))
	require.NoError(t, declare.Service[failingService](reg, declare.Attributes{
		declare.AttrCommand: "test.fail",
	}))
	require.NoError(t, declare.Event[echoEvent, windowsHandler](reg, declare.Attributes{
		declare.AttrProtocol: "Protocols::Windows",
	}))
	require.NoError(t, declare.Event[echoEvent, everywhereHandler](reg, nil))
	require.NoError(t, declare.Event[heartbeatEvent, failingHandler](reg, declare.Attributes{
		declare.AttrProtocol: protocol.PC,
	}))
	return reg
}

type dispatcherOption func(*configpkg.Config, *DispatcherDependencies)

func newTestDispatcher(t *testing.T, reg *registry.Registry, log loggingpkg.ServiceLogger, opts ...dispatcherOption) *Dispatcher {
	t.Helper()
	conf := configpkg.Default()
	deps := DispatcherDependencies{
		Registry:   reg,
		Registerer: prometheus.NewRegistry(),
		Tracer:     noop.NewTracerProvider().Tracer("test"),
	}
	for _, opt := range opts {
		opt(&conf, &deps)
	}
	if log == nil {
		log = loggingpkg.NewDiscardLogger()
	}
	d, err := NewDispatcher(&conf, log, deps)
	require.NoError(t, err)
	return d
}
