package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	configpkg "github.com/drblury/ssoflow/internal/runtime/config"
	"github.com/drblury/ssoflow/internal/runtime/dispatch"
	errspkg "github.com/drblury/ssoflow/internal/runtime/errors"
	"github.com/drblury/ssoflow/internal/runtime/event"
	"github.com/drblury/ssoflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/ssoflow/internal/runtime/logging"
	"github.com/drblury/ssoflow/internal/runtime/protocol"
	"github.com/drblury/ssoflow/internal/runtime/registry"
	"github.com/drblury/ssoflow/internal/runtime/service"
	"github.com/drblury/ssoflow/internal/runtime/session"
)

const tracerName = "github.com/drblury/ssoflow"

// unknownCommand is the stats and metrics name every unresolved command is
// recorded under. Inbound command strings are peer controlled.
const unknownCommand = "<unknown>"

// DispatcherDependencies holds optional collaborators. Leave fields nil to
// use the defaults.
type DispatcherDependencies struct {
	// Registry defaults to registry.DefaultRegistry.
	Registry *registry.Registry
	Hooks    DispatchHooks
	// Registerer receives the dispatch metrics when Config.MetricsEnabled is
	// set. Defaults to the Prometheus default registerer.
	Registerer prometheus.Registerer
	// Tracer defaults to the global OpenTelemetry tracer provider.
	Tracer trace.Tracer
}

// Dispatcher routes commands to services and events to handlers. Its tables
// are built once in NewDispatcher and never change afterwards.
type Dispatcher struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	registry *registry.Registry
	services *dispatch.ServiceTable
	events   *dispatch.EventTable

	hooks    DispatchHooks
	stats    *statsSet
	process  *processSampler
	metrics  *DispatchMetrics
	gatherer prometheus.Gatherer
	tracer   trace.Tracer
}

// NewDispatcher loads the registry and builds both dispatch tables. Any
// invalid declaration or duplicate command fails construction.
func NewDispatcher(conf *configpkg.Config, log loggingpkg.ServiceLogger, deps DispatcherDependencies) (*Dispatcher, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, errspkg.ConfigValidationError{Err: err}
	}

	reg := deps.Registry
	if reg == nil {
		reg = registry.DefaultRegistry
	}
	if err := reg.Load(); err != nil {
		return nil, err
	}

	services, err := dispatch.NewServiceTable(reg.AllServices())
	if err != nil {
		return nil, err
	}
	events := dispatch.NewEventTable(reg.AllEventSubscriptions(), dispatch.WithConcurrency(conf.HandlerConcurrency))

	d := &Dispatcher{
		Conf:     conf,
		Logger:   log,
		registry: reg,
		services: services,
		events:   events,
		hooks:    deps.Hooks,
		stats:    newStatsSet(),
		process:  newProcessSampler(),
		tracer:   deps.Tracer,
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer(tracerName)
	}
	if conf.MetricsEnabled {
		d.metrics = NewDispatchMetrics(deps.Registerer)
		if err := d.metrics.Register(); err != nil {
			return nil, err
		}
		d.metrics.SetRegistered(services.Len(), reg.SubscriptionCount())
		d.gatherer = prometheus.DefaultGatherer
		if g, ok := deps.Registerer.(prometheus.Gatherer); ok {
			d.gatherer = g
		}
	}

	log.Info("Dispatch tables built", loggingpkg.LogFields{
		"services":      services.Len(),
		"subscriptions": reg.SubscriptionCount(),
		"event_types":   events.Types(),
		"protocol":      conf.Protocol.String(),
	})
	return d, nil
}

// DispatchCommand parses an inbound payload with the service owning command.
func (d *Dispatcher) DispatchCommand(ctx context.Context, command string, payload []byte, sc *session.Context) (event.Message, error) {
	return d.ResolveIncoming(ctx, service.Packet{Command: command, Data: payload}, sc)
}

// ResolveIncoming parses pkt with the service owning its command. An unknown
// command fails with ServiceNotFoundError; service errors are returned as is.
func (d *Dispatcher) ResolveIncoming(ctx context.Context, pkt service.Packet, sc *session.Context) (event.Message, error) {
	var out event.Message
	err := d.runCommand(ctx, DirectionIncoming, pkt.Command, pkt.Sequence, sc, func(ctx context.Context, svc service.Service, sc *session.Context) error {
		msg, err := svc.Parse(ctx, pkt.Data, sc)
		out = msg
		return err
	})
	return out, err
}

// ResolveOutgoing builds the payload of req with the service owning command.
func (d *Dispatcher) ResolveOutgoing(ctx context.Context, command string, req event.Message, sc *session.Context) ([]byte, error) {
	var out []byte
	err := d.runCommand(ctx, DirectionOutgoing, command, 0, sc, func(ctx context.Context, svc service.Service, sc *session.Context) error {
		payload, err := svc.Build(ctx, req, sc)
		out = payload
		return err
	})
	return out, err
}

func (d *Dispatcher) runCommand(ctx context.Context, direction, command string, sequence uint32, sc *session.Context, run func(context.Context, service.Service, *session.Context) error) error {
	sc = d.session(sc)
	dc := DispatchContext{
		Kind:       KindCommand,
		Direction:  direction,
		Command:    command,
		Sequence:   sequence,
		DispatchID: ids.New(),
		Protocol:   sc.ActiveProtocol(d.Conf.Protocol),
		Context:    ctx,
		StartedAt:  time.Now(),
	}
	fields := loggingpkg.LogFields{
		"command":     command,
		"sequence":    sequence,
		"direction":   direction,
		"dispatch_id": dc.DispatchID,
	}

	svc, err := d.services.Resolve(command)
	if err != nil {
		d.Logger.Error("No service registered for command", err, fields)
		d.recordCommand(direction, unknownCommand, outcomeNotFound, 0)
		d.stats.record(KindCommand, unknownCommand, 0, err)
		d.hooks.start(dc)
		d.hooks.finish(dc, err)
		return err
	}
	dc.DisableLog = svc.Metadata().DisableLog

	ctx, span := d.tracer.Start(ctx, "ssoflow.dispatch."+direction, trace.WithAttributes(
		attribute.String("ssoflow.command", command),
		attribute.Int64("ssoflow.sequence", int64(sequence)),
		attribute.String("ssoflow.dispatch_id", dc.DispatchID),
		attribute.String("ssoflow.protocol", dc.Protocol.String()),
	))
	defer span.End()
	dc.Context = ctx

	if !dc.DisableLog {
		d.Logger.Debug("Dispatching command", fields)
	}
	d.hooks.start(dc)

	err = runService(ctx, svc, sc, run)
	dc.Duration = time.Since(dc.StartedAt)

	outcome := outcomeOK
	if err != nil {
		outcome = outcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !dc.DisableLog {
			d.Logger.Error("Command dispatch failed", err, fields)
		}
	}
	d.recordCommand(direction, command, outcome, dc.Duration)
	d.stats.record(KindCommand, command, dc.Duration, err)
	d.hooks.finish(dc, err)
	return err
}

func runService(ctx context.Context, svc service.Service, sc *session.Context, run func(context.Context, service.Service, *session.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("service %s panicked: %v", svc.Metadata().Command, r)
		}
	}()
	return run(ctx, svc, sc)
}

// DispatchEvent runs every handler of msg subscribed to the session's
// platform, or to Config.Protocol when the session names none. It returns
// one result per matched handler; no match yields no results.
func (d *Dispatcher) DispatchEvent(ctx context.Context, sc *session.Context, msg event.Message) []dispatch.Result {
	sc = d.session(sc)
	active := sc.ActiveProtocol(d.Conf.Protocol)
	eventType := msg.Type().String()

	dc := DispatchContext{
		Kind:       KindEvent,
		EventType:  eventType,
		DispatchID: ids.New(),
		Protocol:   active,
		StartedAt:  time.Now(),
	}
	ctx, span := d.tracer.Start(ctx, "ssoflow.dispatch.event", trace.WithAttributes(
		attribute.String("ssoflow.event_type", eventType),
		attribute.String("ssoflow.dispatch_id", dc.DispatchID),
		attribute.String("ssoflow.protocol", active.String()),
	))
	defer span.End()
	dc.Context = ctx

	d.Logger.Debug("Dispatching event", loggingpkg.LogFields{
		"event_type":  eventType,
		"protocol":    active.String(),
		"dispatch_id": dc.DispatchID,
	})
	d.hooks.start(dc)

	results := d.events.Dispatch(ctx, active, sc, msg)
	dc.Duration = time.Since(dc.StartedAt)
	dc.Handlers = len(results)
	span.SetAttributes(attribute.Int("ssoflow.handlers", len(results)))

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
			d.Logger.Error("Event handler failed", r.Err, loggingpkg.LogFields{
				"event_type":  eventType,
				"handler":     r.Handler,
				"dispatch_id": dc.DispatchID,
			})
		}
	}
	joined := errors.Join(errs...)
	if joined != nil {
		span.SetStatus(codes.Error, joined.Error())
	}
	if d.metrics != nil {
		d.metrics.RecordEvent(eventType, active.String(), results)
	}
	d.stats.record(KindEvent, eventType, dc.Duration, joined)
	d.hooks.finish(dc, joined)
	return results
}

// IsLogDisabled reports whether command was declared with disable_log.
func (d *Dispatcher) IsLogDisabled(command string) bool {
	desc, ok := d.services.Descriptor(command)
	return ok && desc.DisableLog
}

// Metrics returns the dispatch metrics, or nil when disabled.
func (d *Dispatcher) Metrics() *DispatchMetrics {
	return d.metrics
}

// Stats returns dispatch statistics per command and event type.
func (d *Dispatcher) Stats() []DispatchStats {
	return d.stats.snapshot()
}

// Process samples the resource usage of the current process.
func (d *Dispatcher) Process() ProcessUsage {
	return d.process.sample()
}

// ServiceInfo describes one routed command.
type ServiceInfo struct {
	Command     string `json:"command"`
	RequestType string `json:"request_type"`
	EncryptType string `json:"encrypt_type"`
	DisableLog  bool   `json:"disable_log"`
	Component   string `json:"component"`
}

// SubscriptionInfo describes one event subscription.
type SubscriptionInfo struct {
	EventType string `json:"event_type"`
	Protocols string `json:"protocols"`
	Handler   string `json:"handler"`
}

// Services lists the routed commands in lexical order.
func (d *Dispatcher) Services() []ServiceInfo {
	commands := d.services.Commands()
	out := make([]ServiceInfo, 0, len(commands))
	for _, command := range commands {
		desc, _ := d.services.Descriptor(command)
		out = append(out, ServiceInfo{
			Command:     desc.Command,
			RequestType: desc.RequestType.String(),
			EncryptType: desc.EncryptType.String(),
			DisableLog:  desc.DisableLog,
			Component:   desc.Component,
		})
	}
	return out
}

// Subscriptions lists every event subscription in registry order.
func (d *Dispatcher) Subscriptions() []SubscriptionInfo {
	out := make([]SubscriptionInfo, 0, d.registry.SubscriptionCount())
	for s := range d.registry.AllEventSubscriptions() {
		out = append(out, SubscriptionInfo{
			EventType: s.EventType.String(),
			Protocols: s.ProtocolMask.String(),
			Handler:   s.Handler,
		})
	}
	return out
}

// NewSession returns a session for p logging through the dispatcher logger.
func (d *Dispatcher) NewSession(p protocol.Protocol, opts ...session.Option) *session.Context {
	return session.New(p, append([]session.Option{session.WithLogger(d.Logger)}, opts...)...)
}

func (d *Dispatcher) session(sc *session.Context) *session.Context {
	if sc == nil {
		return d.NewSession(d.Conf.Protocol)
	}
	return sc
}

func (d *Dispatcher) recordCommand(direction, command, outcome string, elapsed time.Duration) {
	if d.metrics != nil {
		d.metrics.RecordCommand(direction, command, outcome, elapsed)
	}
}
