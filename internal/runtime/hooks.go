package runtime

import (
	"context"
	"time"

	"github.com/drblury/ssoflow/internal/runtime/logging"
	"github.com/drblury/ssoflow/internal/runtime/protocol"
)

// Dispatch kinds and directions reported to hooks.
const (
	KindCommand = "command"
	KindEvent   = "event"

	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// DispatchContext describes one dispatch to hooks.
type DispatchContext struct {
	// Kind is KindCommand or KindEvent.
	Kind string
	// Direction is set for commands only.
	Direction string
	Command   string
	Sequence  uint32
	EventType string
	// DispatchID is a ULID unique to this dispatch.
	DispatchID string
	Protocol   protocol.Protocol
	// DisableLog mirrors the resolved service's disable_log flag.
	DisableLog bool
	Context    context.Context
	StartedAt  time.Time
	// Duration is set in OnDispatchDone and OnDispatchError.
	Duration time.Duration
	// Handlers is the number of event handlers that matched.
	Handlers int
}

// Name returns the command or event type being dispatched.
func (c DispatchContext) Name() string {
	if c.Kind == KindEvent {
		return c.EventType
	}
	return c.Command
}

// DispatchHooks are optional lifecycle callbacks. Nil hooks are skipped.
// For events, OnDispatchError receives the joined handler errors after every
// handler has finished.
type DispatchHooks struct {
	OnDispatchStart func(ctx DispatchContext)
	OnDispatchDone  func(ctx DispatchContext)
	OnDispatchError func(ctx DispatchContext, err error)
}

// Merge returns hooks calling h first, then other.
func (h DispatchHooks) Merge(other DispatchHooks) DispatchHooks {
	return DispatchHooks{
		OnDispatchStart: chainHooks(h.OnDispatchStart, other.OnDispatchStart),
		OnDispatchDone:  chainHooks(h.OnDispatchDone, other.OnDispatchDone),
		OnDispatchError: chainErrorHooks(h.OnDispatchError, other.OnDispatchError),
	}
}

func (h DispatchHooks) start(ctx DispatchContext) {
	if h.OnDispatchStart != nil {
		h.OnDispatchStart(ctx)
	}
}

func (h DispatchHooks) finish(ctx DispatchContext, err error) {
	if err != nil {
		if h.OnDispatchError != nil {
			h.OnDispatchError(ctx, err)
		}
		return
	}
	if h.OnDispatchDone != nil {
		h.OnDispatchDone(ctx)
	}
}

func chainHooks(a, b func(DispatchContext)) func(DispatchContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx DispatchContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErrorHooks(a, b func(DispatchContext, error)) func(DispatchContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx DispatchContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

// LoggingHooks logs dispatch completion at info level. Services declared
// with disable_log are skipped.
func LoggingHooks(logger logging.ServiceLogger) DispatchHooks {
	fields := func(ctx DispatchContext) logging.LogFields {
		return logging.LogFields{
			"kind":        ctx.Kind,
			"name":        ctx.Name(),
			"dispatch_id": ctx.DispatchID,
			"duration_ms": ctx.Duration.Milliseconds(),
		}
	}
	return DispatchHooks{
		OnDispatchDone: func(ctx DispatchContext) {
			if ctx.DisableLog {
				return
			}
			logger.Info("Dispatch completed", fields(ctx))
		},
		OnDispatchError: func(ctx DispatchContext, err error) {
			if ctx.DisableLog {
				return
			}
			logger.Error("Dispatch failed", err, fields(ctx))
		},
	}
}

// CountingHooks forwards the kind and name of each dispatch to plain callbacks.
func CountingHooks(onStart, onDone, onError func(kind, name string)) DispatchHooks {
	return DispatchHooks{
		OnDispatchStart: func(ctx DispatchContext) {
			if onStart != nil {
				onStart(ctx.Kind, ctx.Name())
			}
		},
		OnDispatchDone: func(ctx DispatchContext) {
			if onDone != nil {
				onDone(ctx.Kind, ctx.Name())
			}
		},
		OnDispatchError: func(ctx DispatchContext, _ error) {
			if onError != nil {
				onError(ctx.Kind, ctx.Name())
			}
		},
	}
}

// AlertingHooks calls alertFunc for failed dispatches only.
func AlertingHooks(alertFunc func(ctx DispatchContext, err error)) DispatchHooks {
	return DispatchHooks{OnDispatchError: alertFunc}
}
