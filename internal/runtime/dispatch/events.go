package dispatch

import (
	"context"
	"fmt"
	"iter"

	"golang.org/x/sync/errgroup"

	errspkg "github.com/drblury/ssoflow/internal/runtime/errors"
	"github.com/drblury/ssoflow/internal/runtime/event"
	"github.com/drblury/ssoflow/internal/runtime/protocol"
	"github.com/drblury/ssoflow/internal/runtime/registry"
	"github.com/drblury/ssoflow/internal/runtime/session"
)

// Route is one handler subscribed to an event type.
type Route struct {
	Mask    protocol.Mask
	Handler string
	Invoke  registry.HandlerInvoker
}

// Result is the outcome of one handler for one dispatched event.
type Result struct {
	Handler string
	Mask    protocol.Mask
	Payload []byte
	Err     error
}

// EventTable maps an event type to its handlers in registry order.
type EventTable struct {
	routes      map[event.Type][]Route
	concurrency int
}

// EventTableOption configures an EventTable.
type EventTableOption func(*EventTable)

// WithConcurrency bounds how many handlers of one event run at once.
// Zero or negative means unbounded.
func WithConcurrency(n int) EventTableOption {
	return func(t *EventTable) {
		t.concurrency = n
	}
}

// NewEventTable drains subscriptions into a table.
func NewEventTable(subscriptions iter.Seq[registry.EventSubscription], opts ...EventTableOption) *EventTable {
	table := &EventTable{routes: make(map[event.Type][]Route)}
	for _, opt := range opts {
		if opt != nil {
			opt(table)
		}
	}
	if subscriptions == nil {
		return table
	}
	for s := range subscriptions {
		table.routes[s.EventType] = append(table.routes[s.EventType], Route{
			Mask:    s.ProtocolMask,
			Handler: s.Handler,
			Invoke:  s.Invoke,
		})
	}
	return table
}

// Routes returns every route for typ regardless of protocol.
func (t *EventTable) Routes(typ event.Type) []Route {
	return append([]Route(nil), t.routes[typ]...)
}

// Match returns the routes for typ whose mask includes active.
func (t *EventTable) Match(typ event.Type, active protocol.Protocol) []Route {
	var matched []Route
	for _, route := range t.routes[typ] {
		if protocol.IsMatch(active, route.Mask) {
			matched = append(matched, route)
		}
	}
	return matched
}

// Types returns the number of event types with at least one route.
func (t *EventTable) Types() int {
	return len(t.routes)
}

// Dispatch runs every handler of msg matching active and returns one result
// per handler, in route order. An event nobody handles yields no results.
// Handlers run concurrently; a failing or panicking handler only marks its
// own result. Cancellation is observed by the handlers through ctx.
func (t *EventTable) Dispatch(ctx context.Context, active protocol.Protocol, sc *session.Context, msg event.Message) []Result {
	matched := t.Match(msg.Type(), active)
	if len(matched) == 0 {
		return nil
	}

	results := make([]Result, len(matched))
	var g errgroup.Group
	if t.concurrency > 0 {
		g.SetLimit(t.concurrency)
	}
	for i, route := range matched {
		results[i] = Result{Handler: route.Handler, Mask: route.Mask}
		g.Go(func() error {
			payload, err := invoke(ctx, route, sc, msg)
			results[i].Payload = payload
			if err != nil {
				results[i].Err = &errspkg.HandlerError{Handler: route.Handler, EventType: msg.Type().String(), Err: err}
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func invoke(ctx context.Context, route Route, sc *session.Context, msg event.Message) (payload []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return route.Invoke(ctx, sc, msg)
}
