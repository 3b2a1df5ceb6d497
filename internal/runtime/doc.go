/*
Package runtime wires the declaration registry into dispatch for ssoflow.

# Architecture Overview

Components declare themselves from init functions through the declare
package. Declarations are queued on a registry and validated together when
the first Dispatcher is built. After that the registry is sealed and the
dispatch tables never change.

# Package Structure

## Dispatcher (dispatcher.go)

Dispatcher resolves inbound packets and outbound requests to the one service
owning their command, and fans events out to every handler subscribed to the
active platform. Each dispatch carries a ULID dispatch ID, an OpenTelemetry
span, optional Prometheus metrics and DispatchHooks callbacks. Services
declared with disable_log are not logged.

## Event Bus (bus.go)

EventBus lets handlers post follow-up events. Posted events are dispatched
locally and relayed on a Watermill transport, where Subscribe reads them back
as typed deliveries.

## Hooks and Metrics (hooks.go, metrics.go)

DispatchHooks receive start, done and error callbacks for each dispatch.
DispatchMetrics exports command and handler counters.

## Inspector (inspector.go)

HTTP API listing the routed commands and event subscriptions, dispatch
statistics (stats.go) and process resource usage (resources.go).

# Sub-packages

  - config/: Dispatcher configuration with validation
  - declare/: Attribute validation and lazy registration of components
  - dispatch/: Immutable service and event dispatch tables
  - errors/: Sentinel errors and error types
  - event/: Event identity and message envelope
  - ids/: ULID generation
  - jsoncodec/: JSON marshaling utilities
  - logging/: Logger interface and adapters
  - metadata/: Event and session metadata
  - protocol/: Platform variants and subscription masks
  - registry/: Process-wide declaration registry
  - service/: Service contract and request/encrypt types
  - session/: Per-session context handed to services and handlers
  - suggest/: Closest-name suggestions for error messages

# Usage Example

	type AliveService struct{ service.Base }

	func init() {
		declare.MustService[AliveService](nil, declare.Attributes{
			"command":      "Heartbeat.Alive",
			"request_type": "RequestType::Simple",
			"disable_log":  true,
		})
	}

	d, err := runtime.NewDispatcher(&cfg, logger, runtime.DispatcherDependencies{})
	msg, err := d.ResolveIncoming(ctx, packet, sc)
*/
package runtime
