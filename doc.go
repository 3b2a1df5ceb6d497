// Package ssoflow routes the request/response exchanges and events of an SSO
// protocol client to components that declare themselves.
//
// A service owns one command and turns raw response bytes into a typed event
// (Parse) or a typed request into bytes (Build). An event handler subscribes
// to one event type, optionally restricted to a set of client platforms.
// Both are declared from init functions with DeclareService and DeclareEvent;
// the declarations are validated together when the first Dispatcher loads the
// registry, and every problem is reported at once.
//
// Dispatcher resolves packets to exactly one service, creating a fresh
// instance per dispatch, and fans events out to every matching handler
// concurrently. Handler failures are isolated and returned per handler.
// A minimal setup fills Config, imports the bundled services, creates a
// Dispatcher and calls ResolveIncoming for each received packet.
//
// # Transports
//
// EventBus relays posted events on a Watermill transport so other parts of
// the process, or other processes, can observe them:
//   - channel: In-memory Go channels (default)
//   - nats: NATS Core subjects
//   - jetstream: A replayable NATS JetStream stream
//   - kafka: Kafka topics read by a consumer group
//   - rabbitmq: Durable AMQP exchanges
//   - http: Webhook POSTs received by a local server
//   - io: A JSON-lines journal file
//
// # Dispatch Hooks
//
// DispatchHooks provides OnDispatchStart, OnDispatchDone and OnDispatchError
// callbacks for custom logging, metrics collection and alerting around each
// dispatch. LoggingHooks, CountingHooks and AlertingHooks cover the common
// cases.
//
// When MetricsEnabled is set, dispatch counters are exported to Prometheus and
// served by the inspector together with the routed commands and event
// subscriptions.
package ssoflow
