package runtime

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/ssoflow/internal/runtime/dispatch"
)

// Outcome labels.
const (
	outcomeOK       = "ok"
	outcomeError    = "error"
	outcomeNotFound = "not_found"
)

// DispatchMetrics exports dispatcher statistics to Prometheus.
type DispatchMetrics struct {
	mu sync.Mutex

	commandsTotal    *prometheus.CounterVec
	commandDuration  *prometheus.HistogramVec
	eventsTotal      *prometheus.CounterVec
	handlerResults   *prometheus.CounterVec
	unmatchedEvents  *prometheus.CounterVec
	registeredTotals *prometheus.GaugeVec

	registerer prometheus.Registerer
	registered bool
}

func newDispatchCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ssoflow",
			Subsystem: "dispatch",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newDispatchGaugeVec(name, help string, labels []string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ssoflow",
			Subsystem: "dispatch",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newDispatchHistogramVec(name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ssoflow",
			Subsystem: "dispatch",
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
		labels,
	)
}

// NewDispatchMetrics creates the collectors. Nil registerer means the
// Prometheus default registerer.
func NewDispatchMetrics(registerer prometheus.Registerer) *DispatchMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &DispatchMetrics{
		registerer:       registerer,
		commandsTotal:    newDispatchCounterVec("commands_total", "Commands routed to a service", []string{"direction", "command", "outcome"}),
		commandDuration:  newDispatchHistogramVec("command_duration_seconds", "Time spent in service parse or build", prometheus.DefBuckets, []string{"direction", "command"}),
		eventsTotal:      newDispatchCounterVec("events_total", "Events dispatched to handlers", []string{"event_type"}),
		handlerResults:   newDispatchCounterVec("handler_results_total", "Event handler invocations by outcome", []string{"event_type", "handler", "outcome"}),
		unmatchedEvents:  newDispatchCounterVec("unmatched_events_total", "Events no handler matched for the active protocol", []string{"event_type", "protocol"}),
		registeredTotals: newDispatchGaugeVec("registered", "Registered services and event subscriptions", []string{"kind"}),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *DispatchMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	if err := registerOrReuse(m.registerer, &m.commandsTotal); err != nil {
		return err
	}
	if err := registerOrReuse(m.registerer, &m.commandDuration); err != nil {
		return err
	}
	if err := registerOrReuse(m.registerer, &m.eventsTotal); err != nil {
		return err
	}
	if err := registerOrReuse(m.registerer, &m.handlerResults); err != nil {
		return err
	}
	if err := registerOrReuse(m.registerer, &m.unmatchedEvents); err != nil {
		return err
	}
	if err := registerOrReuse(m.registerer, &m.registeredTotals); err != nil {
		return err
	}

	m.registered = true
	return nil
}

// registerOrReuse registers *c, or swaps in the collector already registered
// under the same descriptor so that every instance records into the exported
// series.
func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, c *C) error {
	err := reg.Register(*c)
	if err == nil {
		return nil
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return err
	}
	existing, ok := are.ExistingCollector.(C)
	if !ok {
		return fmt.Errorf("metrics: %T already registered as %T", *c, are.ExistingCollector)
	}
	*c = existing
	return nil
}

// RecordCommand records one parse or build dispatch.
func (m *DispatchMetrics) RecordCommand(direction, command, outcome string, elapsed time.Duration) {
	m.commandsTotal.WithLabelValues(direction, command, outcome).Inc()
	if outcome != outcomeNotFound {
		m.commandDuration.WithLabelValues(direction, command).Observe(elapsed.Seconds())
	}
}

// RecordEvent records one event fan-out and the outcome of each handler.
func (m *DispatchMetrics) RecordEvent(eventType, protocolName string, results []dispatch.Result) {
	m.eventsTotal.WithLabelValues(eventType).Inc()
	if len(results) == 0 {
		m.unmatchedEvents.WithLabelValues(eventType, protocolName).Inc()
		return
	}
	for _, r := range results {
		outcome := outcomeOK
		if r.Err != nil {
			outcome = outcomeError
		}
		m.handlerResults.WithLabelValues(eventType, r.Handler, outcome).Inc()
	}
}

// SetRegistered publishes the registry sizes.
func (m *DispatchMetrics) SetRegistered(services, subscriptions int) {
	m.registeredTotals.WithLabelValues("service").Set(float64(services))
	m.registeredTotals.WithLabelValues("subscription").Set(float64(subscriptions))
}

// Reset clears every series. Used by tests.
func (m *DispatchMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.commandsTotal.Reset()
	m.commandDuration.Reset()
	m.eventsTotal.Reset()
	m.handlerResults.Reset()
	m.unmatchedEvents.Reset()
	m.registeredTotals.Reset()
}
