// Package registry collects the service and event declarations contributed
// by every component during process start-up.
package registry

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"

	errspkg "github.com/drblury/ssoflow/internal/runtime/errors"
	"github.com/drblury/ssoflow/internal/runtime/event"
	"github.com/drblury/ssoflow/internal/runtime/protocol"
	"github.com/drblury/ssoflow/internal/runtime/service"
	"github.com/drblury/ssoflow/internal/runtime/session"
)

// ServiceDescriptor is the validated record of one declared service.
type ServiceDescriptor struct {
	Command     string
	RequestType service.RequestType
	EncryptType service.EncryptType
	DisableLog  bool
	// Component is the Go type name of the declared service.
	Component string
	Factory   func() service.Service
}

// HandlerInvoker runs one event handler against a dispatched message.
type HandlerInvoker func(ctx context.Context, sc *session.Context, msg event.Message) ([]byte, error)

// EventSubscription is the validated record of one declared event handler.
type EventSubscription struct {
	EventType    event.Type
	ProtocolMask protocol.Mask
	Handler      string
	Invoke       HandlerInvoker
}

type contribution struct {
	component    string
	service      func() (ServiceDescriptor, error)
	subscription func() (EventSubscription, error)
}

// Registry is write-once: contributions queue up until Load validates them
// all, after which the registry is sealed and read without locking.
type Registry struct {
	mu      sync.Mutex
	pending []contribution
	sealed  bool
	loaded  bool

	once          sync.Once
	loadErr       error
	services      []ServiceDescriptor
	subscriptions []EventSubscription
}

// DefaultRegistry receives declarations that do not name a registry.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// ContributeService queues a lazily validated service declaration.
func (r *Registry) ContributeService(component string, fn func() (ServiceDescriptor, error)) error {
	if fn == nil {
		return errspkg.ErrFactoryRequired
	}
	return r.contribute(contribution{component: component, service: fn})
}

// ContributeEvent queues a lazily validated event subscription.
func (r *Registry) ContributeEvent(component string, fn func() (EventSubscription, error)) error {
	if fn == nil {
		return errspkg.ErrHandlerRequired
	}
	return r.contribute(contribution{component: component, subscription: fn})
}

// AddService queues an already built descriptor.
func (r *Registry) AddService(d ServiceDescriptor) error {
	if err := validateService(d); err != nil {
		return err
	}
	return r.contribute(contribution{
		component: d.Component,
		service:   func() (ServiceDescriptor, error) { return d, nil },
	})
}

// AddEventSubscription queues an already built subscription.
func (r *Registry) AddEventSubscription(s EventSubscription) error {
	if err := validateSubscription(s); err != nil {
		return err
	}
	return r.contribute(contribution{
		component:    s.Handler,
		subscription: func() (EventSubscription, error) { return s, nil },
	})
}

func (r *Registry) contribute(c contribution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return errspkg.ErrRegistrySealed
	}
	r.pending = append(r.pending, c)
	return nil
}

// Load validates every queued contribution exactly once. If any of them
// fails, nothing is registered and the joined error is returned on this and
// every later call. The registry is sealed either way.
func (r *Registry) Load() error {
	r.once.Do(func() {
		r.mu.Lock()
		pending := r.pending
		r.pending = nil
		r.sealed = true
		r.mu.Unlock()

		var (
			errs          []error
			services      []ServiceDescriptor
			subscriptions []EventSubscription
		)
		for _, c := range pending {
			switch {
			case c.service != nil:
				d, err := c.service()
				if err == nil {
					err = validateService(d)
				}
				if err != nil {
					errs = append(errs, wrapDeclaration(c.component, err))
					continue
				}
				services = append(services, d)
			case c.subscription != nil:
				s, err := c.subscription()
				if err == nil {
					err = validateSubscription(s)
				}
				if err != nil {
					errs = append(errs, wrapDeclaration(c.component, err))
					continue
				}
				subscriptions = append(subscriptions, s)
			}
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		r.loaded = true
		if len(errs) > 0 {
			r.loadErr = errors.Join(errs...)
			return
		}
		r.services = services
		r.subscriptions = subscriptions
	})
	return r.loadErr
}

// Sealed reports whether Load has started. Later contributions are rejected.
func (r *Registry) Sealed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sealed
}

// Loaded reports whether Load has finished, successfully or not.
func (r *Registry) Loaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loaded
}

// AllServices yields every loaded service in contribution order.
func (r *Registry) AllServices() iter.Seq[ServiceDescriptor] {
	return slices.Values(r.loadedServices())
}

// AllEventSubscriptions yields every loaded subscription in contribution order.
func (r *Registry) AllEventSubscriptions() iter.Seq[EventSubscription] {
	return slices.Values(r.loadedSubscriptions())
}

// ServiceCount returns the number of loaded services.
func (r *Registry) ServiceCount() int {
	return len(r.loadedServices())
}

// SubscriptionCount returns the number of loaded subscriptions.
func (r *Registry) SubscriptionCount() int {
	return len(r.loadedSubscriptions())
}

func (r *Registry) loadedServices() []ServiceDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.services
}

func (r *Registry) loadedSubscriptions() []EventSubscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subscriptions
}

func validateService(d ServiceDescriptor) error {
	if d.Command == "" {
		return &errspkg.MissingRequiredAttributeError{Attribute: "command"}
	}
	if d.Factory == nil {
		return errspkg.ErrFactoryRequired
	}
	instance := d.Factory()
	if instance == nil || instance.Metadata() == nil {
		return fmt.Errorf("ssoflow: factory for %s returned no metadata", d.Command)
	}
	if got := instance.Metadata().Command; got != d.Command {
		return fmt.Errorf("ssoflow: factory for %s produced metadata for %q", d.Command, got)
	}
	return nil
}

func validateSubscription(s EventSubscription) error {
	if s.EventType.IsZero() {
		return errspkg.ErrEventTypeRequired
	}
	if s.Invoke == nil {
		return errspkg.ErrHandlerRequired
	}
	if !s.ProtocolMask.Valid() {
		return fmt.Errorf("ssoflow: subscription %s has invalid protocol mask %s", s.Handler, s.ProtocolMask)
	}
	return nil
}

func wrapDeclaration(component string, err error) error {
	var decl *errspkg.DeclarationError
	if errors.As(err, &decl) {
		return err
	}
	return &errspkg.DeclarationError{Component: component, Err: err}
}
