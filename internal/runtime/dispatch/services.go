// Package dispatch builds the immutable routing tables derived from a loaded
// registry and runs lookups against them.
package dispatch

import (
	"context"
	"errors"
	"iter"
	"slices"

	errspkg "github.com/drblury/ssoflow/internal/runtime/errors"
	"github.com/drblury/ssoflow/internal/runtime/event"
	"github.com/drblury/ssoflow/internal/runtime/registry"
	"github.com/drblury/ssoflow/internal/runtime/service"
	"github.com/drblury/ssoflow/internal/runtime/session"
)

// ServiceTable maps a command to the one service that owns it.
type ServiceTable struct {
	byCommand map[string]registry.ServiceDescriptor
	commands  []string
}

// NewServiceTable drains services into a table. Every command declared more
// than once is reported and no table is returned.
func NewServiceTable(services iter.Seq[registry.ServiceDescriptor]) (*ServiceTable, error) {
	table := &ServiceTable{byCommand: make(map[string]registry.ServiceDescriptor)}
	duplicates := make(map[string]struct{})

	if services != nil {
		for d := range services {
			if _, exists := table.byCommand[d.Command]; exists {
				duplicates[d.Command] = struct{}{}
				continue
			}
			table.byCommand[d.Command] = d
			table.commands = append(table.commands, d.Command)
		}
	}

	if len(duplicates) > 0 {
		dups := make([]string, 0, len(duplicates))
		for command := range duplicates {
			dups = append(dups, command)
		}
		slices.Sort(dups)
		errs := make([]error, 0, len(dups))
		for _, command := range dups {
			errs = append(errs, &errspkg.DuplicateCommandError{Command: command})
		}
		return nil, errors.Join(errs...)
	}

	slices.Sort(table.commands)
	return table, nil
}

// Lookup returns the factory registered for command.
func (t *ServiceTable) Lookup(command string) (func() service.Service, bool) {
	d, ok := t.byCommand[command]
	if !ok {
		return nil, false
	}
	return d.Factory, true
}

// Descriptor returns the full descriptor registered for command.
func (t *ServiceTable) Descriptor(command string) (registry.ServiceDescriptor, bool) {
	d, ok := t.byCommand[command]
	return d, ok
}

// Resolve builds a fresh service instance for command.
func (t *ServiceTable) Resolve(command string) (service.Service, error) {
	factory, ok := t.Lookup(command)
	if !ok {
		return nil, &errspkg.ServiceNotFoundError{Command: command}
	}
	return factory(), nil
}

// Parse routes an inbound payload to the service owning command. Service
// errors are returned unchanged.
func (t *ServiceTable) Parse(ctx context.Context, command string, payload []byte, sc *session.Context) (event.Message, error) {
	svc, err := t.Resolve(command)
	if err != nil {
		return event.Message{}, err
	}
	return svc.Parse(ctx, payload, sc)
}

// Build routes an outbound request to the service owning command.
func (t *ServiceTable) Build(ctx context.Context, command string, req event.Message, sc *session.Context) ([]byte, error) {
	svc, err := t.Resolve(command)
	if err != nil {
		return nil, err
	}
	return svc.Build(ctx, req, sc)
}

// Commands lists every routed command in lexical order.
func (t *ServiceTable) Commands() []string {
	return slices.Clone(t.commands)
}

func (t *ServiceTable) Len() int {
	return len(t.byCommand)
}
