// Package declare turns component declarations into registry entries.
//
// A declaration is an Attributes value plus the component's Go type. Services
// are declared with Service, event handlers with Event, usually from an init
// function. Nothing is validated until the registry loads, at which point
// every problem of one component is reported together.
package declare

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"

	errspkg "github.com/drblury/ssoflow/internal/runtime/errors"
	"github.com/drblury/ssoflow/internal/runtime/event"
	"github.com/drblury/ssoflow/internal/runtime/protocol"
	"github.com/drblury/ssoflow/internal/runtime/registry"
	"github.com/drblury/ssoflow/internal/runtime/service"
	"github.com/drblury/ssoflow/internal/runtime/session"
)

// Attributes is the declaration object of one component.
type Attributes map[string]any

// Attribute keys.
const (
	AttrCommand     = "command"
	AttrRequestType = "request_type"
	AttrEncryptType = "encrypt_type"
	AttrDisableLog  = "disable_log"
	AttrProtocol    = "protocol"
)

var (
	serviceKeys = []string{AttrCommand, AttrRequestType, AttrEncryptType, AttrDisableLog}
	eventKeys   = []string{AttrProtocol}
)

// ServiceType constrains PT to *T implementing service.Service with an
// injectable metadata field, which embedding service.Base provides.
type ServiceType[T any] interface {
	*T
	service.Service
	BindMetadata(service.Metadata)
}

// HandlerType constrains PH to *H handling events of type E.
type HandlerType[H, E any] interface {
	*H
	Handle(ctx context.Context, sc *session.Context, ev E) ([]byte, error)
}

// ProcessService validates attrs for the service T and returns its descriptor.
func ProcessService[T any, PT ServiceType[T]](attrs Attributes) (registry.ServiceDescriptor, error) {
	component := componentName[T]()
	var errs []error

	if err := requireStruct[T](); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, unknownKeys(attrs, serviceKeys)...)

	meta, metaErrs := serviceMetadata(attrs)
	errs = append(errs, metaErrs...)

	if len(errs) > 0 {
		return registry.ServiceDescriptor{}, &errspkg.DeclarationError{Component: component, Err: errors.Join(errs...)}
	}

	return registry.ServiceDescriptor{
		Command:     meta.Command,
		RequestType: meta.RequestType,
		EncryptType: meta.EncryptType,
		DisableLog:  meta.DisableLog,
		Component:   component,
		Factory: func() service.Service {
			instance := PT(new(T))
			instance.BindMetadata(meta)
			return instance
		},
	}, nil
}

// ProcessEvent validates attrs for handler H subscribing to E.
func ProcessEvent[E, H any, PH HandlerType[H, E]](attrs Attributes) (registry.EventSubscription, error) {
	component := componentName[H]()
	var errs []error

	if err := requireConcrete[E](); err != nil {
		errs = append(errs, err)
	}
	if err := requireStruct[H](); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, unknownKeys(attrs, eventKeys)...)

	mask := protocol.ALL
	if raw, ok := attrs[AttrProtocol]; ok {
		resolved, err := protocolMask(raw)
		if err != nil {
			errs = append(errs, err)
		} else {
			mask = resolved
		}
	}

	if len(errs) > 0 {
		return registry.EventSubscription{}, &errspkg.DeclarationError{Component: component, Err: errors.Join(errs...)}
	}

	return registry.EventSubscription{
		EventType:    event.TypeOf[E](),
		ProtocolMask: mask,
		Handler:      component,
		Invoke: func(ctx context.Context, sc *session.Context, msg event.Message) ([]byte, error) {
			ev, ok := event.As[E](msg)
			if !ok {
				return nil, fmt.Errorf("%w: %s cannot handle %s", errspkg.ErrInvalidEventPayload, component, msg.Type())
			}
			return PH(new(H)).Handle(ctx, sc, ev)
		},
	}, nil
}

// Service queues the declaration of T on reg, or on the default registry
// when reg is nil.
func Service[T any, PT ServiceType[T]](reg *registry.Registry, attrs Attributes) error {
	if reg == nil {
		reg = registry.DefaultRegistry
	}
	snapshot := cloneAttributes(attrs)
	return reg.ContributeService(componentName[T](), func() (registry.ServiceDescriptor, error) {
		return ProcessService[T, PT](snapshot)
	})
}

// Event queues the subscription of handler H to E.
func Event[E, H any, PH HandlerType[H, E]](reg *registry.Registry, attrs Attributes) error {
	if reg == nil {
		reg = registry.DefaultRegistry
	}
	snapshot := cloneAttributes(attrs)
	return reg.ContributeEvent(componentName[H](), func() (registry.EventSubscription, error) {
		return ProcessEvent[E, H, PH](snapshot)
	})
}

// MustService is Service for init functions; it panics only when the
// registry is already sealed.
func MustService[T any, PT ServiceType[T]](reg *registry.Registry, attrs Attributes) {
	if err := Service[T, PT](reg, attrs); err != nil {
		panic(err)
	}
}

// MustEvent is Event for init functions.
func MustEvent[E, H any, PH HandlerType[H, E]](reg *registry.Registry, attrs Attributes) {
	if err := Event[E, H, PH](reg, attrs); err != nil {
		panic(err)
	}
}

func serviceMetadata(attrs Attributes) (service.Metadata, []error) {
	var errs []error

	command, err := stringAttr(attrs, AttrCommand)
	switch {
	case err != nil:
		errs = append(errs, err)
	case command == "":
		errs = append(errs, &errspkg.MissingRequiredAttributeError{Attribute: AttrCommand})
	}
	meta := service.NewMetadata(command)

	if raw, ok := attrs[AttrRequestType]; ok {
		rt, err := requestType(raw)
		if err != nil {
			errs = append(errs, err)
		}
		meta = meta.WithRequestType(rt)
	}
	if raw, ok := attrs[AttrEncryptType]; ok {
		et, err := encryptType(raw)
		if err != nil {
			errs = append(errs, err)
		}
		meta = meta.WithEncryptType(et)
	}
	if raw, ok := attrs[AttrDisableLog]; ok {
		disable, isBool := raw.(bool)
		if !isBool {
			errs = append(errs, &errspkg.InvalidAttributeValueError{Key: AttrDisableLog, Want: "a bool", Got: raw})
		}
		meta = meta.WithDisableLog(disable)
	}
	return meta, errs
}

func stringAttr(attrs Attributes, key string) (string, error) {
	raw, ok := attrs[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", &errspkg.InvalidAttributeValueError{Key: key, Want: "a string", Got: raw}
	}
	return s, nil
}

func requestType(raw any) (service.RequestType, error) {
	switch v := raw.(type) {
	case service.RequestType:
		if !v.IsSet() {
			return service.RequestTypeNone, invalidEnum(AttrRequestType, v.String(), variantNames(service.RequestTypeVariants()))
		}
		return v, nil
	case string:
		return service.ParseRequestType(v)
	default:
		return service.RequestTypeNone, &errspkg.InvalidAttributeValueError{Key: AttrRequestType, Want: "a request type", Got: raw}
	}
}

func encryptType(raw any) (service.EncryptType, error) {
	switch v := raw.(type) {
	case service.EncryptType:
		if !v.IsSet() {
			return service.EncryptTypeNone, invalidEnum(AttrEncryptType, v.String(), variantNames(service.EncryptTypeVariants()))
		}
		return v, nil
	case string:
		return service.ParseEncryptType(v)
	default:
		return service.EncryptTypeNone, &errspkg.InvalidAttributeValueError{Key: AttrEncryptType, Want: "an encrypt type", Got: raw}
	}
}

func protocolMask(raw any) (protocol.Mask, error) {
	switch v := raw.(type) {
	case string:
		return protocol.ResolvePath(v)
	case protocol.Mask:
		if !v.Valid() {
			return 0, &errspkg.InvalidProtocolPathError{Path: v.String()}
		}
		return v, nil
	case protocol.Protocol:
		if !v.Valid() {
			return 0, &errspkg.InvalidProtocolPathError{Path: v.String()}
		}
		return protocol.BitFor(v), nil
	default:
		return 0, &errspkg.InvalidAttributeValueError{Key: AttrProtocol, Want: "a protocol path", Got: raw}
	}
}

func unknownKeys(attrs Attributes, valid []string) []error {
	var errs []error
	for _, key := range sortedKeys(attrs) {
		if !slices.Contains(valid, key) {
			errs = append(errs, &errspkg.UnknownAttributeError{Key: key, Valid: valid})
		}
	}
	return errs
}

func sortedKeys(attrs Attributes) []string {
	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

func cloneAttributes(attrs Attributes) Attributes {
	out := make(Attributes, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

func invalidEnum(kind, given string, valid []string) error {
	return &errspkg.InvalidVariantError{Kind: kind, Given: given, Valid: valid}
}

func variantNames[T fmt.Stringer](variants []T) []string {
	names := make([]string, 0, len(variants))
	for _, v := range variants {
		names = append(names, v.String())
	}
	return names
}

func componentName[T any]() string {
	return reflect.TypeFor[T]().String()
}

// requireStruct checks the declared component is a record type. Reflection
// runs here, once per declaration, never while dispatching.
func requireStruct[T any]() error {
	t := reflect.TypeFor[T]()
	if t.Kind() != reflect.Struct {
		return &errspkg.InvalidShapeError{Type: t.String(), Kind: t.Kind().String()}
	}
	return nil
}

func requireConcrete[E any]() error {
	t := reflect.TypeFor[E]()
	if t.Kind() == reflect.Interface {
		return &errspkg.InvalidEventTypeError{Type: t.String()}
	}
	return nil
}
