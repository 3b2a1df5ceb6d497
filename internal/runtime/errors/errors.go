package errors

import (
	sterrors "errors"
	"fmt"
	"strings"
)

var (
	ErrConfigRequired       = sterrors.New("ssoflow: configuration is required")
	ErrLoggerRequired       = sterrors.New("ssoflow: logger is required")
	ErrRegistryRequired     = sterrors.New("ssoflow: registry is required")
	ErrRegistrySealed       = sterrors.New("ssoflow: registry is sealed")
	ErrFactoryRequired      = sterrors.New("ssoflow: service factory is required")
	ErrHandlerRequired      = sterrors.New("ssoflow: handler invoker is required")
	ErrEventTypeRequired    = sterrors.New("ssoflow: event type is required")
	ErrEventPayloadRequired = sterrors.New("ssoflow: event payload is required")
	ErrInvalidEventPayload  = sterrors.New("ssoflow: event payload has an unexpected type")
	ErrParseNotImplemented  = sterrors.New("ssoflow: parse not implemented")
	ErrBuildNotImplemented  = sterrors.New("ssoflow: build not implemented")
	ErrPosterRequired       = sterrors.New("ssoflow: event poster is required")
	ErrDispatcherRequired   = sterrors.New("ssoflow: dispatcher is required")
	ErrEventBusClosed       = sterrors.New("ssoflow: event bus is closed")
	ErrEmptyProtocolPath    = sterrors.New("ssoflow: protocol path cannot be empty")
)

// ConfigValidationError wraps configuration validation failures.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "ssoflow: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// DeclarationError reports every problem found in one component declaration.
type DeclarationError struct {
	Component string
	Err       error
}

func (e *DeclarationError) Error() string {
	return fmt.Sprintf("ssoflow: invalid declaration for %s: %v", e.Component, e.Err)
}

func (e *DeclarationError) Unwrap() error {
	return e.Err
}

// MissingRequiredAttributeError is returned when a required attribute is absent.
type MissingRequiredAttributeError struct {
	Attribute string
}

func (e *MissingRequiredAttributeError) Error() string {
	return fmt.Sprintf("missing required attribute %q", e.Attribute)
}

// UnknownAttributeError is returned for attribute keys outside the valid set.
type UnknownAttributeError struct {
	Key   string
	Valid []string
}

func (e *UnknownAttributeError) Error() string {
	return fmt.Sprintf("unknown attribute %q; valid attributes: %s", e.Key, strings.Join(e.Valid, ", "))
}

// InvalidVariantError is returned when an enumerated attribute names an unknown variant.
type InvalidVariantError struct {
	Kind       string
	Given      string
	Valid      []string
	Suggestion string
}

func (e *InvalidVariantError) Error() string {
	msg := fmt.Sprintf("invalid %s %q; valid variants: %s", e.Kind, e.Given, strings.Join(e.Valid, ", "))
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", e.Suggestion)
	}
	return msg
}

// InvalidAttributeValueError is returned when an attribute carries a value of the wrong kind.
type InvalidAttributeValueError struct {
	Key  string
	Want string
	Got  any
}

func (e *InvalidAttributeValueError) Error() string {
	return fmt.Sprintf("attribute %q must be %s, got %T", e.Key, e.Want, e.Got)
}

// InvalidShapeError is returned when a declared component is not a named-field struct.
type InvalidShapeError struct {
	Type string
	Kind string
}

func (e *InvalidShapeError) Error() string {
	return fmt.Sprintf("%s must be a struct with named fields, got %s", e.Type, e.Kind)
}

// InvalidEventTypeError is returned when an event subscription names a non-concrete type.
type InvalidEventTypeError struct {
	Type string
}

func (e *InvalidEventTypeError) Error() string {
	return fmt.Sprintf("event type %s must be a concrete type", e.Type)
}

// InvalidProtocolPathError is returned when a protocol path does not resolve.
type InvalidProtocolPathError struct {
	Path       string
	Suggestion string
}

func (e *InvalidProtocolPathError) Error() string {
	msg := fmt.Sprintf("ssoflow: invalid protocol path %q", e.Path)
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", e.Suggestion)
	}
	return msg
}

// ServiceNotFoundError is returned when no service is registered for a command.
type ServiceNotFoundError struct {
	Command string
}

func (e *ServiceNotFoundError) Error() string {
	return fmt.Sprintf("ssoflow: service not found: %s", e.Command)
}

// DuplicateCommandError is returned when two services declare the same command.
type DuplicateCommandError struct {
	Command string
}

func (e *DuplicateCommandError) Error() string {
	return fmt.Sprintf("ssoflow: duplicate command registration: %s", e.Command)
}

// HandlerError carries the failure of one event handler during fan-out.
type HandlerError struct {
	Handler   string
	EventType string
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("ssoflow: handler %s failed for %s: %v", e.Handler, e.EventType, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
