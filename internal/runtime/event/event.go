// Package event defines the identity and envelope of dispatched events.
package event

import (
	"fmt"
	"strings"
	"sync"

	"github.com/drblury/ssoflow/internal/runtime/metadata"
)

type typeKey[E any] struct{}

func (typeKey[E]) typeName() string {
	return strings.TrimPrefix(fmt.Sprintf("%T", (*E)(nil)), "*")
}

type namedKey interface {
	typeName() string
}

// names caches the printed name per key; %T is only evaluated once per type.
var names sync.Map

// Type identifies one event kind. Two Types compare equal exactly when they
// were produced by TypeOf for the same Go type.
type Type struct {
	key namedKey
}

// TypeOf returns the identity of E. It allocates nothing.
func TypeOf[E any]() Type {
	return Type{key: typeKey[E]{}}
}

// IsZero reports whether t was never initialised through TypeOf.
func (t Type) IsZero() bool {
	return t.key == nil
}

func (t Type) String() string {
	if t.IsZero() {
		return "<none>"
	}
	if name, ok := names.Load(t.key); ok {
		return name.(string)
	}
	name, _ := names.LoadOrStore(t.key, t.key.typeName())
	return name.(string)
}

// Message carries one typed event through dispatch.
type Message struct {
	typ      Type
	payload  any
	Metadata metadata.Metadata
}

// New wraps payload into a message tagged with the identity of E.
func New[E any](payload E) Message {
	return Message{typ: TypeOf[E](), payload: payload, Metadata: metadata.Metadata{}}
}

func (m Message) Type() Type {
	return m.typ
}

func (m Message) Payload() any {
	return m.payload
}

// IsZero reports whether m carries no event.
func (m Message) IsZero() bool {
	return m.typ.IsZero()
}

// WithMetadata returns a copy of m whose metadata also holds entries.
func (m Message) WithMetadata(entries metadata.Metadata) Message {
	m.Metadata = m.Metadata.WithAll(entries)
	return m
}

// As extracts the payload when msg was built for E.
func As[E any](msg Message) (E, bool) {
	var zero E
	if _, ok := msg.typ.key.(typeKey[E]); !ok {
		return zero, false
	}
	payload, ok := msg.payload.(E)
	if !ok {
		return zero, false
	}
	return payload, true
}
