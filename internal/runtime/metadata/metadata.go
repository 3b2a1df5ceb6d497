// Package metadata holds the string headers that travel with events and
// sessions.
package metadata

import "github.com/ThreeDotsLabs/watermill/message"

// Well-known keys set by the dispatcher and the event bus.
const (
	KeyEventType  = "ssoflow_event_type"
	KeyEventID    = "ssoflow_event_id"
	KeyDispatchID = "ssoflow_dispatch_id"
	KeyCommand    = "ssoflow_command"
	KeyProtocol   = "ssoflow_protocol"

	// KeyContentType is "application/json" or "application/protojson".
	KeyContentType = "ssoflow_content_type"
)

// Metadata represents headers carried alongside an event or a session.
type Metadata map[string]string

// Clone returns a shallow copy. The result is never nil.
func (m Metadata) Clone() Metadata {
	cloned := make(Metadata, len(m))
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// With returns a copy containing the provided key/value pair.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.Clone()
	cloned[key] = value
	return cloned
}

// WithAll returns a copy containing the supplied entries; entries win on conflict.
func (m Metadata) WithAll(entries Metadata) Metadata {
	cloned := m.Clone()
	for k, v := range entries {
		cloned[k] = v
	}
	return cloned
}

// Get returns the value for key, or "" when absent or m is nil.
func (m Metadata) Get(key string) string {
	return m[key]
}

// New constructs Metadata from alternating key/value pairs. A trailing key
// without value is dropped.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}

// FromWatermill copies watermill message headers.
func FromWatermill(md message.Metadata) Metadata {
	return Metadata(md).Clone()
}

// ToWatermill copies m into a watermill header map.
func ToWatermill(m Metadata) message.Metadata {
	return message.Metadata(m.Clone())
}
