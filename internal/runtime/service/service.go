// Package service defines the request/response contract that declared
// services implement, and the metadata injected into each instance.
package service

import (
	"context"
	"fmt"

	errspkg "github.com/drblury/ssoflow/internal/runtime/errors"
	"github.com/drblury/ssoflow/internal/runtime/event"
	"github.com/drblury/ssoflow/internal/runtime/session"
)

// Metadata is the runtime-visible description of a service instance.
type Metadata struct {
	Command     string
	RequestType RequestType
	EncryptType EncryptType
	DisableLog  bool
}

// NewMetadata starts a builder for command with every optional field unset.
func NewMetadata(command string) Metadata {
	return Metadata{Command: command}
}

func (m Metadata) WithRequestType(r RequestType) Metadata {
	m.RequestType = r
	return m
}

func (m Metadata) WithEncryptType(e EncryptType) Metadata {
	m.EncryptType = e
	return m
}

func (m Metadata) WithDisableLog(disable bool) Metadata {
	m.DisableLog = disable
	return m
}

// Service is implemented by every declared request/response component.
// Parse decodes an inbound payload; Build encodes an outbound request.
type Service interface {
	Parse(ctx context.Context, payload []byte, sc *session.Context) (event.Message, error)
	Build(ctx context.Context, req event.Message, sc *session.Context) ([]byte, error)
	Metadata() *Metadata
}

// Base is embedded by services to hold their injected metadata.
type Base struct {
	meta Metadata
}

// BindMetadata is called once by the generated factory.
func (b *Base) BindMetadata(m Metadata) {
	b.meta = m
}

func (b *Base) Metadata() *Metadata {
	return &b.meta
}

func (b *Base) Parse(context.Context, []byte, *session.Context) (event.Message, error) {
	return event.Message{}, errspkg.ErrParseNotImplemented
}

func (b *Base) Build(context.Context, event.Message, *session.Context) ([]byte, error) {
	return nil, errspkg.ErrBuildNotImplemented
}

// ParseAs runs a typed decoder and wraps its result as an event message.
func ParseAs[Resp any](ctx context.Context, payload []byte, sc *session.Context, decode func(context.Context, []byte, *session.Context) (Resp, error)) (event.Message, error) {
	resp, err := decode(ctx, payload, sc)
	if err != nil {
		return event.Message{}, err
	}
	return event.New(resp), nil
}

// BuildAs unwraps a typed request and runs the encoder on it. A message of
// another type fails with ErrInvalidEventPayload.
func BuildAs[Req any](ctx context.Context, req event.Message, sc *session.Context, encode func(context.Context, Req, *session.Context) ([]byte, error)) ([]byte, error) {
	typed, ok := event.As[Req](req)
	if !ok {
		return nil, fmt.Errorf("%w: want %s, got %s", errspkg.ErrInvalidEventPayload, event.TypeOf[Req](), req.Type())
	}
	return encode(ctx, typed, sc)
}

// Packet is one framed SSO exchange as seen by the dispatcher.
type Packet struct {
	Sequence uint32
	Command  string
	Data     []byte
}
