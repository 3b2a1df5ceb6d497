// Package session carries the per-connection capabilities handed to every
// service and event handler invocation.
package session

import (
	"context"

	errspkg "github.com/drblury/ssoflow/internal/runtime/errors"
	"github.com/drblury/ssoflow/internal/runtime/event"
	"github.com/drblury/ssoflow/internal/runtime/logging"
	"github.com/drblury/ssoflow/internal/runtime/metadata"
	"github.com/drblury/ssoflow/internal/runtime/protocol"
)

// Poster accepts follow-up events raised while handling a dispatch.
type Poster interface {
	Post(ctx context.Context, msg event.Message) error
}

// Context is shared by every dispatch that belongs to one client session.
// It is treated as read-only once dispatching starts.
type Context struct {
	Protocol protocol.Protocol
	Logger   logging.ServiceLogger
	Metadata metadata.Metadata
	Poster   Poster
}

// Option configures a Context.
type Option func(*Context)

func WithLogger(logger logging.ServiceLogger) Option {
	return func(c *Context) {
		c.Logger = logger
	}
}

func WithMetadata(md metadata.Metadata) Option {
	return func(c *Context) {
		c.Metadata = c.Metadata.WithAll(md)
	}
}

func WithPoster(p Poster) Option {
	return func(c *Context) {
		c.Poster = p
	}
}

// New creates a Context for the given platform.
func New(p protocol.Protocol, opts ...Option) *Context {
	sc := &Context{Protocol: p, Metadata: metadata.Metadata{}}
	for _, opt := range opts {
		if opt != nil {
			opt(sc)
		}
	}
	if sc.Logger == nil {
		sc.Logger = logging.NewDiscardLogger()
	}
	return sc
}

// Post forwards msg to the attached Poster.
func (c *Context) Post(ctx context.Context, msg event.Message) error {
	if c == nil || c.Poster == nil {
		return errspkg.ErrPosterRequired
	}
	return c.Poster.Post(ctx, msg)
}

// Log returns the session logger, or a discarding one.
func (c *Context) Log() logging.ServiceLogger {
	if c == nil || c.Logger == nil {
		return logging.NewDiscardLogger()
	}
	return c.Logger
}

// ActiveProtocol returns the session platform, or fallback when unset.
func (c *Context) ActiveProtocol(fallback protocol.Protocol) protocol.Protocol {
	if c == nil || c.Protocol == protocol.None {
		return fallback
	}
	return c.Protocol
}
