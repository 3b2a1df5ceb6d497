// Package system holds the session keep-alive service.
package system

import (
	"context"

	"github.com/drblury/ssoflow/internal/runtime/declare"
	"github.com/drblury/ssoflow/internal/runtime/event"
	"github.com/drblury/ssoflow/internal/runtime/service"
	"github.com/drblury/ssoflow/internal/runtime/session"
)

// Command is the command served by AliveService.
const Command = "Heartbeat.Alive"

// AliveRequest asks the server to keep the session alive.
type AliveRequest struct{}

// AliveResponse is the server's acknowledgement.
type AliveResponse struct{}

// heartbeatPayload is the fixed body of every keep-alive request.
var heartbeatPayload = []byte{0x00, 0x00, 0x00, 0x04}

// AliveService answers Heartbeat.Alive. It is declared with disable_log so
// the periodic keep-alive does not flood the logs.
type AliveService struct {
	service.Base
}

func init() {
	declare.MustService[AliveService](nil, declare.Attributes{
		declare.AttrCommand:     Command,
		declare.AttrRequestType: service.Simple,
		declare.AttrEncryptType: service.EncryptEmpty,
		declare.AttrDisableLog:  true,
	})
}

func (s *AliveService) Parse(context.Context, []byte, *session.Context) (event.Message, error) {
	return event.New(AliveResponse{}), nil
}

func (s *AliveService) Build(ctx context.Context, req event.Message, sc *session.Context) ([]byte, error) {
	return service.BuildAs(ctx, req, sc, func(context.Context, AliveRequest, *session.Context) ([]byte, error) {
		out := make([]byte, len(heartbeatPayload))
		copy(out, heartbeatPayload)
		return out, nil
	})
}
