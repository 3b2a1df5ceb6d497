// Package login holds the password login service.
package login

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/drblury/ssoflow/internal/runtime/declare"
	"github.com/drblury/ssoflow/internal/runtime/event"
	"github.com/drblury/ssoflow/internal/runtime/logging"
	"github.com/drblury/ssoflow/internal/runtime/service"
	"github.com/drblury/ssoflow/internal/runtime/session"
)

// Command is the command served by Service.
const Command = "wtlogin.login"

// Field numbers of the login payloads.
const (
	fieldUin      protowire.Number = 1
	fieldPassword protowire.Number = 2

	fieldSuccess protowire.Number = 1
	fieldMessage protowire.Number = 2
)

const (
	messageSucceeded = "Login successful"
	messageFailed    = "Login failed"
)

var (
	ErrUinRequired     = errors.New("login: uin is required")
	ErrMalformedAnswer = errors.New("login: malformed response")
)

// Request asks the server to log in with a password.
type Request struct {
	Uin      uint64 `json:"uin"`
	Password string `json:"password"`
}

// Response is the server's verdict on a Request.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type Service struct {
	service.Base
}

func init() {
	declare.MustService[Service](nil, declare.Attributes{
		declare.AttrCommand:     Command,
		declare.AttrRequestType: "RequestType::D2Auth",
		declare.AttrEncryptType: "EncryptType::EncryptEmpty",
	})
}

// Parse decodes the login response. An empty body is a failed login.
func (s *Service) Parse(ctx context.Context, payload []byte, sc *session.Context) (event.Message, error) {
	return service.ParseAs(ctx, payload, sc, decodeResponse)
}

func (s *Service) Build(ctx context.Context, req event.Message, sc *session.Context) ([]byte, error) {
	return service.BuildAs(ctx, req, sc, encodeRequest)
}

func encodeRequest(_ context.Context, req Request, sc *session.Context) ([]byte, error) {
	if req.Uin == 0 {
		return nil, ErrUinRequired
	}
	sc.Log().Debug("Building login request", logging.LogFields{"uin": req.Uin})

	var b []byte
	b = protowire.AppendTag(b, fieldUin, protowire.VarintType)
	b = protowire.AppendVarint(b, req.Uin)
	b = protowire.AppendTag(b, fieldPassword, protowire.BytesType)
	b = protowire.AppendString(b, req.Password)
	return b, nil
}

func decodeResponse(_ context.Context, payload []byte, sc *session.Context) (Response, error) {
	sc.Log().Debug("Parsing login response", logging.LogFields{"bytes": len(payload)})
	if len(payload) == 0 {
		return Response{Message: messageFailed}, nil
	}

	resp := Response{Success: true}
	for len(payload) > 0 {
		num, typ, n := protowire.ConsumeTag(payload)
		if n < 0 {
			return Response{}, fmt.Errorf("%w: %v", ErrMalformedAnswer, protowire.ParseError(n))
		}
		payload = payload[n:]

		switch {
		case num == fieldSuccess && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(payload)
			if m < 0 {
				return Response{}, fmt.Errorf("%w: %v", ErrMalformedAnswer, protowire.ParseError(m))
			}
			resp.Success = protowire.DecodeBool(v)
			n = m
		case num == fieldMessage && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(payload)
			if m < 0 {
				return Response{}, fmt.Errorf("%w: %v", ErrMalformedAnswer, protowire.ParseError(m))
			}
			resp.Message = v
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, payload)
			if n < 0 {
				return Response{}, fmt.Errorf("%w: %v", ErrMalformedAnswer, protowire.ParseError(n))
			}
		}
		payload = payload[n:]
	}

	if resp.Message == "" {
		resp.Message = messageFailed
		if resp.Success {
			resp.Message = messageSucceeded
		}
	}
	return resp, nil
}
