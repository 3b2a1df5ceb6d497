package system

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/ssoflow/internal/runtime/errors"
	"github.com/drblury/ssoflow/internal/runtime/event"
	"github.com/drblury/ssoflow/internal/runtime/protocol"
	"github.com/drblury/ssoflow/internal/runtime/registry"
	"github.com/drblury/ssoflow/internal/runtime/service"
	"github.com/drblury/ssoflow/internal/runtime/session"
)

func TestAliveServiceIsRegistered(t *testing.T) {
	require.NoError(t, registry.DefaultRegistry.Load())

	descriptors := slices.Collect(registry.DefaultRegistry.AllServices())
	idx := slices.IndexFunc(descriptors, func(d registry.ServiceDescriptor) bool { return d.Command == Command })
	require.GreaterOrEqual(t, idx, 0)

	d := descriptors[idx]
	assert.Equal(t, service.Simple, d.RequestType)
	assert.Equal(t, service.EncryptEmpty, d.EncryptType)
	assert.True(t, d.DisableLog)
	assert.Equal(t, "system.AliveService", d.Component)

	svc := d.Factory()
	assert.Equal(t, Command, svc.Metadata().Command)
	assert.True(t, svc.Metadata().DisableLog)
}

func TestAliveServiceParseAndBuild(t *testing.T) {
	sc := session.New(protocol.Linux)
	svc := &AliveService{}

	msg, err := svc.Parse(context.Background(), nil, sc)
	require.NoError(t, err)
	_, ok := event.As[AliveResponse](msg)
	assert.True(t, ok)

	payload, err := svc.Build(context.Background(), event.New(AliveRequest{}), sc)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x04}, payload)

	// Callers may not corrupt the shared payload.
	payload[3] = 0xff
	again, err := svc.Build(context.Background(), event.New(AliveRequest{}), sc)
	require.NoError(t, err)
	assert.Equal(t, byte(0x04), again[3])

	_, err = svc.Build(context.Background(), event.New(AliveResponse{}), sc)
	assert.ErrorIs(t, err, errspkg.ErrInvalidEventPayload)
}
