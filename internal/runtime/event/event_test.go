package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/ssoflow/internal/runtime/metadata"
)

type loginEvent struct {
	Uin uint64
}

type kickEvent struct {
	Reason string
}

type aliasEvent = loginEvent

func TestTypeOfIsStableAndDistinct(t *testing.T) {
	assert.Equal(t, TypeOf[loginEvent](), TypeOf[loginEvent]())
	assert.NotEqual(t, TypeOf[loginEvent](), TypeOf[kickEvent]())
	assert.NotEqual(t, TypeOf[loginEvent](), TypeOf[*loginEvent]())
	assert.Equal(t, TypeOf[loginEvent](), TypeOf[aliasEvent]())
}

func TestTypeUsableAsMapKey(t *testing.T) {
	seen := map[Type]int{}
	seen[TypeOf[loginEvent]()]++
	seen[TypeOf[loginEvent]()]++
	seen[TypeOf[kickEvent]()]++

	assert.Equal(t, 2, seen[TypeOf[loginEvent]()])
	assert.Equal(t, 1, seen[TypeOf[kickEvent]()])
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "event.loginEvent", TypeOf[loginEvent]().String())
	assert.Equal(t, "*event.loginEvent", TypeOf[*loginEvent]().String())
	assert.Equal(t, "<none>", Type{}.String())
	assert.True(t, Type{}.IsZero())
}

func TestNewAndAs(t *testing.T) {
	msg := New(loginEvent{Uin: 42})
	assert.Equal(t, TypeOf[loginEvent](), msg.Type())
	assert.False(t, msg.IsZero())

	got, ok := As[loginEvent](msg)
	require.True(t, ok)
	assert.Equal(t, uint64(42), got.Uin)

	_, ok = As[kickEvent](msg)
	assert.False(t, ok)

	_, ok = As[loginEvent](Message{})
	assert.False(t, ok)
}

func TestTypeOfAndAsDoNotAllocate(t *testing.T) {
	msg := New(loginEvent{Uin: 7})
	_ = msg.Type().String()

	allocs := testing.AllocsPerRun(100, func() {
		_ = TypeOf[loginEvent]()
		_, _ = As[loginEvent](msg)
		_ = msg.Type().String()
	})
	assert.Zero(t, allocs)
}

func TestWithMetadataCopies(t *testing.T) {
	msg := New(kickEvent{Reason: "timeout"})
	tagged := msg.WithMetadata(metadata.Metadata{metadata.KeyEventID: "01H"})

	assert.Empty(t, msg.Metadata)
	assert.Equal(t, "01H", tagged.Metadata.Get(metadata.KeyEventID))
	assert.Equal(t, msg.Type(), tagged.Type())
}
