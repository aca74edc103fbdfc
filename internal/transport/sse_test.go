package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEConn_SendAndDrain(t *testing.T) {
	c := NewSSEConn(2)
	require.NoError(t, c.Send([]byte("one")))
	require.NoError(t, c.Send([]byte("two")))

	assert.Equal(t, "one", string(<-c.Queue()))
	assert.Equal(t, "two", string(<-c.Queue()))
}

func TestSSEConn_FullQueueIsDeliveryFailure(t *testing.T) {
	c := NewSSEConn(1)
	require.NoError(t, c.Send([]byte("one")))
	assert.ErrorIs(t, c.Send([]byte("two")), ErrQueueFull)
}

func TestSSEConn_SendAfterClose(t *testing.T) {
	c := NewSSEConn(1)
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Send([]byte("x")), ErrClosed)

	select {
	case <-c.Done():
	default:
		t.Fatal("Done must be closed")
	}
}

func TestSSEConn_CloseIsIdempotent(t *testing.T) {
	c := NewSSEConn(1)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestSSEConn_DefaultQueueSize(t *testing.T) {
	c := NewSSEConn(0)
	for i := 0; i < DefaultQueueSize; i++ {
		require.NoError(t, c.Send([]byte("x")))
	}
	assert.ErrorIs(t, c.Send([]byte("overflow")), ErrQueueFull)
}
