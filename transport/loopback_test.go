package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sink struct {
	from []string
	data [][]byte
}

func (s *sink) handler() Handler {
	return func(peer string, data []byte) {
		s.from = append(s.from, peer)
		s.data = append(s.data, data)
	}
}

func TestLoopbackSend(t *testing.T) {
	hub := NewLoopback()
	var a, b sink
	epA := hub.Attach("a", a.handler())
	hub.Attach("b", b.handler())

	require.Nil(t, epA.Send("b", []byte("hello")))
	require.Equal(t, 1, len(b.data))
	assert.Equal(t, "hello", string(b.data[0]))
	assert.Equal(t, "a", b.from[0])
	assert.Equal(t, 0, len(a.data), "no echo to the sender")

	assert.ErrorIs(t, epA.Send("nobody", nil), ErrPeerUnknown)
}

func TestLoopbackBroadcast(t *testing.T) {
	hub := NewLoopback()
	var a, b, c sink
	epA := hub.Attach("a", a.handler())
	hub.Attach("b", b.handler())
	hub.Attach("c", c.handler())

	epA.Broadcast([]byte("x"), "c")
	assert.Equal(t, 1, len(b.data))
	assert.Equal(t, 0, len(c.data), "excepted peer skipped")
	assert.Equal(t, 0, len(a.data), "sender skipped")
}

func TestLoopbackDeliversCopies(t *testing.T) {
	hub := NewLoopback()
	var b sink
	epA := hub.Attach("a", func(string, []byte) {})
	hub.Attach("b", b.handler())

	msg := []byte{1, 2, 3}
	require.Nil(t, epA.Send("b", msg))
	msg[0] = 9
	assert.Equal(t, byte(1), b.data[0][0])
}
