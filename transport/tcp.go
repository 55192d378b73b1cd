package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/syncwire/syncwire/protocol"
	"github.com/syncwire/syncwire/utils"
)

// TCP frames envelopes as TLV 'M' records over plain TCP connections.
// Accepted connections get uuid peer names; dialed ones are named by
// address. TCP gives the per-peer ordering the protocol needs.
type TCP struct {
	log     utils.Logger
	handler Handler

	closed    atomic.Bool
	wg        sync.WaitGroup
	conns     *xsync.MapOf[string, *tcpConn]
	listeners *xsync.MapOf[string, net.Listener]
}

type tcpConn struct {
	nc  net.Conn
	wmu sync.Mutex
}

func NewTCP(log utils.Logger, h Handler) *TCP {
	return &TCP{
		log:       log,
		handler:   h,
		conns:     xsync.NewMapOf[string, *tcpConn](),
		listeners: xsync.NewMapOf[string, net.Listener](),
	}
}

func (t *TCP) Close() error {
	t.closed.Store(true)
	t.listeners.Range(func(_ string, l net.Listener) bool {
		l.Close()
		return true
	})
	t.listeners.Clear()
	t.conns.Range(func(_ string, c *tcpConn) bool {
		c.nc.Close()
		return true
	})
	t.conns.Clear()
	t.wg.Wait()
	return nil
}

// Listen accepts peers on addr and returns the bound address, which
// matters when addr asks for an ephemeral port.
func (t *TCP) Listen(ctx context.Context, addr string) (string, error) {
	cfg := net.ListenConfig{}
	listener, err := cfg.Listen(ctx, "tcp", addr)
	if err != nil {
		return "", err
	}
	bound := listener.Addr().String()
	t.listeners.Store(bound, listener)
	t.log.Info("tcp: listening", "addr", bound)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			nc, aerr := listener.Accept()
			if aerr != nil {
				if !t.closed.Load() {
					t.log.Error("tcp: accept failed", "addr", bound, "err", aerr)
				}
				return
			}
			t.install("tcp:"+uuid.New().String(), nc)
		}
	}()
	return bound, nil
}

func (t *TCP) Connect(ctx context.Context, addr string) (name string, err error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", err
	}
	t.install(addr, nc)
	return addr, nil
}

func (t *TCP) install(name string, nc net.Conn) {
	conn := &tcpConn{nc: nc}
	t.conns.Store(name, conn)
	t.log.Debug("tcp: peer up", "peer", name, "remote", nc.RemoteAddr().String())
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.readLoop(name, nc)
	}()
}

func (t *TCP) readLoop(name string, nc net.Conn) {
	defer func() {
		nc.Close()
		t.conns.Delete(name)
		t.log.Debug("tcp: peer down", "peer", name)
	}()

	var pending bytes.Buffer
	chunk := make([]byte, 1<<16)
	for {
		n, err := nc.Read(chunk)
		if n > 0 {
			pending.Write(chunk[:n])
			recs, serr := protocol.Split(&pending)
			if serr != nil && !errors.Is(serr, protocol.ErrIncomplete) {
				t.log.Error("tcp: bad frame", "peer", name, "err", serr)
				return
			}
			for _, rec := range recs {
				body, _ := protocol.Take('M', rec)
				if body == nil {
					t.log.Error("tcp: unexpected frame type", "peer", name)
					return
				}
				t.handler(name, body)
			}
		}
		if err != nil {
			if !t.closed.Load() {
				t.log.Debug("tcp: read ended", "peer", name, "err", err)
			}
			return
		}
	}
}

func (t *TCP) Send(peer string, data []byte) error {
	if t.closed.Load() {
		return ErrClosed
	}
	conn, ok := t.conns.Load(peer)
	if !ok {
		return ErrPeerUnknown
	}
	frame := protocol.Record('M', data)
	conn.wmu.Lock()
	defer conn.wmu.Unlock()
	for len(frame) > 0 {
		n, err := conn.nc.Write(frame)
		if err != nil {
			return err
		}
		frame = frame[n:]
	}
	return nil
}

func (t *TCP) Broadcast(data []byte, except string) {
	t.conns.Range(func(name string, _ *tcpConn) bool {
		if name == except {
			return true
		}
		if err := t.Send(name, data); err != nil {
			t.log.Warn("tcp: broadcast send failed", "peer", name, "err", err)
		}
		return true
	})
}
