package transport

import "sync"

// Loopback is an in-process hub: every attached endpoint can send to any
// other by name. Delivery is synchronous and in send order, which makes
// it the transport of choice for tests and demos.
type Loopback struct {
	mu        sync.Mutex
	endpoints map[string]Handler
}

func NewLoopback() *Loopback {
	return &Loopback{endpoints: make(map[string]Handler)}
}

// Attach registers an endpoint and returns its outbound face.
func (l *Loopback) Attach(name string, h Handler) *Endpoint {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.endpoints[name] = h
	return &Endpoint{hub: l, name: name}
}

func (l *Loopback) handler(name string) (Handler, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.endpoints[name]
	return h, ok
}

type Endpoint struct {
	hub  *Loopback
	name string
}

func (e *Endpoint) Send(peer string, data []byte) error {
	h, ok := e.hub.handler(peer)
	if !ok {
		return ErrPeerUnknown
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	h(e.name, buf)
	return nil
}

func (e *Endpoint) Broadcast(data []byte, except string) {
	e.hub.mu.Lock()
	names := make([]string, 0, len(e.hub.endpoints))
	for name := range e.hub.endpoints {
		if name != e.name && name != except {
			names = append(names, name)
		}
	}
	e.hub.mu.Unlock()
	for _, name := range names {
		_ = e.Send(name, data)
	}
}
