// Package transport moves envelope bytes between a synchronizer and its
// peers. Delivery must be reliable and ordered per peer; the collection
// protocol does not tolerate reordered or dropped delta batches.
package transport

import "errors"

var (
	ErrPeerUnknown = errors.New("syncwire: unknown peer")
	ErrClosed      = errors.New("syncwire: transport closed")
)

// Handler consumes one inbound message; peer names the sender.
type Handler func(peer string, data []byte)

// Transport is the outbound face handed to a Syncer.
type Transport interface {
	Send(peer string, data []byte) error
	Broadcast(data []byte, except string)
}
