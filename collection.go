package syncwire

import "github.com/syncwire/syncwire/protocol"

// Collection is the shape-independent face a replicated collection shows
// the synchronizer. List and Set both satisfy it.
type Collection interface {
	// SerializeAll writes the full current value plus the pending-log
	// length, for a brand-new observer.
	SerializeAll(w *protocol.Writer)

	// DeserializeAll replaces the local value with a received snapshot
	// and makes this instance permanently read-only.
	DeserializeAll(r *protocol.Reader) error

	// SerializeDelta writes every pending change record in log order
	// and returns how many it covered. It does not clear the log;
	// Flush does, once the bytes were accepted by the transport.
	SerializeDelta(w *protocol.Writer) int

	// DeserializeDelta applies a received batch, skipping records the
	// prior snapshot already contained, and makes this instance
	// permanently read-only.
	DeserializeDelta(r *protocol.Reader) error

	// Flush discards exactly the records the last SerializeDelta wrote.
	Flush()

	Dirty() bool
	Pending() int
	Version() uint64
}
