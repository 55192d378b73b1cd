// Package syncwire replicates mutable collections from one authoritative
// writer to any number of read-only observers over a message channel,
// without resending the whole collection on every change.
//
// The authority mutates a List or Set through its public API; every
// mutation is recorded in a change log and announced to subscribers. A
// periodic synchronizer encodes either a full snapshot (for a new
// observer) or the accumulated delta batch (for ongoing updates), moves
// the bytes through a transport, and flushes the log once they are
// accepted. The receiving instance decodes, applies, and re-announces the
// same operations, so gameplay and UI code react identically on both
// sides of the wire.
package syncwire

import (
	"errors"
	"fmt"
)

var (
	// ErrReadOnly rejects mutation of a collection that has consumed a
	// snapshot or delta from the wire and is therefore an observer copy.
	ErrReadOnly = errors.New("syncwire: collection is read-only")

	// ErrIndexOutOfRange rejects a sequence operation addressing a
	// position outside the current backing.
	ErrIndexOutOfRange = errors.New("syncwire: index out of range")

	// ErrDesync means a received batch could not be applied cleanly.
	// The observer's state is unusable until a fresh full snapshot is
	// decoded; requesting one is the synchronizer's job.
	ErrDesync = errors.New("syncwire: protocol desync")

	// ErrUnknownTag is an ErrDesync: an operation tag outside the
	// collection's vocabulary.
	ErrUnknownTag = fmt.Errorf("%w: unknown operation tag", ErrDesync)

	// ErrCollectionUnknown names an envelope addressed to a collection
	// the synchronizer never registered.
	ErrCollectionUnknown = errors.New("syncwire: unknown collection")

	// ErrCollectionExists rejects registering the same name twice.
	ErrCollectionExists = errors.New("syncwire: collection already registered")

	// ErrChecksum is an ErrDesync: a delta envelope whose body does not
	// match its digest.
	ErrChecksum = fmt.Errorf("%w: delta checksum mismatch", ErrDesync)
)
