package syncwire

// Op tags one entry of a collection's mutation vocabulary. Tag values are
// wire-stable; renumbering is a protocol version bump. Sequences use
// Add, Clear, Insert, RemoveAt and Set; sets use Add, Clear and Remove
// (which shares the byte value of Insert, the vocabularies never mix on
// one wire).
type Op byte

const (
	OpAdd      Op = 0
	OpClear    Op = 1
	OpInsert   Op = 2
	OpRemove   Op = 2
	OpRemoveAt Op = 4
	OpSet      Op = 5
)

// String names sequence tags; set code paths name OpRemove themselves.
func (op Op) String() string {
	switch op {
	case OpAdd:
		return "Add"
	case OpClear:
		return "Clear"
	case OpInsert:
		return "Insert"
	case OpRemoveAt:
		return "RemoveAt"
	case OpSet:
		return "Set"
	}
	return "Op?"
}

// Change is one pending mutation record: the tag plus only the operands
// that tag requires. Log order is significant and is preserved exactly
// on the wire.
type Change[T any] struct {
	Op    Op
	Index int
	Item  T
}

// changeLog holds the mutations not yet flushed to a delta send. The
// owning collection's mutex guards every call.
//
// The flush discipline is snapshot-then-clear-exactly-what-was-
// snapshotted: take marks how many records the last delta encode
// covered, ack drops precisely those. A mutation that lands between the
// two stays in the log for the next batch instead of being silently
// lost with the bytes already captured.
type changeLog[T any] struct {
	recs     []Change[T]
	inflight int
}

func (l *changeLog[T]) record(c Change[T]) {
	l.recs = append(l.recs, c)
}

func (l *changeLog[T]) dirty() bool {
	return len(l.recs) > 0
}

func (l *changeLog[T]) pending() int {
	return len(l.recs)
}

// take returns the records a delta encode must cover and remembers the
// cut for ack.
func (l *changeLog[T]) take() []Change[T] {
	l.inflight = len(l.recs)
	return l.recs[:l.inflight]
}

// ack discards the records covered by the last take.
func (l *changeLog[T]) ack() {
	if l.inflight == 0 {
		return
	}
	n := copy(l.recs, l.recs[l.inflight:])
	l.recs = l.recs[:n]
	l.inflight = 0
}

func (l *changeLog[T]) reset() {
	l.recs = nil
	l.inflight = 0
}
