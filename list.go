package syncwire

import (
	"github.com/pkg/errors"

	"github.com/syncwire/syncwire/codec"
	"github.com/syncwire/syncwire/protocol"
)

// List is the index-addressed sequence shape. The authority mutates it
// through Add, Insert, Set, RemoveAt and Clear; observer copies reject
// mutation with ErrReadOnly after their first inbound snapshot or delta.
type List[T any] struct {
	st    state[T]
	items []T
	codec codec.Codec[T]
	equal func(a, b T) bool
}

// NewList builds a sequence over a comparable element type, using == as
// the comparer for Set no-op suppression and IndexOf.
func NewList[T comparable](c codec.Codec[T]) *List[T] {
	return NewListFunc[T](c, func(a, b T) bool { return a == b })
}

// NewListFunc builds a sequence over any element type with an explicit
// equality comparer.
func NewListFunc[T any](c codec.Codec[T], equal func(a, b T) bool) *List[T] {
	return &List[T]{codec: c, equal: equal}
}

// OnChange subscribes to applied operations. Delivery is synchronous and
// in application order; the callback must not call back into the list.
func (l *List[T]) OnChange(fn func(Event[T])) {
	l.st.subscribe(fn)
}

// Add appends an item at the end.
func (l *List[T]) Add(item T) error {
	l.st.mu.Lock()
	defer l.st.mu.Unlock()
	if err := l.st.gate(); err != nil {
		return err
	}
	l.items = append(l.items, item)
	l.st.log.record(Change[T]{Op: OpAdd, Item: item})
	l.st.applied(Event[T]{Op: OpAdd, Index: len(l.items) - 1, Item: item})
	return nil
}

// Insert places an item at index, shifting later elements.
func (l *List[T]) Insert(index int, item T) error {
	l.st.mu.Lock()
	defer l.st.mu.Unlock()
	if err := l.st.gate(); err != nil {
		return err
	}
	if index < 0 || index > len(l.items) {
		return errors.Wrapf(ErrIndexOutOfRange, "insert at %d, len %d", index, len(l.items))
	}
	l.items = append(l.items, item)
	copy(l.items[index+1:], l.items[index:])
	l.items[index] = item
	l.st.log.record(Change[T]{Op: OpInsert, Index: index, Item: item})
	l.st.applied(Event[T]{Op: OpInsert, Index: index, Item: item})
	return nil
}

// RemoveAt deletes the item at index.
func (l *List[T]) RemoveAt(index int) error {
	l.st.mu.Lock()
	defer l.st.mu.Unlock()
	if err := l.st.gate(); err != nil {
		return err
	}
	if index < 0 || index >= len(l.items) {
		return errors.Wrapf(ErrIndexOutOfRange, "remove at %d, len %d", index, len(l.items))
	}
	prev := l.items[index]
	l.items = append(l.items[:index], l.items[index+1:]...)
	l.st.log.record(Change[T]{Op: OpRemoveAt, Index: index})
	l.st.applied(Event[T]{Op: OpRemoveAt, Index: index, Prev: prev})
	return nil
}

// Set replaces the item at index. Setting a value equal (per the
// comparer) to the current one records nothing and notifies nobody.
func (l *List[T]) Set(index int, item T) error {
	l.st.mu.Lock()
	defer l.st.mu.Unlock()
	if err := l.st.gate(); err != nil {
		return err
	}
	if index < 0 || index >= len(l.items) {
		return errors.Wrapf(ErrIndexOutOfRange, "set at %d, len %d", index, len(l.items))
	}
	if l.equal(l.items[index], item) {
		return nil
	}
	prev := l.items[index]
	l.items[index] = item
	l.st.log.record(Change[T]{Op: OpSet, Index: index, Item: item})
	l.st.applied(Event[T]{Op: OpSet, Index: index, Item: item, Prev: prev})
	return nil
}

// Clear empties the sequence. Clearing an already-empty sequence still
// records and notifies; the wire signal is the point, not idempotence.
func (l *List[T]) Clear() error {
	l.st.mu.Lock()
	defer l.st.mu.Unlock()
	if err := l.st.gate(); err != nil {
		return err
	}
	l.items = nil
	l.st.log.record(Change[T]{Op: OpClear})
	l.st.applied(Event[T]{Op: OpClear})
	return nil
}

func (l *List[T]) Len() int {
	l.st.mu.Lock()
	defer l.st.mu.Unlock()
	return len(l.items)
}

func (l *List[T]) Get(index int) (item T, err error) {
	l.st.mu.Lock()
	defer l.st.mu.Unlock()
	if index < 0 || index >= len(l.items) {
		err = errors.Wrapf(ErrIndexOutOfRange, "get at %d, len %d", index, len(l.items))
		return
	}
	return l.items[index], nil
}

// IndexOf returns the position of the first item equal to the argument,
// or -1.
func (l *List[T]) IndexOf(item T) int {
	l.st.mu.Lock()
	defer l.st.mu.Unlock()
	for i := range l.items {
		if l.equal(l.items[i], item) {
			return i
		}
	}
	return -1
}

func (l *List[T]) Contains(item T) bool {
	return l.IndexOf(item) >= 0
}

// Values returns a copy of the current backing, in order.
func (l *List[T]) Values() []T {
	l.st.mu.Lock()
	defer l.st.mu.Unlock()
	out := make([]T, len(l.items))
	copy(out, l.items)
	return out
}

func (l *List[T]) ReadOnly() bool  { return l.st.isReadOnly() }
func (l *List[T]) Dirty() bool     { return l.st.isDirty() }
func (l *List[T]) Pending() int    { return l.st.pendingCount() }
func (l *List[T]) Version() uint64 { return l.st.currentVersion() }
func (l *List[T]) Ahead() uint64   { return l.st.aheadCount() }

// SerializeAll writes item count, every item in order, then the current
// pending-log length. The trailing length tells a new observer how many
// of the next delta records are already reflected in this snapshot and
// must be skipped instead of re-applied.
func (l *List[T]) SerializeAll(w *protocol.Writer) {
	l.st.mu.Lock()
	defer l.st.mu.Unlock()
	w.Uvarint(uint64(len(l.items)))
	for _, item := range l.items {
		l.codec.Encode(w, item)
	}
	w.Uvarint(uint64(l.st.log.pending()))
}

// DeserializeAll replaces the backing with the snapshot and marks this
// instance read-only for good. Nothing is applied unless the whole
// snapshot decodes.
func (l *List[T]) DeserializeAll(r *protocol.Reader) error {
	l.st.mu.Lock()
	defer l.st.mu.Unlock()
	count, err := r.Count()
	if err != nil {
		return errors.Wrap(ErrDesync, err.Error())
	}
	items := make([]T, 0, count)
	for i := uint64(0); i < count; i++ {
		item, derr := l.codec.Decode(r)
		if derr != nil {
			return errors.Wrap(ErrDesync, derr.Error())
		}
		items = append(items, item)
	}
	ahead, err := r.Uvarint()
	if err != nil {
		return errors.Wrap(ErrDesync, err.Error())
	}
	l.st.readOnly = true
	l.st.desynced = false
	l.st.log.reset()
	l.items = items
	l.st.changesAhead = ahead
	l.st.version++
	return nil
}

// SerializeDelta writes the pending record count followed by each record
// as a tag byte plus the operands that tag requires, in log order.
func (l *List[T]) SerializeDelta(w *protocol.Writer) int {
	l.st.mu.Lock()
	defer l.st.mu.Unlock()
	recs := l.st.log.take()
	w.Uvarint(uint64(len(recs)))
	for _, c := range recs {
		w.Byte(byte(c.Op))
		switch c.Op {
		case OpAdd:
			l.codec.Encode(w, c.Item)
		case OpClear:
		case OpRemoveAt:
			w.Uvarint(uint64(c.Index))
		case OpInsert, OpSet:
			w.Uvarint(uint64(c.Index))
			l.codec.Encode(w, c.Item)
		}
	}
	return len(recs)
}

// Flush discards exactly what the last SerializeDelta covered.
func (l *List[T]) Flush() {
	l.st.mu.Lock()
	defer l.st.mu.Unlock()
	l.st.log.ack()
}

// DeserializeDelta decodes a batch and applies it. The whole batch is
// parsed before anything is applied, so a malformed batch never leaves a
// half-applied backing. Records covered by changesAhead are consumed
// without application or notification.
func (l *List[T]) DeserializeDelta(r *protocol.Reader) error {
	l.st.mu.Lock()
	defer l.st.mu.Unlock()
	if l.st.desynced {
		return errors.Wrap(ErrDesync, "state poisoned by an earlier batch")
	}
	l.st.readOnly = true
	recs, err := l.parseDelta(r)
	if err != nil {
		l.st.desynced = true
		return err
	}
	for _, c := range recs {
		if l.st.changesAhead > 0 {
			l.st.changesAhead--
			continue
		}
		if aerr := l.apply(c); aerr != nil {
			l.st.desynced = true
			return errors.Wrap(ErrDesync, aerr.Error())
		}
	}
	return nil
}

func (l *List[T]) parseDelta(r *protocol.Reader) ([]Change[T], error) {
	count, err := r.Count()
	if err != nil {
		return nil, errors.Wrap(ErrDesync, err.Error())
	}
	recs := make([]Change[T], 0, count)
	for i := uint64(0); i < count; i++ {
		tag, terr := r.Byte()
		if terr != nil {
			return nil, errors.Wrap(ErrDesync, terr.Error())
		}
		c := Change[T]{Op: Op(tag)}
		switch c.Op {
		case OpClear:
		case OpAdd:
			if c.Item, err = l.codec.Decode(r); err != nil {
				return nil, errors.Wrap(ErrDesync, err.Error())
			}
		case OpRemoveAt:
			idx, ierr := r.Uvarint()
			if ierr != nil {
				return nil, errors.Wrap(ErrDesync, ierr.Error())
			}
			c.Index = int(idx)
		case OpInsert, OpSet:
			idx, ierr := r.Uvarint()
			if ierr != nil {
				return nil, errors.Wrap(ErrDesync, ierr.Error())
			}
			c.Index = int(idx)
			if c.Item, err = l.codec.Decode(r); err != nil {
				return nil, errors.Wrap(ErrDesync, err.Error())
			}
		default:
			return nil, errors.Wrapf(ErrUnknownTag, "tag %d", tag)
		}
		recs = append(recs, c)
	}
	return recs, nil
}

func (l *List[T]) apply(c Change[T]) error {
	switch c.Op {
	case OpAdd:
		l.items = append(l.items, c.Item)
		l.st.applied(Event[T]{Op: OpAdd, Index: len(l.items) - 1, Item: c.Item})
	case OpInsert:
		if c.Index < 0 || c.Index > len(l.items) {
			return errors.Wrapf(ErrIndexOutOfRange, "insert at %d, len %d", c.Index, len(l.items))
		}
		l.items = append(l.items, c.Item)
		copy(l.items[c.Index+1:], l.items[c.Index:])
		l.items[c.Index] = c.Item
		l.st.applied(Event[T]{Op: OpInsert, Index: c.Index, Item: c.Item})
	case OpRemoveAt:
		if c.Index < 0 || c.Index >= len(l.items) {
			return errors.Wrapf(ErrIndexOutOfRange, "remove at %d, len %d", c.Index, len(l.items))
		}
		prev := l.items[c.Index]
		l.items = append(l.items[:c.Index], l.items[c.Index+1:]...)
		l.st.applied(Event[T]{Op: OpRemoveAt, Index: c.Index, Prev: prev})
	case OpSet:
		if c.Index < 0 || c.Index >= len(l.items) {
			return errors.Wrapf(ErrIndexOutOfRange, "set at %d, len %d", c.Index, len(l.items))
		}
		prev := l.items[c.Index]
		l.items[c.Index] = c.Item
		l.st.applied(Event[T]{Op: OpSet, Index: c.Index, Item: c.Item, Prev: prev})
	case OpClear:
		l.items = nil
		l.st.applied(Event[T]{Op: OpClear})
	}
	return nil
}
