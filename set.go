package syncwire

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"

	"github.com/syncwire/syncwire/codec"
	"github.com/syncwire/syncwire/protocol"
)

// Set is the membership-addressed shape. Iteration order is whatever the
// backing yields and is not replicated; only membership is. Observers
// must never assume positional correspondence with the authority.
type Set[T comparable] struct {
	st    state[T]
	items mapset.Set[T]
	codec codec.Codec[T]
}

func NewSet[T comparable](c codec.Codec[T]) *Set[T] {
	return &Set[T]{
		items: mapset.NewThreadUnsafeSet[T](),
		codec: c,
	}
}

// OnChange subscribes to applied operations. Delivery is synchronous and
// in application order; the callback must not call back into the set.
func (s *Set[T]) OnChange(fn func(Event[T])) {
	s.st.subscribe(fn)
}

// Add inserts an item. Adding a present item is a silent no-op: no
// record, no notification.
func (s *Set[T]) Add(item T) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return s.add(item)
}

func (s *Set[T]) add(item T) error {
	if err := s.st.gate(); err != nil {
		return err
	}
	if !s.items.Add(item) {
		return nil
	}
	s.st.log.record(Change[T]{Op: OpAdd, Item: item})
	s.st.applied(Event[T]{Op: OpAdd, Item: item})
	return nil
}

// Remove deletes an item. Removing an absent item is a silent no-op.
func (s *Set[T]) Remove(item T) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return s.remove(item)
}

func (s *Set[T]) remove(item T) error {
	if err := s.st.gate(); err != nil {
		return err
	}
	if !s.items.Contains(item) {
		return nil
	}
	s.items.Remove(item)
	s.st.log.record(Change[T]{Op: OpRemove, Item: item})
	s.st.applied(Event[T]{Op: OpRemove, Item: item})
	return nil
}

// Clear empties the set. Unlike Add and Remove, clearing an already
// empty set still records and notifies.
func (s *Set[T]) Clear() error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.st.gate(); err != nil {
		return err
	}
	s.items.Clear()
	s.st.log.record(Change[T]{Op: OpClear})
	s.st.applied(Event[T]{Op: OpClear})
	return nil
}

// Union adds every given item, one gated Add per item, so each insertion
// is recorded and replicated individually.
func (s *Set[T]) Union(items ...T) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	for _, item := range items {
		if err := s.add(item); err != nil {
			return err
		}
	}
	return nil
}

// Intersect removes every member not present in the given items.
func (s *Set[T]) Intersect(items ...T) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	keep := mapset.NewThreadUnsafeSet[T](items...)
	for _, member := range s.items.ToSlice() {
		if keep.Contains(member) {
			continue
		}
		if err := s.remove(member); err != nil {
			return err
		}
	}
	return nil
}

// Difference removes every given item that is a member.
func (s *Set[T]) Difference(items ...T) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	for _, item := range items {
		if err := s.remove(item); err != nil {
			return err
		}
	}
	return nil
}

func (s *Set[T]) Contains(item T) bool {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return s.items.Contains(item)
}

func (s *Set[T]) Len() int {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return s.items.Cardinality()
}

// Values returns the members in unspecified order.
func (s *Set[T]) Values() []T {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return s.items.ToSlice()
}

func (s *Set[T]) ReadOnly() bool  { return s.st.isReadOnly() }
func (s *Set[T]) Dirty() bool     { return s.st.isDirty() }
func (s *Set[T]) Pending() int    { return s.st.pendingCount() }
func (s *Set[T]) Version() uint64 { return s.st.currentVersion() }
func (s *Set[T]) Ahead() uint64   { return s.st.aheadCount() }

// SerializeAll writes item count, every member, then the pending-log
// length, same trailing-count contract as the sequence shape.
func (s *Set[T]) SerializeAll(w *protocol.Writer) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	w.Uvarint(uint64(s.items.Cardinality()))
	s.items.Each(func(item T) bool {
		s.codec.Encode(w, item)
		return false
	})
	w.Uvarint(uint64(s.st.log.pending()))
}

func (s *Set[T]) DeserializeAll(r *protocol.Reader) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	count, err := r.Count()
	if err != nil {
		return errors.Wrap(ErrDesync, err.Error())
	}
	items := mapset.NewThreadUnsafeSet[T]()
	for i := uint64(0); i < count; i++ {
		item, derr := s.codec.Decode(r)
		if derr != nil {
			return errors.Wrap(ErrDesync, derr.Error())
		}
		items.Add(item)
	}
	ahead, err := r.Uvarint()
	if err != nil {
		return errors.Wrap(ErrDesync, err.Error())
	}
	s.st.readOnly = true
	s.st.desynced = false
	s.st.log.reset()
	s.items = items
	s.st.changesAhead = ahead
	s.st.version++
	return nil
}

func (s *Set[T]) SerializeDelta(w *protocol.Writer) int {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	recs := s.st.log.take()
	w.Uvarint(uint64(len(recs)))
	for _, c := range recs {
		w.Byte(byte(c.Op))
		switch c.Op {
		case OpAdd, OpRemove:
			s.codec.Encode(w, c.Item)
		case OpClear:
		}
	}
	return len(recs)
}

func (s *Set[T]) Flush() {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.st.log.ack()
}

func (s *Set[T]) DeserializeDelta(r *protocol.Reader) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if s.st.desynced {
		return errors.Wrap(ErrDesync, "state poisoned by an earlier batch")
	}
	s.st.readOnly = true
	recs, err := s.parseDelta(r)
	if err != nil {
		s.st.desynced = true
		return err
	}
	for _, c := range recs {
		if s.st.changesAhead > 0 {
			s.st.changesAhead--
			continue
		}
		s.apply(c)
	}
	return nil
}

func (s *Set[T]) parseDelta(r *protocol.Reader) ([]Change[T], error) {
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
		case OpAdd, OpRemove:
			if c.Item, err = s.codec.Decode(r); err != nil {
				return nil, errors.Wrap(ErrDesync, err.Error())
			}
		default:
			return nil, errors.Wrapf(ErrUnknownTag, "tag %d", tag)
		}
		recs = append(recs, c)
	}
	return recs, nil
}

func (s *Set[T]) apply(c Change[T]) {
	switch c.Op {
	case OpAdd:
		s.items.Add(c.Item)
		s.st.applied(Event[T]{Op: OpAdd, Item: c.Item})
	case OpRemove:
		s.items.Remove(c.Item)
		s.st.applied(Event[T]{Op: OpRemove, Item: c.Item})
	case OpClear:
		s.items.Clear()
		s.st.applied(Event[T]{Op: OpClear})
	}
}
