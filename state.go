package syncwire

import "sync"

// Event is delivered to subscribers once per applied operation, in
// application order, on both the authority and every observer. Index is
// meaningful for sequence operations only. Prev carries the pre-image
// for RemoveAt and Set so subscribers can diff old against new.
type Event[T any] struct {
	Op    Op
	Index int
	Item  T
	Prev  T
}

// state is the engine plumbing shared by both collection shapes: the
// change log, the capability gate, the ahead-skip counter and the
// notification fan-out. The single mutex also covers the backing
// container owned by the embedding collection.
type state[T any] struct {
	mu  sync.Mutex
	log changeLog[T]

	// readOnly flips permanently the first time this instance consumes
	// a snapshot or delta from the wire.
	readOnly bool

	// changesAhead counts delta records whose effect was already
	// included in the snapshot this observer decoded. Only ever
	// decremented, one per skipped record.
	changesAhead uint64

	// desynced poisons the state after a failed batch apply until a
	// fresh full snapshot arrives.
	desynced bool

	// version counts applied operations; the synchronizer keys its
	// snapshot cache on it.
	version uint64

	subs []func(Event[T])
}

// gate guards every authority-side mutation entry point. Called with the
// mutex held, before the backing container is touched.
func (s *state[T]) gate() error {
	if s.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (s *state[T]) subscribe(fn func(Event[T])) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// notify fans one applied operation out to every subscriber,
// synchronously and in subscription order. Runs under the state mutex;
// subscribers must not call back into the collection.
func (s *state[T]) notify(ev Event[T]) {
	for _, fn := range s.subs {
		fn(ev)
	}
}

// applied bumps the version and notifies; one call per applied op.
func (s *state[T]) applied(ev Event[T]) {
	s.version++
	s.notify(ev)
}

func (s *state[T]) isReadOnly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readOnly
}

func (s *state[T]) isDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.dirty()
}

func (s *state[T]) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.pending()
}

func (s *state[T]) currentVersion() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *state[T]) aheadCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changesAhead
}
