package syncwire

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/syncwire/syncwire/journal"
	"github.com/syncwire/syncwire/protocol"
	"github.com/syncwire/syncwire/transport"
	"github.com/syncwire/syncwire/utils"
)

// Envelope record types on the wire.
const (
	envSnapshot = 'S' // full value for a new or resyncing observer
	envDelta    = 'D' // pending change batch
	envResync   = 'R' // observer asking for a fresh snapshot
	envName     = 'N' // collection name, nested
	envHash     = 'H' // xxhash64 of the payload, nested, deltas only
	envPayload  = 'P' // collection payload, nested
)

// SyncerOptions tune a Syncer. The zero value works: stderr logging,
// real clock, 100ms ticks, no metrics, no journal.
type SyncerOptions struct {
	Log      utils.Logger
	Clock    clockwork.Clock
	Interval time.Duration
	Metrics  *Metrics
	Journal  *journal.Journal

	// SnapshotCacheSize bounds the cache of encoded snapshot envelopes,
	// keyed by collection version, that spares re-encoding when several
	// observers join between mutations. Defaults to 128.
	SnapshotCacheSize int
}

// Syncer is the per-tick scheduler: it owns the mapping from collection
// names to Collection instances, serves one full snapshot per new (or
// desynced) peer, broadcasts delta batches for dirty collections at the
// tick rate, and flushes each change log only after the transport
// accepted the bytes. The same type runs on both sides; an observer's
// Syncer just never finds its collections dirty.
type Syncer struct {
	log   utils.Logger
	clock clockwork.Clock

	interval  time.Duration
	tr        transport.Transport
	cols      *xsync.MapOf[string, *syncedCol]
	snapshots *lru.Cache[string, []byte]
	journal   *journal.Journal
	metrics   *Metrics

	mu      sync.Mutex
	resyncs []resyncReq
}

// resyncReq schedules a snapshot send at the start of the next tick.
// Serving it inline would race the tick's own broadcast-then-flush
// window: a snapshot built mid-broadcast counts in-flight records as
// pending, and the observer would skip that many records that are never
// coming again. At tick start the pending log holds exactly the records
// the same tick is about to broadcast, so the trailing count is right.
type resyncReq struct {
	peer string
	name string // empty means every registered collection
}

type syncedCol struct {
	name string
	col  Collection
	seq  atomic.Uint64
}

func NewSyncer(tr transport.Transport, opts SyncerOptions) *Syncer {
	if opts.Log == nil {
		opts.Log = utils.NewDefaultLogger(slog.LevelInfo)
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Interval <= 0 {
		opts.Interval = 100 * time.Millisecond
	}
	if opts.SnapshotCacheSize <= 0 {
		opts.SnapshotCacheSize = 128
	}
	cache, _ := lru.New[string, []byte](opts.SnapshotCacheSize)
	return &Syncer{
		log:       opts.Log,
		clock:     opts.Clock,
		interval:  opts.Interval,
		tr:        tr,
		cols:      xsync.NewMapOf[string, *syncedCol](),
		snapshots: cache,
		journal:   opts.Journal,
		metrics:   opts.Metrics,
	}
}

// Register binds a collection to its wire name. Both sides of a
// replicated collection must register it under the same name.
func (s *Syncer) Register(name string, col Collection) error {
	if _, loaded := s.cols.LoadOrStore(name, &syncedCol{name: name, col: col}); loaded {
		return errors.Wrap(ErrCollectionExists, name)
	}
	return nil
}

// Collection looks a registered collection up by wire name.
func (s *Syncer) Collection(name string) (Collection, bool) {
	sc, ok := s.cols.Load(name)
	if !ok {
		return nil, false
	}
	return sc.col, true
}

// AddPeer schedules one full snapshot per registered collection for a
// brand-new observer; the next Tick sends them, before that tick's
// delta broadcast.
func (s *Syncer) AddPeer(peer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resyncs = append(s.resyncs, resyncReq{peer: peer})
}

// Run ticks until the context is done.
func (s *Syncer) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			s.Tick()
		}
	}
}

// Tick first serves queued snapshot requests, then broadcasts one delta
// batch for every dirty collection and flushes exactly what was
// broadcast. A peer whose snapshot went out this tick sees the delta
// too and skips the records the snapshot already contained.
func (s *Syncer) Tick() {
	s.mu.Lock()
	queued := s.resyncs
	s.resyncs = nil
	s.mu.Unlock()
	for _, req := range queued {
		s.serveSnapshots(req)
	}

	s.cols.Range(func(name string, sc *syncedCol) bool {
		if !sc.col.Dirty() {
			return true
		}
		w := protocol.NewWriter()
		n := sc.col.SerializeDelta(w)
		payload := append([]byte(nil), w.Bytes()...)
		s.tr.Broadcast(s.deltaEnvelope(name, payload), "")
		sc.col.Flush()
		s.metrics.observeDelta(name, n, len(payload))
		if s.journal != nil {
			seq := sc.seq.Add(1)
			if jerr := s.journal.Append(name, seq, payload); jerr != nil {
				s.log.Error("sync: journal append failed", "collection", name, "err", jerr)
			}
		}
		s.log.Debug("sync: delta broadcast", "collection", name, "records", n, "bytes", len(payload))
		return true
	})
}

// Handler adapts the Syncer to a transport's inbound callback.
func (s *Syncer) Handler() transport.Handler {
	return func(peer string, data []byte) {
		if err := s.Receive(peer, data); err != nil {
			s.log.Warn("sync: inbound envelope rejected", "peer", peer, "err", err)
		}
	}
}

// Receive consumes one inbound message, which may hold several envelopes.
func (s *Syncer) Receive(peer string, data []byte) error {
	buf := bytes.NewBuffer(data)
	recs, err := protocol.Split(buf)
	if err != nil {
		return errors.Wrap(ErrDesync, err.Error())
	}
	for _, rec := range recs {
		switch protocol.Lit(rec) {
		case envSnapshot:
			err = s.handleSnapshot(rec)
		case envDelta:
			err = s.handleDelta(peer, rec)
		case envResync:
			err = s.handleResync(peer, rec)
		default:
			err = errors.Wrapf(ErrDesync, "envelope type %q", protocol.Lit(rec))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) handleSnapshot(rec []byte) error {
	name, _, payload, err := openEnvelope(envSnapshot, rec)
	if err != nil {
		return err
	}
	sc, ok := s.cols.Load(name)
	if !ok {
		return errors.Wrap(ErrCollectionUnknown, name)
	}
	if err := sc.col.DeserializeAll(protocol.NewReader(payload)); err != nil {
		return err
	}
	s.log.Debug("sync: snapshot applied", "collection", name)
	return nil
}

func (s *Syncer) handleDelta(peer string, rec []byte) error {
	name, sum, payload, err := openEnvelope(envDelta, rec)
	if err != nil {
		return err
	}
	sc, ok := s.cols.Load(name)
	if !ok {
		return errors.Wrap(ErrCollectionUnknown, name)
	}
	if xxhash.Sum64(payload) != sum {
		s.metrics.observeDesync()
		s.requestResync(peer, name)
		return errors.Wrap(ErrChecksum, name)
	}
	if derr := sc.col.DeserializeDelta(protocol.NewReader(payload)); derr != nil {
		if errors.Is(derr, ErrDesync) {
			s.metrics.observeDesync()
			s.requestResync(peer, name)
		}
		return derr
	}
	return nil
}

func (s *Syncer) handleResync(peer string, rec []byte) error {
	body, _ := protocol.Take(envResync, rec)
	if body == nil {
		return errors.Wrap(ErrDesync, "bad resync envelope")
	}
	nameRec, _ := protocol.Take(envName, body)
	if nameRec == nil {
		return errors.Wrap(ErrDesync, "resync envelope without name")
	}
	name := string(nameRec)
	if _, ok := s.cols.Load(name); !ok {
		return errors.Wrap(ErrCollectionUnknown, name)
	}
	s.log.Info("sync: resync requested", "collection", name, "peer", peer)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resyncs = append(s.resyncs, resyncReq{peer: peer, name: name})
	return nil
}

// serveSnapshots answers one queued request, for one collection or all.
func (s *Syncer) serveSnapshots(req resyncReq) {
	s.cols.Range(func(name string, sc *syncedCol) bool {
		if req.name != "" && req.name != name {
			return true
		}
		if err := s.tr.Send(req.peer, s.snapshotEnvelope(sc)); err != nil {
			s.log.Error("sync: snapshot send failed", "collection", name, "peer", req.peer, "err", err)
			return true
		}
		s.metrics.observeSnapshot()
		s.log.Debug("sync: snapshot sent", "collection", name, "peer", req.peer)
		return true
	})
}

func (s *Syncer) requestResync(peer, name string) {
	env := protocol.Record(envResync, protocol.Record(envName, []byte(name)))
	if err := s.tr.Send(peer, env); err != nil {
		s.log.Error("sync: resync request failed", "collection", name, "peer", peer, "err", err)
	}
}

// snapshotEnvelope encodes a full snapshot, reusing a cached encoding
// when neither the value nor the pending log moved since it was built.
func (s *Syncer) snapshotEnvelope(sc *syncedCol) []byte {
	key := fmt.Sprintf("%s@%d.%d", sc.name, sc.col.Version(), sc.col.Pending())
	if env, ok := s.snapshots.Get(key); ok {
		return env
	}
	w := protocol.NewWriter()
	sc.col.SerializeAll(w)
	env := protocol.Record(envSnapshot,
		protocol.Record(envName, []byte(sc.name)),
		protocol.Record(envPayload, w.Bytes()),
	)
	s.snapshots.Add(key, env)
	return env
}

func (s *Syncer) deltaEnvelope(name string, payload []byte) []byte {
	var sum [8]byte
	binary.LittleEndian.PutUint64(sum[:], xxhash.Sum64(payload))
	return protocol.Record(envDelta,
		protocol.Record(envName, []byte(name)),
		protocol.Record(envHash, sum[:]),
		protocol.Record(envPayload, payload),
	)
}

// openEnvelope unpacks name, checksum and payload from an envelope body.
func openEnvelope(lit byte, rec []byte) (name string, sum uint64, payload []byte, err error) {
	body, _, err := protocol.TakeWary(lit, rec)
	if err != nil {
		return "", 0, nil, errors.Wrap(ErrDesync, err.Error())
	}
	nameRec, rest, err := protocol.TakeWary(envName, body)
	if err != nil {
		return "", 0, nil, errors.Wrap(ErrDesync, "envelope without name")
	}
	if lit == envDelta {
		var sumRec []byte
		sumRec, rest, err = protocol.TakeWary(envHash, rest)
		if err != nil || len(sumRec) != 8 {
			return "", 0, nil, errors.Wrap(ErrDesync, "delta envelope without checksum")
		}
		sum = binary.LittleEndian.Uint64(sumRec)
	}
	payload, _, err = protocol.TakeWary(envPayload, rest)
	if err != nil {
		return "", 0, nil, errors.Wrap(ErrDesync, "envelope without payload")
	}
	return string(nameRec), sum, payload, nil
}
