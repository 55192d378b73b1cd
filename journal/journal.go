// Package journal persists flushed delta batches in a pebble store, one
// entry per (collection, sequence). The synchronizer appends to it as it
// broadcasts, which leaves an inspectable trail and a catch-up window
// that can be replayed to an observer reconnecting after a short gap.
package journal

import (
	"encoding/binary"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
)

type Journal struct {
	db *pebble.DB
}

func Open(path string) (*Journal, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "journal: open")
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Keys are collection name, a zero separator, then the sequence number
// big-endian so pebble's byte order is sequence order.
func key(collection string, seq uint64) []byte {
	k := make([]byte, 0, len(collection)+9)
	k = append(k, collection...)
	k = append(k, 0)
	k = binary.BigEndian.AppendUint64(k, seq)
	return k
}

func (j *Journal) Append(collection string, seq uint64, payload []byte) error {
	if err := j.db.Set(key(collection, seq), payload, pebble.Sync); err != nil {
		return errors.Wrapf(err, "journal: append %s@%d", collection, seq)
	}
	return nil
}

// Replay feeds every stored batch of the collection with sequence >= from
// to fn, in sequence order, until fn errs or the batches run out.
func (j *Journal) Replay(collection string, from uint64, fn func(seq uint64, payload []byte) error) error {
	it, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: key(collection, from),
		UpperBound: key(collection, ^uint64(0)),
	})
	if err != nil {
		return errors.Wrapf(err, "journal: replay %s", collection)
	}
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		k := it.Key()
		seq := binary.BigEndian.Uint64(k[len(k)-8:])
		payload := make([]byte, len(it.Value()))
		copy(payload, it.Value())
		if err := fn(seq, payload); err != nil {
			return err
		}
	}
	return errors.Wrapf(it.Error(), "journal: replay %s", collection)
}

// LastSeq reports the highest stored sequence for a collection, ok=false
// when the journal holds nothing for it.
func (j *Journal) LastSeq(collection string) (seq uint64, ok bool, err error) {
	it, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: key(collection, 0),
		UpperBound: key(collection, ^uint64(0)),
	})
	if err != nil {
		return 0, false, errors.Wrapf(err, "journal: last seq %s", collection)
	}
	defer it.Close()
	if !it.Last() {
		return 0, false, it.Error()
	}
	k := it.Key()
	return binary.BigEndian.Uint64(k[len(k)-8:]), true, nil
}
