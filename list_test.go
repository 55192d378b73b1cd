package syncwire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncwire/syncwire/codec"
	"github.com/syncwire/syncwire/protocol"
)

func deltaOf(t *testing.T, c Collection) ([]byte, int) {
	t.Helper()
	w := protocol.NewWriter()
	n := c.SerializeDelta(w)
	return append([]byte(nil), w.Bytes()...), n
}

func snapshotOf(t *testing.T, c Collection) []byte {
	t.Helper()
	w := protocol.NewWriter()
	c.SerializeAll(w)
	return append([]byte(nil), w.Bytes()...)
}

func TestListScenario(t *testing.T) {
	auth := NewList[int64](codec.Int64{})
	require.Nil(t, auth.Add(5))
	require.Nil(t, auth.Add(7))
	require.Nil(t, auth.Set(0, 9))
	require.Nil(t, auth.RemoveAt(1))

	assert.Equal(t, []int64{9}, auth.Values())
	assert.Equal(t, 4, auth.Pending())

	obs := NewList[int64](codec.Int64{})
	var evs []Event[int64]
	obs.OnChange(func(ev Event[int64]) { evs = append(evs, ev) })

	payload, n := deltaOf(t, auth)
	assert.Equal(t, 4, n)
	require.Nil(t, obs.DeserializeDelta(protocol.NewReader(payload)))

	assert.Equal(t, []int64{9}, obs.Values())
	assert.True(t, obs.ReadOnly())
	require.Equal(t, 4, len(evs))
	assert.Equal(t, Event[int64]{Op: OpAdd, Index: 0, Item: 5}, evs[0])
	assert.Equal(t, Event[int64]{Op: OpAdd, Index: 1, Item: 7}, evs[1])
	assert.Equal(t, Event[int64]{Op: OpSet, Index: 0, Item: 9, Prev: 5}, evs[2])
	assert.Equal(t, Event[int64]{Op: OpRemoveAt, Index: 1, Prev: 7}, evs[3])
}

func TestListSnapshotEquivalence(t *testing.T) {
	auth := NewList[string](codec.String{})
	require.Nil(t, auth.Add("a"))
	require.Nil(t, auth.Add("b"))
	require.Nil(t, auth.Insert(1, "c"))

	obs := NewList[string](codec.String{})
	require.Nil(t, obs.DeserializeAll(protocol.NewReader(snapshotOf(t, auth))))

	assert.Equal(t, []string{"a", "c", "b"}, obs.Values())
	assert.True(t, obs.ReadOnly())
	assert.Equal(t, uint64(3), obs.Ahead(), "pending count travels with the snapshot")
	assert.Equal(t, 0, obs.Pending())
}

func TestListAheadSkip(t *testing.T) {
	auth := NewList[int64](codec.Int64{})
	require.Nil(t, auth.Add(1))
	require.Nil(t, auth.Add(2))

	// snapshot taken while k=2 records are still pending
	snap := snapshotOf(t, auth)

	// m=2 more mutations before the next delta send
	require.Nil(t, auth.Add(3))
	require.Nil(t, auth.Set(0, 10))

	obs := NewList[int64](codec.Int64{})
	fired := 0
	obs.OnChange(func(Event[int64]) { fired++ })
	require.Nil(t, obs.DeserializeAll(protocol.NewReader(snap)))
	assert.Equal(t, uint64(2), obs.Ahead())

	payload, n := deltaOf(t, auth)
	assert.Equal(t, 4, n)
	require.Nil(t, obs.DeserializeDelta(protocol.NewReader(payload)))

	assert.Equal(t, auth.Values(), obs.Values())
	assert.Equal(t, 2, fired, "snapshot-covered records must not re-notify")
	assert.Equal(t, uint64(0), obs.Ahead())
}

func TestListReadOnlyGate(t *testing.T) {
	auth := NewList[int64](codec.Int64{})
	require.Nil(t, auth.Add(1))

	obs := NewList[int64](codec.Int64{})
	require.Nil(t, obs.DeserializeAll(protocol.NewReader(snapshotOf(t, auth))))
	before := obs.Values()
	ahead := obs.Ahead()

	assert.ErrorIs(t, obs.Add(2), ErrReadOnly)
	assert.ErrorIs(t, obs.Insert(0, 2), ErrReadOnly)
	assert.ErrorIs(t, obs.Set(0, 2), ErrReadOnly)
	assert.ErrorIs(t, obs.RemoveAt(0), ErrReadOnly)
	assert.ErrorIs(t, obs.Clear(), ErrReadOnly)

	assert.Equal(t, before, obs.Values())
	assert.Equal(t, ahead, obs.Ahead())
	assert.Equal(t, 0, obs.Pending())
}

func TestListSetNoOpSuppression(t *testing.T) {
	l := NewList[string](codec.String{})
	require.Nil(t, l.Add("x"))
	fired := 0
	l.OnChange(func(Event[string]) { fired++ })
	pending := l.Pending()

	require.Nil(t, l.Set(0, "x"))
	assert.Equal(t, pending, l.Pending())
	assert.Equal(t, 0, fired)
}

func TestListBounds(t *testing.T) {
	l := NewList[int64](codec.Int64{})
	require.Nil(t, l.Add(1))
	assert.ErrorIs(t, l.Insert(2, 9), ErrIndexOutOfRange)
	assert.ErrorIs(t, l.Insert(-1, 9), ErrIndexOutOfRange)
	assert.ErrorIs(t, l.RemoveAt(1), ErrIndexOutOfRange)
	assert.ErrorIs(t, l.Set(1, 9), ErrIndexOutOfRange)
	_, err := l.Get(1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	assert.Equal(t, []int64{1}, l.Values())
	assert.Equal(t, 1, l.Pending())
}

func TestListClearAlwaysRecords(t *testing.T) {
	l := NewList[int64](codec.Int64{})
	fired := 0
	l.OnChange(func(Event[int64]) { fired++ })
	require.Nil(t, l.Clear())
	require.Nil(t, l.Clear())
	assert.Equal(t, 2, l.Pending())
	assert.Equal(t, 2, fired)
}

func TestListFlushDropsExactlyWhatWasTaken(t *testing.T) {
	l := NewList[int64](codec.Int64{})
	require.Nil(t, l.Add(1))
	require.Nil(t, l.Add(2))

	payload, n := deltaOf(t, l)
	assert.Equal(t, 2, n)

	// a mutation lands after the bytes were captured but before the ack
	require.Nil(t, l.Add(3))
	l.Flush()
	assert.Equal(t, 1, l.Pending(), "late mutation survives the flush")

	obs := NewList[int64](codec.Int64{})
	require.Nil(t, obs.DeserializeDelta(protocol.NewReader(payload)))
	next, n := deltaOf(t, l)
	assert.Equal(t, 1, n)
	require.Nil(t, obs.DeserializeDelta(protocol.NewReader(next)))
	assert.Equal(t, []int64{1, 2, 3}, obs.Values())
}

func TestListDeltaUnknownTagPoisons(t *testing.T) {
	obs := NewList[int64](codec.Int64{})
	w := protocol.NewWriter()
	w.Uvarint(1)
	w.Byte(7) // not in the sequence vocabulary
	err := obs.DeserializeDelta(protocol.NewReader(w.Bytes()))
	assert.ErrorIs(t, err, ErrUnknownTag)
	assert.Equal(t, 0, obs.Len())

	// poisoned until a fresh snapshot arrives
	good := NewList[int64](codec.Int64{})
	require.Nil(t, good.Add(1))
	payload, _ := deltaOf(t, good)
	assert.ErrorIs(t, obs.DeserializeDelta(protocol.NewReader(payload)), ErrDesync)

	require.Nil(t, obs.DeserializeAll(protocol.NewReader(snapshotOf(t, good))))
	assert.Equal(t, []int64{1}, obs.Values())
}

func TestListDeltaBadIndexNoPartialApply(t *testing.T) {
	auth := NewList[int64](codec.Int64{})
	require.Nil(t, auth.Add(1))
	require.Nil(t, auth.RemoveAt(0))
	payload, _ := deltaOf(t, auth)

	// an observer that never saw the Add cannot apply the RemoveAt
	obs := NewList[int64](codec.Int64{})
	w := protocol.NewWriter()
	w.Uvarint(1)
	w.Byte(byte(OpRemoveAt))
	w.Uvarint(3)
	err := obs.DeserializeDelta(protocol.NewReader(w.Bytes()))
	assert.ErrorIs(t, err, ErrDesync)
	assert.ErrorIs(t, obs.DeserializeDelta(protocol.NewReader(payload)), ErrDesync)
}

func TestListRoundTripNonEmptyLog(t *testing.T) {
	auth := NewList[string](codec.String{})
	require.Nil(t, auth.Add("a"))
	require.Nil(t, auth.Insert(0, "b"))
	require.Nil(t, auth.Set(1, "z"))
	require.Nil(t, auth.Add("c"))
	require.Nil(t, auth.RemoveAt(0))
	require.Nil(t, auth.Clear())
	require.Nil(t, auth.Add("end"))

	obs := NewList[string](codec.String{})
	payload, _ := deltaOf(t, auth)
	require.Nil(t, obs.DeserializeDelta(protocol.NewReader(payload)))
	assert.Equal(t, auth.Values(), obs.Values())
}

func TestListIndexOfUsesComparer(t *testing.T) {
	l := NewListFunc[string](codec.String{}, func(a, b string) bool {
		return len(a) == len(b)
	})
	require.Nil(t, l.Add("aa"))
	assert.Equal(t, 0, l.IndexOf("bb"))
	assert.True(t, l.Contains("zz"))
	assert.Equal(t, -1, l.IndexOf("z"))

	// equal-length replacement is a suppressed no-op under this comparer
	require.Nil(t, l.Set(0, "cc"))
	assert.Equal(t, 1, l.Pending())
}

func TestListHostileRecordCount(t *testing.T) {
	// a batch or snapshot claiming far more records than it carries must
	// fail as a desync, not size an allocation from the claimed count
	huge := protocol.NewWriter()
	huge.Uvarint(1 << 62)
	huge.Byte(byte(OpClear))

	obs := NewList[int64](codec.Int64{})
	err := obs.DeserializeDelta(protocol.NewReader(huge.Bytes()))
	assert.ErrorIs(t, err, ErrDesync)
	assert.Equal(t, 0, obs.Len())

	fresh := NewList[int64](codec.Int64{})
	err = fresh.DeserializeAll(protocol.NewReader(huge.Bytes()))
	assert.ErrorIs(t, err, ErrDesync)
	assert.Equal(t, 0, fresh.Len())
}
