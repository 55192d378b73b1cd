package syncwire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChangeLogTakeAck(t *testing.T) {
	var log changeLog[int]
	assert.False(t, log.dirty())

	log.record(Change[int]{Op: OpAdd, Item: 1})
	log.record(Change[int]{Op: OpAdd, Item: 2})
	assert.True(t, log.dirty())
	assert.Equal(t, 2, log.pending())

	taken := log.take()
	assert.Equal(t, 2, len(taken))

	// lands between capture and ack
	log.record(Change[int]{Op: OpAdd, Item: 3})
	log.ack()

	assert.Equal(t, 1, log.pending())
	assert.Equal(t, 3, log.recs[0].Item)
}

func TestChangeLogAckWithoutTake(t *testing.T) {
	var log changeLog[int]
	log.record(Change[int]{Op: OpAdd, Item: 1})
	log.ack()
	assert.Equal(t, 1, log.pending(), "nothing was taken, nothing clears")
}

func TestChangeLogReset(t *testing.T) {
	var log changeLog[int]
	log.record(Change[int]{Op: OpClear})
	log.take()
	log.reset()
	assert.False(t, log.dirty())
	log.ack()
	assert.Equal(t, 0, log.pending())
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "Add", OpAdd.String())
	assert.Equal(t, "RemoveAt", OpRemoveAt.String())
	assert.Equal(t, "Op?", Op(9).String())
}
