package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTLVAppend(t *testing.T) {
	buf := []byte{}
	buf = Append(buf, 'A', []byte{'A'})
	buf = Append(buf, 'b', []byte{'B', 'B'})
	correct2 := []byte{'a', 1, 'A', '2', 'B', 'B'}
	assert.Equal(t, correct2, buf, "basic TLV fail")

	var c256 [256]byte
	for n := range c256 {
		c256[n] = 'c'
	}
	buf = Append(buf, 'C', c256[:])
	assert.Equal(t, len(correct2)+1+4+len(c256), len(buf))
	assert.Equal(t, uint8(67), buf[len(correct2)])
	assert.Equal(t, uint8(1), buf[len(correct2)+2])

	lit, body, buf := TakeAny(buf)
	assert.Equal(t, uint8('A'), lit)
	assert.Equal(t, []byte{'A'}, body)

	body2, _, err2 := TakeWary('B', buf)
	assert.Nil(t, err2)
	assert.Equal(t, []byte{'B', 'B'}, body2)
}

func TestTLVSplit(t *testing.T) {
	batch := Join(
		Record('N', []byte("demo.list")),
		Record('P', []byte{1, 2, 3}),
	)
	buf := bytes.NewBuffer(batch)
	recs, err := Split(buf)
	assert.Nil(t, err)
	assert.Equal(t, 2, len(recs))
	assert.Equal(t, uint8('N'), Lit(recs[0]))
	assert.Equal(t, uint8('P'), Lit(recs[1]))

	name, rest := Take('N', recs[0])
	assert.Equal(t, "demo.list", string(name))
	assert.Equal(t, 0, len(rest))
}

func TestTLVSplitIncomplete(t *testing.T) {
	rec := Record('P', []byte("0123456789abcdef"))
	buf := bytes.NewBuffer(rec[:len(rec)-3])
	recs, err := Split(buf)
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, 0, len(recs))

	buf.Write(rec[len(rec)-3:])
	recs, err = Split(buf)
	assert.Nil(t, err)
	assert.Equal(t, 1, len(recs))
	assert.Equal(t, rec, recs[0])
}

func TestTLVTakeWaryBadType(t *testing.T) {
	rec := Record('S', []byte("payload"))
	_, _, err := TakeWary('D', rec)
	assert.ErrorIs(t, err, ErrBadRecord)
}
