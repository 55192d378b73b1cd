package protocol

import (
	"github.com/multiformats/go-varint"
)

// Writer accumulates a collection payload: unsigned varints for counts and
// indices, single tag bytes, and raw item bytes produced by an item codec.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) Uvarint(v uint64) {
	w.buf = append(w.buf, varint.ToUvarint(v)...)
}

func (w *Writer) Byte(b byte) {
	w.buf = append(w.buf, b)
}

func (w *Writer) Raw(data []byte) {
	w.buf = append(w.buf, data...)
}

func (w *Writer) Len() int {
	return len(w.buf)
}

// Bytes returns the accumulated payload. The slice aliases the writer's
// internal buffer; Reset invalidates it.
func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Reset() {
	w.buf = w.buf[:0]
}

// Reader walks a collection payload produced by a Writer. Every method
// reports ErrIncomplete when the buffer runs short, so decode loops can
// fail without guessing at offsets.
type Reader struct {
	data []byte
	off  int
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) Uvarint() (uint64, error) {
	v, n, err := varint.FromUvarint(r.data[r.off:])
	if err != nil {
		if err == varint.ErrUnderflow {
			return 0, ErrIncomplete
		}
		return 0, ErrBadRecord
	}
	r.off += n
	return v, nil
}

// Count reads an element count and bounds it by the bytes left: every
// element costs at least one byte, so a count past Remaining can only
// come from a corrupt or hostile payload. Callers may size allocations
// from the returned value.
func (r *Reader) Count() (uint64, error) {
	v, err := r.Uvarint()
	if err != nil {
		return 0, err
	}
	if v > uint64(r.Remaining()) {
		return 0, ErrBadRecord
	}
	return v, nil
}

func (r *Reader) Byte() (byte, error) {
	if r.off >= len(r.data) {
		return 0, ErrIncomplete
	}
	b := r.data[r.off]
	r.off++
	return b, nil
}

// Raw consumes the next n bytes. The returned slice aliases the input.
// The bound check compares against Remaining rather than summing offsets,
// so a hostile length near MaxInt64 cannot overflow into a valid range.
func (r *Reader) Raw(n int) ([]byte, error) {
	if n < 0 || n > r.Remaining() {
		return nil, ErrIncomplete
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}
