// Package codec supplies per-item encoders for replicated collections.
// The collection engine never looks inside an item; it only calls the
// codec at the right points of the record stream.
package codec

import (
	"encoding/binary"
	"math"

	"github.com/syncwire/syncwire/protocol"
)

// Codec encodes and decodes one element type. Implementations must be
// stateless: the same codec value is shared by the authority and every
// observer of a collection.
type Codec[T any] interface {
	Encode(w *protocol.Writer, item T)
	Decode(r *protocol.Reader) (T, error)
}

// String is length-prefixed UTF-8.
type String struct{}

func (String) Encode(w *protocol.Writer, s string) {
	w.Uvarint(uint64(len(s)))
	w.Raw([]byte(s))
}

func (String) Decode(r *protocol.Reader) (string, error) {
	n, err := r.Uvarint()
	if err != nil {
		return "", err
	}
	b, err := r.Raw(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Bytes is a length-prefixed blob. Decoded slices are copies.
type Bytes struct{}

func (Bytes) Encode(w *protocol.Writer, b []byte) {
	w.Uvarint(uint64(len(b)))
	w.Raw(b)
}

func (Bytes) Decode(r *protocol.Reader) ([]byte, error) {
	n, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	b, err := r.Raw(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// Uint64 is a plain unsigned varint.
type Uint64 struct{}

func (Uint64) Encode(w *protocol.Writer, v uint64) {
	w.Uvarint(v)
}

func (Uint64) Decode(r *protocol.Reader) (uint64, error) {
	return r.Uvarint()
}

// Int64 is a zigzag-coded varint, so small negatives stay short.
type Int64 struct{}

func (Int64) Encode(w *protocol.Writer, v int64) {
	w.Uvarint(zigZagInt64(v))
}

func (Int64) Decode(r *protocol.Reader) (int64, error) {
	u, err := r.Uvarint()
	if err != nil {
		return 0, err
	}
	return zagZigUint64(u), nil
}

// Float64 is 8 bytes little-endian IEEE 754 bits.
type Float64 struct{}

func (Float64) Encode(w *protocol.Writer, v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	w.Raw(b[:])
}

func (Float64) Decode(r *protocol.Reader) (float64, error) {
	b, err := r.Raw(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// Bool is a single byte, 0 or 1.
type Bool struct{}

func (Bool) Encode(w *protocol.Writer, v bool) {
	if v {
		w.Byte(1)
	} else {
		w.Byte(0)
	}
}

func (Bool) Decode(r *protocol.Reader) (bool, error) {
	b, err := r.Byte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}
