// Protocol format is based on ToyTLV (MIT licence) written by Victor Grishchenko in 2024
// Original project: https://github.com/learn-decentralized-systems/toytlv

/*
Package protocol carries the byte-level encodings used by syncwire: the
varint reader/writer that collection payloads are built with (wire.go) and
a compact TLV (Type-Length-Value) framing for the envelopes the synchronizer
and transports exchange.

A TLV record is one of three self-describing forms, picked by body size:

 1. Tiny (1 byte header), bodies of 0-9 bytes: [('0' + body_length)].
    The type letter is lost (normalized to '0'); only produced when the
    record type is given in lowercase.
 2. Short (2 byte header), bodies up to 255 bytes: [lowercase_type, length].
 3. Long (5 byte header), bodies up to 2GB:
    [uppercase_type, 4-byte little-endian length].

Record types are the letters A-Z. Passing a lowercase letter to the encoding
functions permits the tiny form for small bodies; uppercase forces an
explicit header.

Take and TakeAny return nil on malformed input and suit trusted buffers;
TakeWary reports explicit errors and is what decode paths fed from the
network use.
*/
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const CaseBit uint8 = 'a' - 'A'

var (
	ErrIncomplete = errors.New("syncwire: incomplete data")
	ErrBadRecord  = errors.New("syncwire: bad TLV record format")
)

// Records is a batch of TLV records, the unit the transports move around.
type Records [][]byte

func (recs Records) TotalLen() (total int) {
	for _, r := range recs {
		total += len(r)
	}
	return
}

// ProbeHeader reads a record header without consuming it.
//
// Returns:
//   - lit: record type ('A'-'Z', '0' for tiny, '-' for garbage, 0 if incomplete)
//   - hdrlen: header length (1, 2, or 5 bytes)
//   - bodylen: body length in bytes
func ProbeHeader(data []byte) (lit byte, hdrlen, bodylen int) {
	if len(data) == 0 {
		return 0, 0, 0
	}
	dlit := data[0]
	if dlit >= '0' && dlit <= '9' { // tiny
		lit = '0'
		bodylen = int(dlit - '0')
		hdrlen = 1
	} else if dlit >= 'a' && dlit <= 'z' { // short
		if len(data) < 2 {
			return
		}
		lit = dlit - CaseBit
		hdrlen = 2
		bodylen = int(data[1])
	} else if dlit >= 'A' && dlit <= 'Z' { // long
		if len(data) < 5 {
			return
		}
		bl := binary.LittleEndian.Uint32(data[1:5])
		if bl > 0x7fffffff {
			lit = '-'
			return
		}
		lit = dlit
		bodylen = int(bl)
		hdrlen = 5
	} else {
		lit = '-'
	}
	return
}

// Split consumes every complete TLV record from the buffer.
// A trailing partial record is left in place and reported as ErrIncomplete.
func Split(data *bytes.Buffer) (recs Records, err error) {
	for data.Len() > 0 {
		lit, hlen, blen := ProbeHeader(data.Bytes())
		if lit == '-' {
			if len(recs) == 0 {
				err = ErrBadRecord
			}
			return
		}
		if lit == 0 { // incomplete header
			return
		}
		if hlen+blen > data.Len() {
			err = errors.Join(ErrIncomplete, fmt.Errorf("record size %d, have %d", hlen+blen, data.Len()))
			return
		}
		record := make([]byte, hlen+blen)
		if n, rerr := data.Read(record); rerr != nil {
			return recs, rerr
		} else if n != hlen+blen {
			panic("impossible buffer reading")
		}
		recs = append(recs, record)
	}
	return
}

// AppendHeader appends a TLV header, picking the shortest form the body
// length and the case of lit allow.
func AppendHeader(into []byte, lit byte, bodylen int) (ret []byte) {
	biglit := lit &^ CaseBit
	if biglit < 'A' || biglit > 'Z' {
		panic("TLV record type is A..Z")
	}
	if bodylen < 10 && (lit&CaseBit) != 0 {
		ret = append(into, byte('0'+bodylen))
	} else if bodylen > 0xff {
		if bodylen > 0x7fffffff {
			panic("oversized TLV record")
		}
		ret = append(into, biglit)
		ret = binary.LittleEndian.AppendUint32(ret, uint32(bodylen))
	} else {
		ret = append(into, lit|CaseBit, byte(bodylen))
	}
	return ret
}

// Take extracts the body of the record of the given type from trusted data.
// Returns nil body on type mismatch, (nil, data) when incomplete.
func Take(lit byte, data []byte) (body, rest []byte) {
	flit, hdrlen, bodylen := ProbeHeader(data)
	if flit == 0 || hdrlen+bodylen > len(data) {
		return nil, data
	}
	if flit != lit && flit != '0' {
		return nil, nil
	}
	body = data[hdrlen : hdrlen+bodylen]
	rest = data[hdrlen+bodylen:]
	return
}

// TakeAny extracts whatever record comes first.
func TakeAny(data []byte) (lit byte, body, rest []byte) {
	if len(data) == 0 {
		return 0, nil, nil
	}
	lit = data[0] & ^CaseBit
	body, rest = Take(lit, data)
	return
}

// TakeWary is Take for untrusted data, with explicit errors.
func TakeWary(lit byte, data []byte) (body, rest []byte, err error) {
	flit, hdrlen, bodylen := ProbeHeader(data)
	if flit == 0 || hdrlen+bodylen > len(data) {
		return nil, data, ErrIncomplete
	}
	if flit != lit && flit != '0' {
		return nil, nil, ErrBadRecord
	}
	body = data[hdrlen : hdrlen+bodylen]
	rest = data[hdrlen+bodylen:]
	return
}

// Lit returns the canonical record type of a complete record.
func Lit(rec []byte) byte {
	if len(rec) == 0 {
		return '-'
	}
	b := rec[0]
	if b >= 'a' && b <= 'z' {
		return b - CaseBit
	} else if b >= 'A' && b <= 'Z' {
		return b
	} else if b >= '0' && b <= '9' {
		return '0'
	}
	return '-'
}

// Append appends a complete TLV record to the buffer.
func Append(into []byte, lit byte, body ...[]byte) (res []byte) {
	total := 0
	for _, b := range body {
		total += len(b)
	}
	res = AppendHeader(into, lit, total)
	for _, b := range body {
		res = append(res, b...)
	}
	return res
}

// Record builds a complete TLV record.
func Record(lit byte, body ...[]byte) []byte {
	total := 0
	for _, b := range body {
		total += len(b)
	}
	ret := make([]byte, 0, total+5)
	ret = AppendHeader(ret, lit, total)
	for _, b := range body {
		ret = append(ret, b...)
	}
	return ret
}

// Join concatenates records into a single buffer.
func Join(records ...[]byte) (ret []byte) {
	for _, rec := range records {
		ret = append(ret, rec...)
	}
	return
}
