// Package serialization implements the engine's canonical byte encoding:
// little-endian integers, length-prefixed variable data, a one-byte tag for
// each sum-type variant, and u32-length-prefixed collections. Every domain
// type built on top of this package must satisfy
// deserialize(serialize(v)) == (v, nil) for all well-formed v.
package serialization

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrFormatting is returned when a tag byte or shape does not match any
// known variant.
var ErrFormatting = errors.New("formatting error")

// ErrEarlyEndOfStream is returned when fewer bytes remain than the encoding
// requires.
var ErrEarlyEndOfStream = errors.New("early end of stream")

// Marshaler is implemented by every domain type with a canonical byte form.
type Marshaler interface {
	ToBytes() []byte
}

// Unmarshaler decodes a value from the front of buf, returning the number
// of bytes consumed.
type Unmarshaler interface {
	FromBytes(buf []byte) (int, error)
}

// Reader is a cursor over a byte slice used while decoding composite types.
// It never panics: every read past the end of the buffer returns
// ErrEarlyEndOfStream.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential decoding.
func NewReader(buf []byte) *Reader { return &Reader{buf: buf} }

// Pos returns the number of bytes consumed so far.
func (r *Reader) Pos() int { return r.pos }

// Remaining returns the unread suffix of the buffer.
func (r *Reader) Remaining() []byte { return r.buf[r.pos:] }

func (r *Reader) need(n int) error {
	if len(r.buf)-r.pos < n {
		return ErrEarlyEndOfStream
	}
	return nil
}

// Byte reads a single tag/flag byte.
func (r *Reader) Byte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// U32 reads a little-endian uint32.
func (r *Reader) U32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

// U64 reads a little-endian uint64.
func (r *Reader) U64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

// I32 reads a little-endian int32.
func (r *Reader) I32() (int32, error) {
	v, err := r.U32()
	return int32(v), err
}

// Fixed reads exactly n raw bytes (e.g. a 32-byte address), copied so the
// caller may retain it beyond the reader's lifetime.
func (r *Reader) Fixed(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

// Bytes reads a u32-length-prefixed byte slice.
func (r *Reader) Bytes() ([]byte, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	return r.Fixed(int(n))
}

// String reads a u32-length-prefixed UTF-8 string.
func (r *Reader) String() (string, error) {
	b, err := r.Bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Writer accumulates canonical bytes for a composite value.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the accumulated canonical encoding.
func (w *Writer) Bytes() []byte { return w.buf }

// Byte appends a single tag/flag byte.
func (w *Writer) Byte(b byte) *Writer {
	w.buf = append(w.buf, b)
	return w
}

// U32 appends a little-endian uint32.
func (w *Writer) U32(v uint32) *Writer {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
	return w
}

// U64 appends a little-endian uint64.
func (w *Writer) U64(v uint64) *Writer {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
	return w
}

// I32 appends a little-endian int32.
func (w *Writer) I32(v int32) *Writer { return w.U32(uint32(v)) }

// Fixed appends raw bytes with no length prefix (the caller knows the
// width, e.g. a 32-byte address).
func (w *Writer) Fixed(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

// BytesField appends a u32-length-prefixed byte slice.
func (w *Writer) BytesField(b []byte) *Writer {
	w.U32(uint32(len(b)))
	w.buf = append(w.buf, b...)
	return w
}

// String appends a u32-length-prefixed UTF-8 string.
func (w *Writer) String(s string) *Writer {
	return w.BytesField([]byte(s))
}

// WriteU32Collection writes a u32 length followed by each element's bytes,
// as produced by enc.
func WriteU32Collection[T any](w *Writer, items []T, enc func(*Writer, T)) {
	w.U32(uint32(len(items)))
	for _, it := range items {
		enc(w, it)
	}
}

// ReadU32Collection reads a u32-length-prefixed collection, decoding each
// element with dec.
func ReadU32Collection[T any](r *Reader, dec func(*Reader) (T, error)) ([]T, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := dec(r)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}
