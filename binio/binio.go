// Package binio provides big-endian binary cursors used by codecs.
//
// A Writer and a Reader wrap an io.Writer/io.Reader and move strictly
// forward. After a failed call the cursor position is undefined and the
// caller must abort the encompassing operation.
package binio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Writer is a forward-only cursor over an io.Writer.
//
// Writers are not considered thread-safe and each instance is used by a
// single worker.
type Writer struct {
	w   io.Writer
	buf [8]byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) WriteInt32(v int32) error {
	binary.BigEndian.PutUint32(w.buf[:4], uint32(v))
	_, err := w.w.Write(w.buf[:4])
	return err
}

func (w *Writer) WriteInt64(v int64) error {
	binary.BigEndian.PutUint64(w.buf[:8], uint64(v))
	_, err := w.w.Write(w.buf[:8])
	return err
}

func (w *Writer) WriteFloat64(v float64) error {
	return w.WriteInt64(int64(math.Float64bits(v)))
}

func (w *Writer) WriteBool(v bool) error {
	w.buf[0] = 0
	if v {
		w.buf[0] = 1
	}
	_, err := w.w.Write(w.buf[:1])
	return err
}

// WriteBytes writes b with a 4-byte length prefix.
func (w *Writer) WriteBytes(b []byte) error {
	if len(b) > math.MaxInt32 {
		return fmt.Errorf("bytes too long: %d", len(b))
	}
	if err := w.WriteInt32(int32(len(b))); err != nil {
		return err
	}
	_, err := w.w.Write(b)
	return err
}

func (w *Writer) WriteString(s string) error {
	return w.WriteBytes([]byte(s))
}

// WriteRaw writes b without a length prefix.
func (w *Writer) WriteRaw(b []byte) error {
	_, err := w.w.Write(b)
	return err
}

// Reader is a forward-only cursor over an io.Reader.
//
// Readers are not considered thread-safe and each instance is used by a
// single worker.
type Reader struct {
	r   io.Reader
	buf [8]byte
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (r *Reader) ReadInt32() (int32, error) {
	if _, err := io.ReadFull(r.r, r.buf[:4]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(r.buf[:4])), nil
}

func (r *Reader) ReadInt64() (int64, error) {
	if _, err := io.ReadFull(r.r, r.buf[:8]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(r.buf[:8])), nil
}

func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadInt64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(uint64(v)), nil
}

func (r *Reader) ReadBool() (bool, error) {
	if _, err := io.ReadFull(r.r, r.buf[:1]); err != nil {
		return false, err
	}
	return r.buf[0] != 0, nil
}

// ReadBytes reads a 4-byte length prefix followed by that many bytes.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("negative length prefix: %d", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CopyRaw transfers exactly n bytes from r to w.
func CopyRaw(r *Reader, w *Writer, n int64) error {
	written, err := io.CopyN(w.w, r.r, n)
	if err != nil {
		return fmt.Errorf("copied %d of %d bytes: %w", written, n, err)
	}
	return nil
}

// CopyBytes transfers one length-prefixed byte block from r to w,
// re-writing the prefix.
func CopyBytes(r *Reader, w *Writer) error {
	n, err := r.ReadInt32()
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("negative length prefix: %d", n)
	}
	if err := w.WriteInt32(n); err != nil {
		return err
	}
	return CopyRaw(r, w, int64(n))
}
