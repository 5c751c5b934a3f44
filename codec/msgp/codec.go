// This package contains a MessagePack element codec for items generated (or hand-written)
// against tinylib/msgp. Each encoded value is framed with a 4-byte length prefix so that it
// can be raw-copied without decoding.
package msgp

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/tinylib/msgp/msgp"

	"github.com/avernar/ckpt/binio"
	"github.com/avernar/ckpt/codec"
)

// Name is the default snapshot name.
const Name = "msgp"

type Codec[T any, P msgpable[T]] struct {
	name string
	buf  []byte
}

func New[T any, P msgpable[T]]() *Codec[T, P] {
	return &Codec[T, P]{
		name: Name,
		buf:  make([]byte, 0),
	}
}

// Named sets the snapshot name, so that msgp codecs for different item types can be
// registered side by side.
func (c *Codec[T, P]) Named(name string) *Codec[T, P] {
	if strings.TrimSpace(name) == "" {
		panic("name can't be blank")
	}
	c.name = name
	return c
}

// Register adds the read-side snapshot factory for a msgp codec of T registered under name.
func Register[T any, P msgpable[T]](reg *codec.Registry, name string) {
	reg.Register(name, func() codec.Snapshot { return New[T, P]().Named(name).Snapshot() })
}

func (c *Codec[T, P]) Encode(v T, w *binio.Writer) error {
	b, err := P(&v).MarshalMsg(c.buf[:0])
	if err != nil {
		return err
	}
	c.buf = b
	return w.WriteBytes(b)
}

func (c *Codec[T, P]) Decode(r *binio.Reader) (T, error) {
	var v T
	data, err := r.ReadBytes()
	if err != nil {
		return v, fmt.Errorf("%w: %w", codec.ErrCorrupt, err)
	}
	rest, err := P(&v).UnmarshalMsg(data)
	if err != nil {
		return v, fmt.Errorf("%w: %w", codec.ErrCorrupt, err)
	}
	if len(rest) != 0 {
		return v, fmt.Errorf("%w: %d trailing bytes after msgp value", codec.ErrCorrupt, len(rest))
	}
	return v, nil
}

func (c *Codec[T, P]) RawCopy(r *binio.Reader, w *binio.Writer) error {
	return binio.CopyBytes(r, w)
}

func (c *Codec[T, P]) Length() int { return codec.VarLength }

func (c *Codec[T, P]) Immutable() bool { return false }

func (c *Codec[T, P]) Stateless() bool { return false }

func (c *Codec[T, P]) Derive() codec.Codec[T] {
	return New[T, P]().Named(c.name)
}

func (c *Codec[T, P]) Snapshot() codec.Snapshot {
	name := c.name
	return codec.Leaf(name, 1, func() (any, error) {
		return New[T, P]().Named(name), nil
	})
}

func (c *Codec[T, P]) Equal(other codec.Codec[T]) bool {
	o, ok := other.(*Codec[T, P])
	return ok && o.name == c.name
}

func (c *Codec[T, P]) Hash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(c.name))
	return h.Sum64()
}

type msgpable[T any] interface {
	*T
	msgp.Marshaler
	msgp.Unmarshaler
}
