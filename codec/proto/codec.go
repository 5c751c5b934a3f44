// This package contains a protobuf element codec for generated message types. Each encoded
// value is framed with a 4-byte length prefix so that it can be raw-copied without decoding.
package proto

import (
	"fmt"
	"hash/fnv"
	"strings"

	"google.golang.org/protobuf/proto"

	"github.com/avernar/ckpt/binio"
	"github.com/avernar/ckpt/codec"
)

// Name is the default snapshot name.
const Name = "proto"

type Codec[M proto.Message] struct {
	name string
	opts proto.MarshalOptions
	buf  []byte
}

func New[M proto.Message]() *Codec[M] {
	return &Codec[M]{
		name: Name,
		buf:  make([]byte, 0),
	}
}

// Named sets the snapshot name, so that protobuf codecs for different message types can be
// registered side by side.
func (c *Codec[M]) Named(name string) *Codec[M] {
	if strings.TrimSpace(name) == "" {
		panic("name can't be blank")
	}
	c.name = name
	return c
}

// Register adds the read-side snapshot factory for a protobuf codec of M registered under
// name.
func Register[M proto.Message](reg *codec.Registry, name string) {
	reg.Register(name, func() codec.Snapshot { return New[M]().Named(name).Snapshot() })
}

func (c *Codec[M]) Encode(v M, w *binio.Writer) error {
	b, err := c.opts.MarshalAppend(c.buf[:0], v)
	if err != nil {
		return err
	}
	c.buf = b
	return w.WriteBytes(b)
}

func (c *Codec[M]) Decode(r *binio.Reader) (M, error) {
	m := newMessage[M]()
	data, err := r.ReadBytes()
	if err != nil {
		return m, fmt.Errorf("%w: %w", codec.ErrCorrupt, err)
	}
	if err := proto.Unmarshal(data, m); err != nil {
		return m, fmt.Errorf("%w: %w", codec.ErrCorrupt, err)
	}
	return m, nil
}

func (c *Codec[M]) RawCopy(r *binio.Reader, w *binio.Writer) error {
	return binio.CopyBytes(r, w)
}

func (c *Codec[M]) Length() int { return codec.VarLength }

func (c *Codec[M]) Immutable() bool { return false }

func (c *Codec[M]) Stateless() bool { return false }

func (c *Codec[M]) Derive() codec.Codec[M] {
	return New[M]().Named(c.name)
}

func (c *Codec[M]) Snapshot() codec.Snapshot {
	name := c.name
	return codec.Leaf(name, 1, func() (any, error) {
		return New[M]().Named(name), nil
	})
}

func (c *Codec[M]) Equal(other codec.Codec[M]) bool {
	o, ok := other.(*Codec[M])
	return ok && o.name == c.name
}

func (c *Codec[M]) Hash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(c.name))
	return h.Sum64()
}

func newMessage[M proto.Message]() M {
	var zero M
	return zero.ProtoReflect().New().Interface().(M)
}
